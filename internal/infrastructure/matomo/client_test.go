package matomo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walsidalw/opencast-matomo-adapter/internal/config"
	"github.com/walsidalw/opencast-matomo-adapter/internal/domain"
	"github.com/walsidalw/opencast-matomo-adapter/internal/logging"
)

func testClient(serverURL string) *Client {
	return New(config.MatomoConfig{
		URL:     serverURL,
		SiteID:  "1",
		Token:   "secret",
		Timeout: config.Duration(5 * time.Second),
	}, logging.New("error"))
}

func TestViewsForDayRequestShape(t *testing.T) {
	t.Parallel()

	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	day := time.Date(2026, time.August, 29, 0, 0, 0, 0, time.UTC)
	records, err := testClient(server.URL).ViewsForDay(context.Background(), day)
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.Equal(t, "MediaAnalytics.getVideoResources", query["method"][0])
	assert.Equal(t, "day", query["period"][0])
	assert.Equal(t, "2026-08-29", query["date"][0])
	assert.Equal(t, "1", query["idSite"][0])
	assert.Equal(t, "secret", query["token_auth"][0])
	assert.Equal(t, filterPattern, query["filter_pattern"][0])
	assert.Equal(t, "nb_plays", query["filter_column"][0])
	assert.NotContains(t, query, "idSubtable")
}

func TestViewsForDayExtractsAndDrops(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"label":"/engage/theodul/ui/core.html?id=e1","nb_plays":3,"nb_unique_visitors_impressions":2,"nb_finishes":1,"idsubdatatable":"7"},
			{"label":"/live/stream.m3u8"},
			{"label":"/engage/theodul/ui/core.html?id=e2","nb_plays":1,"nb_unique_visitors_impressions":1,"nb_finishes":0,"idsubdatatable":"8"}
		]`))
	}))
	defer server.Close()

	records, err := testClient(server.URL).ViewsForDay(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "e1", records[0].EpisodeID)
	assert.Equal(t, "e2", records[1].EpisodeID)
}

func TestViewsForDayNotFoundIsEmptyDay(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	records, err := testClient(server.URL).ViewsForDay(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestViewsForDayServerErrorIsRemoteServiceError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := testClient(server.URL).ViewsForDay(context.Background(), time.Now())

	var remote *domain.RemoteServiceError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusBadGateway, remote.Status)
	assert.Equal(t, "matomo", remote.Service)
}

func TestViewsForDayUnparseableBodyIsMalformed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"error"}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL).ViewsForDay(context.Background(), time.Now())

	var malformed *domain.MalformedResponseError
	require.True(t, errors.As(err, &malformed))
}

func TestSegmentsForSubtableRequestShape(t *testing.T) {
	t.Parallel()

	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		_, _ = w.Write([]byte(`[{"nb_plays":"1","sum_plays":"1","play_rate":"1"}]`))
	}))
	defer server.Close()

	day := time.Date(2026, time.August, 29, 0, 0, 0, 0, time.UTC)
	body, err := testClient(server.URL).SegmentsForSubtable(context.Background(), day, "42")
	require.NoError(t, err)
	assert.Contains(t, body, "sum_plays")

	assert.Equal(t, "42", query["idSubtable"][0])
	assert.Equal(t, "media_segments", query["secondaryDimension"][0])
	assert.NotContains(t, query, "filter_pattern")
}

func TestSegmentsForSubtableEmptyBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(``))
	}))
	defer server.Close()

	body, err := testClient(server.URL).SegmentsForSubtable(context.Background(), time.Now(), "42")
	require.NoError(t, err)
	assert.Empty(t, body)
}
