package matomo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/walsidalw/opencast-matomo-adapter/internal/config"
	"github.com/walsidalw/opencast-matomo-adapter/internal/domain"
	"github.com/walsidalw/opencast-matomo-adapter/internal/ports"
)

const (
	// Filter pattern for view statistics requests. Filters out episodes
	// with zero plays.
	filterPattern = `^[1-9]\d*$`
	// Column projection to shave some weight off view responses.
	showColumns = "label,nb_plays,nb_unique_visitors_impressions,nb_finishes,idsubdatatable"

	dateFormat = "2006-01-02"
)

// Client talks to the Matomo MediaAnalytics reporting API.
type Client struct {
	baseURL string
	siteID  string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ ports.StatsSource = (*Client)(nil)

// New builds a client from configuration. A zero rate limit disables
// throttling.
func New(cfg config.MatomoConfig, logger *slog.Logger) *Client {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		siteID:  cfg.SiteID,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout.Std()},
		limiter: limiter,
		logger:  logger,
	}
}

// ViewsForDay requests the view statistics of every episode played on the
// given day and extracts one record per playable label. Non-playable labels
// (live streams and the like) are dropped without error.
func (c *Client) ViewsForDay(ctx context.Context, day time.Time) ([]domain.ViewRecord, error) {
	c.logger.Info("retrieving viewed episodes", "date", day.Format(dateFormat))

	body, err := c.getResources(ctx, day, "", "")
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(body)) <= 2 {
		return nil, nil
	}

	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(body), &rows); err != nil {
		return nil, &domain.MalformedResponseError{Body: body, Err: err}
	}

	records := make([]domain.ViewRecord, 0, len(rows))
	for _, row := range rows {
		record, ok, err := extractRecord(row)
		if err != nil {
			return nil, err
		}
		if !ok {
			c.logger.Debug("dropped non-playable record")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// SegmentsForSubtable requests the per-segment breakdown for one subtable on
// the given day. The provider answers with a near-empty body when the
// subtable has no segment data; the raw body is returned either way.
func (c *Client) SegmentsForSubtable(ctx context.Context, day time.Time, subtable string) (string, error) {
	return c.getResources(ctx, day, subtable, "media_segments")
}

func (c *Client) getResources(ctx context.Context, day time.Time, subtable, dimension string) (string, error) {
	query := url.Values{}
	query.Set("module", "API")
	query.Set("method", "MediaAnalytics.getVideoResources")
	query.Set("period", "day")
	query.Set("format", "json")
	query.Set("filter_limit", "-1")
	query.Set("idSite", c.siteID)
	query.Set("token_auth", c.token)
	query.Set("date", day.Format(dateFormat))
	if subtable == "" {
		query.Set("filter_pattern", filterPattern)
		query.Set("filter_column", "nb_plays")
		query.Set("showColumns", showColumns)
	} else {
		query.Set("idSubtable", subtable)
		query.Set("secondaryDimension", dimension)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("matomo rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build matomo request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("matomo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Absent data, not an error.
		c.logger.Info("matomo returned 404", "date", day.Format(dateFormat), "subtable", subtable)
		return "", nil
	}
	if resp.StatusCode/100 != 2 {
		return "", &domain.RemoteServiceError{Service: "matomo", Status: resp.StatusCode}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read matomo response: %w", err)
	}
	return string(payload), nil
}
