package influx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	"github.com/walsidalw/opencast-matomo-adapter/internal/config"
	"github.com/walsidalw/opencast-matomo-adapter/internal/domain"
	"github.com/walsidalw/opencast-matomo-adapter/internal/ports"
)

const (
	viewMeasurement     = "impressions_daily"
	segmentsMeasurement = "segments_daily"
)

// Store batches time-series points for InfluxDB and answers tag-filtered
// lookups against the segment measurement. Batch additions are serialized;
// the fan-in of concurrent producers goes through one mutex-guarded batch.
type Store struct {
	client          client.Client
	database        string
	retentionPolicy string
	pingTimeout     time.Duration
	logger          *slog.Logger

	mu    sync.Mutex
	batch client.BatchPoints
}

var _ ports.PointStore = (*Store)(nil)

// ConfigError reports a store client that cannot be built from the given
// configuration, for example an invalid URL.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return fmt.Sprintf("influxdb configuration: %v", e.Err) }
func (e *ConfigError) Unwrap() error { return e.Err }

// Connect builds the HTTP client and verifies connectivity with a ping.
func Connect(cfg config.InfluxDBConfig, logger *slog.Logger) (*Store, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.URL,
		Username: cfg.User,
		Password: cfg.Password,
		Timeout:  cfg.Timeout.Std(),
	})
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	if _, _, err := c.Ping(cfg.Timeout.Std()); err != nil {
		c.Close()
		return nil, &domain.StoreUnavailableError{Err: err}
	}

	s := &Store{
		client:          c,
		database:        cfg.Database,
		retentionPolicy: cfg.RetentionPolicy,
		pingTimeout:     cfg.Timeout.Std(),
		logger:          logger,
	}
	if err := s.resetBatch(); err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying HTTP client.
func (s *Store) Close() error {
	return s.client.Close()
}

// AddView appends a view point: tags (seriesId, organizationId, episodeId),
// fields (plays, visitors, finishes), second precision.
func (s *Store) AddView(imp domain.ViewImpression) error {
	point, err := client.NewPoint(
		viewMeasurement,
		map[string]string{
			"seriesId":       imp.SeriesID,
			"organizationId": imp.OrganizationID,
			"episodeId":      imp.EpisodeID,
		},
		map[string]interface{}{
			"plays":    imp.Plays,
			"visitors": imp.Visitors,
			"finishes": imp.Finishes,
		},
		imp.Date,
	)
	if err != nil {
		return fmt.Errorf("view point for episode %s: %w", imp.EpisodeID, err)
	}
	s.addPoint(point)
	return nil
}

// AddSegments appends a segment point carrying the JSON-encoded segment
// array as its single field.
func (s *Store) AddSegments(imp domain.SegmentsImpression) error {
	encoded, err := domain.EncodeSegments(imp.Segments)
	if err != nil {
		return err
	}
	point, err := client.NewPoint(
		segmentsMeasurement,
		map[string]string{
			"organizationId": imp.OrganizationID,
			"episodeId":      imp.EpisodeID,
		},
		map[string]interface{}{
			"segments": encoded,
		},
		imp.Date,
	)
	if err != nil {
		return fmt.Errorf("segments point for episode %s: %w", imp.EpisodeID, err)
	}
	s.addPoint(point)
	return nil
}

func (s *Store) addPoint(p *client.Point) {
	s.mu.Lock()
	s.batch.AddPoint(p)
	s.mu.Unlock()
}

// LatestSegments returns the newest stored segment record for the episode,
// or nil when none exists.
func (s *Store) LatestSegments(ctx context.Context, orgaID, episodeID string) (*ports.StoredSegments, error) {
	cmd := fmt.Sprintf(
		`SELECT * FROM %q.%q.%q WHERE "organizationId" = '%s' AND "episodeId" = '%s' ORDER BY time DESC LIMIT 1`,
		s.database, s.retentionPolicy, segmentsMeasurement,
		escapeTag(orgaID), escapeTag(episodeID),
	)

	query := client.NewQuery(cmd, s.database, "s")
	resp, err := s.client.Query(query)
	if err != nil {
		return nil, &domain.StoreUnavailableError{Err: err}
	}
	if resp.Error() != nil {
		return nil, &domain.StoreUnavailableError{Err: resp.Error()}
	}

	if len(resp.Results) == 0 || len(resp.Results[0].Series) == 0 {
		return nil, nil
	}
	series := resp.Results[0].Series[0]
	if len(series.Values) == 0 {
		return nil, nil
	}

	stored, err := rowToStored(series.Columns, series.Values[0])
	if err != nil {
		return nil, &domain.CorruptStoredSegmentsError{EpisodeID: episodeID, Err: err}
	}
	return stored, nil
}

// rowToStored picks the time and segments columns out of one query row.
func rowToStored(columns []string, row []interface{}) (*ports.StoredSegments, error) {
	var stored ports.StoredSegments
	var haveTime, haveSegments bool

	for i, col := range columns {
		if i >= len(row) || row[i] == nil {
			continue
		}
		switch col {
		case "time":
			num, ok := row[i].(json.Number)
			if !ok {
				return nil, fmt.Errorf("unexpected time column type %T", row[i])
			}
			secs, err := num.Int64()
			if err != nil {
				return nil, fmt.Errorf("time column: %w", err)
			}
			stored.Time = time.Unix(secs, 0).UTC()
			haveTime = true
		case "segments":
			str, ok := row[i].(string)
			if !ok {
				return nil, fmt.Errorf("unexpected segments column type %T", row[i])
			}
			stored.Raw = str
			haveSegments = true
		}
	}

	if !haveTime || !haveSegments {
		return nil, fmt.Errorf("row is missing time or segments column")
	}
	return &stored, nil
}

// Flush pings the store and writes the accumulated batch, then starts a
// fresh one. A failed ping or write is fatal for the run.
func (s *Store) Flush(ctx context.Context) error {
	if _, _, err := s.client.Ping(s.pingTimeout); err != nil {
		return &domain.StoreUnavailableError{Err: err}
	}

	s.mu.Lock()
	batch := s.batch
	s.mu.Unlock()

	s.logger.Debug("writing batch", "points", len(batch.Points()))
	if err := s.client.Write(batch); err != nil {
		return &domain.StoreUnavailableError{Err: err}
	}
	return s.resetBatch()
}

func (s *Store) resetBatch() error {
	batch, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:        s.database,
		RetentionPolicy: s.retentionPolicy,
		Precision:       "s",
	})
	if err != nil {
		return fmt.Errorf("new batch: %w", err)
	}
	s.mu.Lock()
	s.batch = batch
	s.mu.Unlock()
	return nil
}

func escapeTag(v string) string {
	return strings.ReplaceAll(v, `'`, `\'`)
}
