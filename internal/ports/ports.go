package ports

import (
	"context"
	"time"

	"github.com/walsidalw/opencast-matomo-adapter/internal/domain"
)

// StatsSource pulls raw viewing statistics from the analytics provider.
type StatsSource interface {
	// ViewsForDay returns the extracted records for every playable episode
	// viewed on the given day. Records with non-playable labels are dropped.
	ViewsForDay(ctx context.Context, day time.Time) ([]domain.ViewRecord, error)
	// SegmentsForSubtable returns the raw segment-statistics body for one
	// subtable on the given day; the body may be empty.
	SegmentsForSubtable(ctx context.Context, day time.Time, subtable string) (string, error)
}

// SeriesResolver maps an episode to its series via the catalog service.
// An empty series id with a nil error means the episode has no series.
type SeriesResolver interface {
	SeriesForEpisode(ctx context.Context, orgaID, episodeID string) (string, error)
}

// StoredSegments is an existing segments_daily record read back from the
// metrics store: its raw payload and its original point timestamp.
type StoredSegments struct {
	Raw  string
	Time time.Time
}

// PointStore batches time-series points and answers tag-filtered lookups
// against the segment measurement.
type PointStore interface {
	AddView(imp domain.ViewImpression) error
	AddSegments(imp domain.SegmentsImpression) error
	// LatestSegments returns the newest stored segment record for the
	// episode, or nil when none exists.
	LatestSegments(ctx context.Context, orgaID, episodeID string) (*StoredSegments, error)
	// Flush writes the accumulated batch and resets it.
	Flush(ctx context.Context) error
}

// CheckpointStore persists the last fully processed date.
type CheckpointStore interface {
	Load() (time.Time, error)
	Save(day time.Time) error
}
