package domain

import "time"

// ViewRecord is one raw analytics row for a playable episode: the extracted
// episode identifier, its daily counters and the subtable handle needed to
// fetch the segment breakdown later.
type ViewRecord struct {
	EpisodeID string
	Plays     int
	Visitors  int
	Finishes  int
	Subtable  string
}

// ViewImpression is the reconciled per-episode record for one day, ready to
// become a point in the impressions_daily measurement. Identity is defined by
// (OrganizationID, EpisodeID); two impressions with the same identity are the
// same logical point and must be merged, never both kept.
type ViewImpression struct {
	EpisodeID      string
	OrganizationID string
	SeriesID       string
	Plays          int
	Visitors       int
	Finishes       int
	Date           time.Time
	Subtables      []string
}

// Same reports whether two impressions share the merge identity.
func (i ViewImpression) Same(other ViewImpression) bool {
	return i.OrganizationID == other.OrganizationID && i.EpisodeID == other.EpisodeID
}

// Merge sums the counters of both impressions and unions their subtable
// handles. The receiver's series, date and identity are kept.
func (i ViewImpression) Merge(other ViewImpression) ViewImpression {
	merged := i
	merged.Plays += other.Plays
	merged.Visitors += other.Visitors
	merged.Finishes += other.Finishes
	merged.Subtables = append(append([]string{}, i.Subtables...), other.Subtables...)
	return merged
}

// Reconcile folds the next impression into the accumulator. An impression
// with the same identity replaces the prior entry in place, keeping its
// position so iteration order stays deterministic; otherwise it is appended.
// The fold must run to completion over a full day before any impression
// proceeds downstream.
func Reconcile(acc []ViewImpression, next ViewImpression) []ViewImpression {
	for idx := range acc {
		if acc[idx].Same(next) {
			acc[idx] = acc[idx].Merge(next)
			return acc
		}
	}
	return append(acc, next)
}

// SegmentsImpression carries the combined per-segment statistics for one
// episode on one day. It is never persisted as-is: the upsert protocol merges
// it with whatever the store already holds and emits a point.
type SegmentsImpression struct {
	EpisodeID      string
	OrganizationID string
	Segments       []Segment
	Date           time.Time
}
