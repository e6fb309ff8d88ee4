package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/walsidalw/opencast-matomo-adapter/internal/domain"
	"github.com/walsidalw/opencast-matomo-adapter/internal/ports"
)

// PipelineDeps wires all driven adapters into the daily pipeline.
type PipelineDeps struct {
	Stats       ports.StatsSource
	Series      ports.SeriesResolver
	Store       ports.PointStore
	Checkpoints ports.CheckpointStore
	OrgaID      string
	Workers     int
	QueueSize   int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Pipeline drives the two-phase daily ingest: view statistics first, then
// per-episode segment statistics, advancing the date checkpoint one day at a
// time.
//
// Known re-run hazard: the segment overwrite path accumulates fresh counts
// onto stored state. If the process dies after a segment flush but before
// the checkpoint write, re-running the same day double-counts its segment
// plays.
type Pipeline struct {
	stats       ports.StatsSource
	series      ports.SeriesResolver
	store       ports.PointStore
	checkpoints ports.CheckpointStore
	orgaID      string
	workers     int
	queueSize   int
	logger      *slog.Logger
	now         func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	workers := deps.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := deps.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		stats:       deps.Stats,
		series:      deps.Series,
		store:       deps.Store,
		checkpoints: deps.Checkpoints,
		orgaID:      deps.OrgaID,
		workers:     workers,
		queueSize:   queueSize,
		logger:      deps.Logger,
		now:         now,
	}
}

// Run processes every unprocessed day between the checkpoint and today,
// oldest first. The checkpoint advances only after both phases of a day
// completed, so a failed run resumes at the same date.
func (p *Pipeline) Run(ctx context.Context) error {
	last, err := p.checkpoints.Load()
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	today := p.today()
	for day := last.AddDate(0, 0, 1); !day.After(today); day = day.AddDate(0, 0, 1) {
		p.logger.Info("processing day", "date", day.Format("2006-01-02"))

		impressions, err := p.viewPhase(ctx, day)
		if err != nil {
			return fmt.Errorf("view phase %s: %w", day.Format("2006-01-02"), err)
		}
		if err := p.segmentPhase(ctx, day, impressions); err != nil {
			return fmt.Errorf("segment phase %s: %w", day.Format("2006-01-02"), err)
		}

		if err := p.checkpoints.Save(day); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) today() time.Time {
	return p.now().UTC().Truncate(24 * time.Hour)
}

// viewPhase fetches the day's view statistics, folds duplicates into one
// impression per episode, resolves series ids concurrently and flushes the
// view points. The fold runs to completion before anything fans out, so
// counters are final when they become points.
func (p *Pipeline) viewPhase(ctx context.Context, day time.Time) ([]domain.ViewImpression, error) {
	records, err := p.stats.ViewsForDay(ctx, day)
	if err != nil {
		return nil, err
	}

	var impressions []domain.ViewImpression
	for _, record := range records {
		impressions = domain.Reconcile(impressions, domain.ViewImpression{
			EpisodeID:      record.EpisodeID,
			OrganizationID: p.orgaID,
			Plays:          record.Plays,
			Visitors:       record.Visitors,
			Finishes:       record.Finishes,
			Date:           day,
			Subtables:      []string{record.Subtable},
		})
	}

	if err := p.resolveSeries(ctx, impressions); err != nil {
		return nil, err
	}

	for _, imp := range impressions {
		if err := p.store.AddView(imp); err != nil {
			return nil, err
		}
	}
	if err := p.store.Flush(ctx); err != nil {
		return nil, err
	}

	p.logger.Info("view phase done", "date", day.Format("2006-01-02"), "episodes", len(impressions))
	return impressions, nil
}

// resolveSeries looks up the series id for every impression on a bounded
// worker pool. The impressions are already deduplicated, so no episode is
// looked up twice concurrently; each worker writes only its own index.
func (p *Pipeline) resolveSeries(ctx context.Context, impressions []domain.ViewImpression) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i := range impressions {
		i := i
		g.Go(func() error {
			seriesID, err := p.series.SeriesForEpisode(gctx, impressions[i].OrganizationID, impressions[i].EpisodeID)
			if err != nil {
				return err
			}
			impressions[i].SeriesID = seriesID
			return nil
		})
	}
	return g.Wait()
}

// segmentPhase fans the deduplicated episode set out onto a bounded worker
// pool. Each worker folds the episode's subtable responses into one segment
// array; a single collector goroutine applies the store reconciliation and
// batches points, so no mutable collection is shared across goroutines. The
// bounded channel caps in-flight results when the store is slow.
func (p *Pipeline) segmentPhase(ctx context.Context, day time.Time, impressions []domain.ViewImpression) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.workers)
	results := make(chan domain.SegmentsImpression, p.queueSize)

	for _, imp := range impressions {
		imp := imp
		g.Go(func() error {
			segments, err := p.fetchSegments(gctx, day, imp)
			if err != nil {
				return err
			}
			if len(segments) == 0 {
				// No segment data for the day; skip the episode entirely.
				return nil
			}
			select {
			case results <- domain.SegmentsImpression{
				EpisodeID:      imp.EpisodeID,
				OrganizationID: imp.OrganizationID,
				Segments:       segments,
				Date:           day,
			}:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	fetchErr := make(chan error, 1)
	go func() {
		fetchErr <- g.Wait()
		close(results)
	}()

	var collectErr error
	for imp := range results {
		if collectErr != nil {
			continue
		}
		if collectErr = p.upsertSegments(ctx, imp); collectErr != nil {
			cancel()
		}
	}

	if err := <-fetchErr; err != nil && collectErr == nil {
		return err
	}
	if collectErr != nil {
		return collectErr
	}
	return p.store.Flush(ctx)
}

// fetchSegments folds all subtable responses of one episode into a single
// consistent segment array.
func (p *Pipeline) fetchSegments(ctx context.Context, day time.Time, imp domain.ViewImpression) ([]domain.Segment, error) {
	var segments []domain.Segment
	for _, subtable := range imp.Subtables {
		raw, err := p.stats.SegmentsForSubtable(ctx, day, subtable)
		if err != nil {
			return nil, err
		}
		segments, err = domain.CombineSegments(segments, raw)
		if err != nil {
			return nil, err
		}
	}
	return segments, nil
}

// upsertSegments implements the store reconciliation protocol: with no
// existing record the fresh data becomes a point at the run's timestamp;
// with an existing record both are merged and written back at the stored
// record's original timestamp under the same tags, so the store overwrites
// instead of duplicating.
func (p *Pipeline) upsertSegments(ctx context.Context, imp domain.SegmentsImpression) error {
	stored, err := p.store.LatestSegments(ctx, imp.OrganizationID, imp.EpisodeID)
	if err != nil {
		return err
	}
	if stored == nil {
		return p.store.AddSegments(imp)
	}

	existing, err := domain.ParseSegments(stored.Raw)
	if err != nil {
		return &domain.CorruptStoredSegmentsError{EpisodeID: imp.EpisodeID, Err: err}
	}

	imp.Segments = domain.MergeSegments(imp.Segments, existing)
	imp.Date = stored.Time
	return p.store.AddSegments(imp)
}
