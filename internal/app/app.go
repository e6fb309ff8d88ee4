package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/walsidalw/opencast-matomo-adapter/internal/config"
	"github.com/walsidalw/opencast-matomo-adapter/internal/infrastructure/checkpoint"
	"github.com/walsidalw/opencast-matomo-adapter/internal/infrastructure/influx"
	"github.com/walsidalw/opencast-matomo-adapter/internal/infrastructure/matomo"
	"github.com/walsidalw/opencast-matomo-adapter/internal/infrastructure/opencast"
	"github.com/walsidalw/opencast-matomo-adapter/internal/infrastructure/scheduler"
	"github.com/walsidalw/opencast-matomo-adapter/internal/usecase"
)

// Application wires configs to the pipeline and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
}

// New builds a runnable application instance.
func New(cfg config.Config, logger *slog.Logger) *Application {
	return &Application{cfg: cfg, logger: logger}
}

// Run connects the metrics store, builds both API clients and executes the
// pipeline on the configured interval until the context is cancelled or a
// run fails.
func (a *Application) Run(ctx context.Context) error {
	store, err := influx.Connect(a.cfg.InfluxDB, a.logger.With("component", "influx"))
	if err != nil {
		return err
	}
	defer store.Close()

	catalog := opencast.New(a.cfg.Opencast, a.logger.With("component", "opencast"))
	defer catalog.Close()

	stats := matomo.New(a.cfg.Matomo, a.logger.With("component", "matomo"))

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Stats:       stats,
		Series:      catalog,
		Store:       store,
		Checkpoints: checkpoint.New(a.cfg.Adapter.CheckpointFile),
		OrgaID:      catalog.OrganizationID(),
		Workers:     a.cfg.Adapter.Workers,
		QueueSize:   a.cfg.Adapter.QueueSize,
		Logger:      a.logger.With("component", "pipeline"),
	})

	runner := scheduler.New(a.cfg.Adapter.Interval.Std(), a.logger.With("component", "scheduler"))
	err = runner.Run(ctx, pipeline.Run)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
