package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/walsidalw/opencast-matomo-adapter/internal/app"
	"github.com/walsidalw/opencast-matomo-adapter/internal/config"
	"github.com/walsidalw/opencast-matomo-adapter/internal/domain"
	"github.com/walsidalw/opencast-matomo-adapter/internal/infrastructure/influx"
	"github.com/walsidalw/opencast-matomo-adapter/internal/logging"
)

// Process exit statuses, so operators can tell configuration, transient and
// data-corruption failures apart.
const (
	exitInvalidStoreConfig = 2
	exitClientConfig       = 3
	exitStoreRuntime       = 4
	exitMalformedData      = 5
	exitUnknown            = 6
	exitConfigNotFound     = 7
	exitConfigParse        = 8
	exitFileHandling       = 9
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("configuration error", "error", err)
		var notFound *config.NotFoundError
		if errors.As(err, &notFound) {
			os.Exit(exitConfigNotFound)
		}
		os.Exit(exitConfigParse)
	}

	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(exitStatus(err))
	}
}

func exitStatus(err error) int {
	var (
		malformedRecord   *domain.MalformedRecordError
		malformedResponse *domain.MalformedResponseError
		remote            *domain.RemoteServiceError
		corrupt           *domain.CorruptStoredSegmentsError
		unavailable       *domain.StoreUnavailableError
		storeConfig       *influx.ConfigError
	)
	switch {
	case errors.As(err, &storeConfig):
		return exitInvalidStoreConfig
	case errors.As(err, &malformedRecord), errors.As(err, &malformedResponse), errors.As(err, &corrupt):
		return exitMalformedData
	case errors.As(err, &unavailable):
		return exitStoreRuntime
	case errors.As(err, &remote):
		return exitClientConfig
	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return exitFileHandling
	default:
		return exitUnknown
	}
}
