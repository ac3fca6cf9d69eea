package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/climatrend/climatrend/internal/log"
	"github.com/climatrend/climatrend/internal/observability"
	"github.com/climatrend/climatrend/internal/pipeline"
	"github.com/climatrend/climatrend/internal/server"
	"github.com/climatrend/climatrend/internal/sink"
	"github.com/climatrend/climatrend/internal/source"
	pgsource "github.com/climatrend/climatrend/internal/source/postgres"
	"github.com/climatrend/climatrend/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run executes one analysis run and blocks until it completes or a
// shutdown signal arrives
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	src, err := a.buildSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	exp, err := a.buildSink(cfg)
	if err != nil {
		return err
	}
	defer exp.Close()

	metrics := observability.NewMetrics()
	pipe, err := pipeline.New(src, exp, metrics, a.logger, cfg)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	var statusServer *server.Server
	if cfg.HTTP != nil {
		statusServer = server.New(cfg.HTTP.Listen, pipe, a.logger)
		statusServer.Start()
	}

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			log.Info("shutdown signal received, cancelling run...")
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := pipe.Run(ctx)

	if statusServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("status server shutdown: %v", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	log.Info("analysis run complete")
	return nil
}

func (a *App) buildSource(cfg *config.ConfigData) (source.RasterSource, error) {
	switch cfg.Source.Backend {
	case "", "postgres":
		tables := make(map[string]string, len(cfg.Datasets))
		for _, ds := range cfg.Datasets {
			if ds.Table != "" {
				tables[ds.ID] = ds.Table
			}
		}
		return pgsource.New(cfg.Source.DSN, tables, a.logger), nil
	default:
		return nil, fmt.Errorf("unsupported source backend: %s", cfg.Source.Backend)
	}
}

func (a *App) buildSink(cfg *config.ConfigData) (sink.Exporter, error) {
	switch cfg.Export.Backend {
	case "", "file":
		return sink.NewFileSink(cfg.Export.Directory, a.logger)
	case "postgres":
		return sink.NewPostgresSink(cfg.Export.DSN, a.logger), nil
	default:
		return nil, fmt.Errorf("unsupported export backend: %s", cfg.Export.Backend)
	}
}
