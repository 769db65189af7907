package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/chrissnell/radiativepower/internal/assessment"
	"github.com/chrissnell/radiativepower/internal/controllers/restserver"
	"github.com/chrissnell/radiativepower/internal/metrics"
	"github.com/chrissnell/radiativepower/internal/storage"
	"github.com/chrissnell/radiativepower/pkg/config"
	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Run modes.
const (
	ModeAssess = "assess"
	ModeServe  = "serve"
)

const healthCheckInterval = 60 * time.Second

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
}

// New creates a new application instance. Defaults are applied to cfg.
func New(cfg *config.ConfigData, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	cfg.ApplyDefaults()
	return &App{
		cfg:    cfg,
		logger: logger,
	}
}

// Run starts the application in the given mode. An assessment returns when
// every coordinate has been evaluated; the server blocks until shutdown.
func (a *App) Run(ctx context.Context, mode string) error {
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if mode != ModeAssess && mode != ModeServe {
		return fmt.Errorf("unknown mode %q; use %q or %q", mode, ModeAssess, ModeServe)
	}

	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			a.logger.Info("shutdown signal received, initiating graceful shutdown...")
			cancel()
		case <-ctx.Done():
		}
	}()

	store, err := LoadClimate(a.cfg.Climate, a.logger.Named("climate"))
	if err != nil {
		return fmt.Errorf("loading climate data: %w", err)
	}
	a.logger.Infof("climate data covers %d grid points", len(store.Points()))

	models, err := BuildModels(a.cfg, store, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := SaveSnapshot(a.cfg.Model.CacheSnapshot, models.Cache); err != nil {
			a.logger.Errorf("saving MPP cache snapshot: %v", err)
			return
		}
		if a.cfg.Model.CacheSnapshot != "" {
			a.logger.Infof("saved %d MPP cache entries to %s", models.Cache.Len(), a.cfg.Model.CacheSnapshot)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(reg)
	if err != nil {
		return err
	}
	if err := metrics.RegisterCache(reg, models.Cache); err != nil {
		return err
	}

	results, err := storage.New(ctx, a.cfg.Storage, a.logger.Named("storage"))
	if err != nil {
		results.Close()
		return err
	}
	defer func() {
		if err := results.Close(); err != nil {
			a.logger.Errorf("closing storage: %v", err)
		}
	}()
	health := storage.NewHealthManager()
	results.StartHealthMonitors(ctx, health, healthCheckInterval, a.logger.Named("health"))

	if a.cfg.REST != nil || mode == ModeServe {
		rc := config.RESTServerData{}
		if a.cfg.REST != nil {
			rc = *a.cfg.REST
		}
		rest, err := restserver.NewController(ctx, &wg, rc, restserver.Models{
			Power:   models.Power,
			Tracker: models.Tracker,
			Sky:     models.Sky,
			Bandgap: models.Bandgap,
			Formula: models.Formula,
		}, collector, health, a.logger.Named("rest"))
		if err != nil {
			return err
		}
		if err := rest.StartController(); err != nil {
			return err
		}
	}

	a.logger.Info("application started successfully")

	if mode == ModeAssess {
		err = a.assess(ctx, models, results, collector)
		cancel()
	} else {
		<-ctx.Done()
		a.logger.Info("context cancelled, shutting down...")
	}

	// Wait for all workers to terminate
	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return err
}

func (a *App) assess(ctx context.Context, models *Models, sink assessment.Sink, collector *metrics.Collector) error {
	cfg, err := RunnerConfig(a.cfg, models)
	if err != nil {
		return err
	}

	runner, err := assessment.NewRunner(cfg, models.Climate, models.Sky, models.Tracker, sink, collector, a.logger.Named("assessment"))
	if err != nil {
		return err
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("assessment %s: %w", cfg.Name, err)
	}

	for _, r := range summary.Results {
		if r.Error != "" {
			a.logger.Warnw("coordinate failed", "location", r.Location.String(), "error", r.Error)
			continue
		}
		a.logger.Infow("coordinate complete",
			"location", r.Location.String(),
			"total_kwh_per_square_m", r.TotalKWh,
			"hours", r.Hours,
			"skipped_hours", r.Skipped)
	}
	a.logger.Infof("assessment %s finished in %v: %d coordinates, %d failed",
		summary.Name, summary.Finished.Sub(summary.Started).Round(time.Millisecond), len(summary.Results), summary.Failed)
	return nil
}

// RunnerConfig converts the assessment section into a runner configuration.
func RunnerConfig(cfg *config.ConfigData, models *Models) (assessment.Config, error) {
	a := cfg.Assessment
	start, end, err := a.Period()
	if err != nil {
		return assessment.Config{}, fmt.Errorf("assessment period: %w", err)
	}

	coords := make([]sky.Location, 0, len(a.Coordinates))
	for _, p := range a.Coordinates {
		coords = append(coords, sky.Location{Latitude: p.Lat, Longitude: p.Lon})
	}

	var grid *assessment.GridSpec
	if g := a.Grid; g != nil {
		grid = &assessment.GridSpec{LatMin: g.LatMin, LatMax: g.LatMax, LonMin: g.LonMin, LonMax: g.LonMax, Step: g.Step}
	}

	return assessment.Config{
		Name:          a.Name,
		Bandgap:       models.Bandgap,
		Formula:       models.Formula,
		Start:         start,
		End:           end,
		Coordinates:   coords,
		Grid:          grid,
		BatchStart:    a.BatchStart,
		BatchQuantity: a.BatchQuantity,
		Workers:       a.Workers,
		NightOnly:     a.NightOnly,
	}, nil
}
