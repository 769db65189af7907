// Package assessment evaluates the thermoradiative power resource over a set
// of coordinates and an hourly period, and hands each coordinate's series to
// a Sink.
package assessment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chrissnell/radiativepower/internal/metrics"
	"github.com/chrissnell/radiativepower/pkg/modelerr"
	"github.com/chrissnell/radiativepower/pkg/radiative"
	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/chrissnell/radiativepower/pkg/solar"
	"github.com/chrissnell/radiativepower/pkg/units"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Point outcomes as reported to metrics.
const (
	PointEvaluated = "evaluated"
	PointSkipped   = "skipped"
	PointDaytime   = "daytime"
)

// Sink receives the series of every completed coordinate.
type Sink interface {
	SaveSeries(ctx context.Context, s *Series) error
}

// Config describes one assessment run.
type Config struct {
	Name    string
	Bandgap units.Electronvolt
	Formula sky.Formula
	// Start and End are calendar dates; every hour of both is included.
	Start, End time.Time

	Coordinates []sky.Location
	Grid        *GridSpec
	// BatchStart and BatchQuantity select a slice of the coordinate list.
	BatchStart    int
	BatchQuantity int

	Workers int
	// NightOnly drops hours when the sun is above the horizon.
	NightOnly bool
}

// CoordinateResult is the outcome of one coordinate within a run.
type CoordinateResult struct {
	Location sky.Location `json:"location"`
	TotalKWh float64      `json:"total_kwh_per_square_m"`
	Hours    int          `json:"hours"`
	Skipped  int          `json:"skipped_hours"`
	Error    string       `json:"error,omitempty"`
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID    uuid.UUID          `json:"run_id"`
	Name     string             `json:"name"`
	Started  time.Time          `json:"started"`
	Finished time.Time          `json:"finished"`
	Results  []CoordinateResult `json:"results"`
	Failed   int                `json:"failed"`
}

// Runner evaluates an assessment.
type Runner struct {
	cfg     Config
	climate sky.ClimateProvider
	sky     *sky.TemperatureModel
	tracker *radiative.Tracker
	sink    Sink
	metrics *metrics.Collector
	logger  *zap.SugaredLogger
}

// NewRunner validates cfg and returns a runner. sink and collector may be
// nil.
func NewRunner(cfg Config, climate sky.ClimateProvider, skyModel *sky.TemperatureModel, tracker *radiative.Tracker, sink Sink, collector *metrics.Collector, logger *zap.SugaredLogger) (*Runner, error) {
	if climate == nil || skyModel == nil || tracker == nil {
		return nil, errors.New("assessment needs a climate provider, a sky model and a tracker")
	}
	if cfg.End.Before(cfg.Start) {
		return nil, fmt.Errorf("assessment end %s is before start %s", cfg.End.Format(time.DateOnly), cfg.Start.Format(time.DateOnly))
	}
	if !(cfg.Bandgap > 0) {
		return nil, fmt.Errorf("bandgap must be positive, got %v", cfg.Bandgap)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Formula.String()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{
		cfg:     cfg,
		climate: climate,
		sky:     skyModel,
		tracker: tracker,
		sink:    sink,
		metrics: collector,
		logger:  logger,
	}, nil
}

// Plan returns the coordinates this run will evaluate, in order.
func (r *Runner) Plan() []sky.Location {
	return Batch(Coordinates(r.cfg.Coordinates, r.cfg.Grid), r.cfg.BatchStart, r.cfg.BatchQuantity)
}

// Run evaluates every planned coordinate with up to Workers in parallel.
// Model failures abort only their coordinate and are reported in the
// summary; a sink failure or cancellation stops the run.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	plan := r.Plan()
	summary := &RunSummary{
		RunID:   uuid.New(),
		Name:    r.cfg.Name,
		Started: time.Now(),
		Results: make([]CoordinateResult, len(plan)),
	}
	hours := Hours(r.cfg.Start, r.cfg.End)

	r.logger.Infow("starting assessment",
		"run_id", summary.RunID,
		"name", r.cfg.Name,
		"formula", r.cfg.Formula.String(),
		"coordinates", len(plan),
		"hours", len(hours),
		"workers", r.cfg.Workers,
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i, loc := range plan {
		if gctx.Err() != nil {
			break
		}
		i, loc := i, loc
		g.Go(func() error {
			r.metrics.CoordinateStarted()
			series, err := r.evaluate(gctx, summary.RunID, loc, hours)

			res := CoordinateResult{Location: loc}
			if series != nil {
				res.TotalKWh = series.TotalKWh
				res.Hours = len(series.Rows)
				res.Skipped = series.Skipped
			}

			if err == nil && r.sink != nil {
				if serr := r.sink.SaveSeries(gctx, series); serr != nil {
					r.metrics.CoordinateFinished(0, serr)
					return fmt.Errorf("saving series for %s: %w", loc, serr)
				}
			}
			r.metrics.CoordinateFinished(res.TotalKWh, err)

			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Errorw("coordinate failed", "location", loc.String(), "error", err)
				res.Error = err.Error()
			} else {
				r.logger.Infow("coordinate complete",
					"location", loc.String(),
					"total_kwh_per_square_m", res.TotalKWh,
					"hours", res.Hours,
					"skipped", res.Skipped,
				)
			}

			mu.Lock()
			summary.Results[i] = res
			if err != nil {
				summary.Failed++
			}
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	summary.Finished = time.Now()
	if err != nil {
		return summary, err
	}

	r.logger.Infow("assessment complete",
		"run_id", summary.RunID,
		"coordinates", len(plan),
		"failed", summary.Failed,
		"elapsed", summary.Finished.Sub(summary.Started).String(),
	)
	return summary, nil
}

// Evaluate computes the series for a single coordinate without storing it.
func (r *Runner) Evaluate(ctx context.Context, loc sky.Location) (*Series, error) {
	return r.evaluate(ctx, uuid.New(), loc, Hours(r.cfg.Start, r.cfg.End))
}

func (r *Runner) evaluate(ctx context.Context, runID uuid.UUID, loc sky.Location, hours []time.Time) (*Series, error) {
	if c, ok := r.climate.(interface{ Covers(sky.Location) bool }); ok && !c.Covers(loc) {
		return nil, fmt.Errorf("no climate data near %s", loc)
	}

	series := &Series{
		RunID:    runID,
		Name:     r.cfg.Name,
		Formula:  r.cfg.Formula,
		Bandgap:  r.cfg.Bandgap,
		Location: loc,
		Start:    firstHour(r.cfg.Start),
		End:      lastHour(r.cfg.End),
		Rows:     make([]Row, 0, len(hours)),
	}

	for _, t := range hours {
		if err := ctx.Err(); err != nil {
			return series, err
		}
		if r.cfg.NightOnly && !solar.IsNight(t, loc.Latitude, loc.Longitude) {
			r.metrics.ObservePoint(PointDaytime)
			continue
		}

		row, err := r.evaluateHour(ctx, t, loc)
		if err != nil {
			if modelerr.IsRecoverable(err) {
				r.logger.Debugw("skipping hour", "location", loc.String(), "time", t, "reason", err)
				r.metrics.ObservePoint(PointSkipped)
				series.Skipped++
				continue
			}
			return series, fmt.Errorf("%s at %s: %w", loc, t.Format(time.RFC3339), err)
		}
		r.metrics.ObservePoint(PointEvaluated)
		series.add(row)
	}

	series.summarize()
	return series, nil
}

func (r *Runner) evaluateHour(ctx context.Context, t time.Time, loc sky.Location) (Row, error) {
	q, err := r.climate.SkinTemperature(ctx, t, loc)
	if err != nil {
		return Row{}, err
	}
	if q.IsNaN() {
		return Row{}, modelerr.InsufficientDataf("assessment.SurfaceTemperature", "skin temperature missing at %s", t.Format(time.RFC3339))
	}
	tSurf, err := q.Kelvin()
	if err != nil {
		return Row{}, err
	}

	start := time.Now()
	tSky, err := r.sky.SkyTemperature(ctx, t, loc, r.cfg.Formula)
	r.metrics.ObserveEvaluation(metrics.OpSkyTemperature, start, err)
	if err != nil {
		return Row{}, err
	}

	start = time.Now()
	mpp, err := r.tracker.MaxPowerPoint(r.cfg.Bandgap, tSky, tSurf)
	r.metrics.ObserveEvaluation(metrics.OpMaxPowerPoint, start, err)
	if err != nil {
		return Row{}, err
	}

	return Row{
		Time:               t,
		Power:              mpp.MaxPower,
		OptimalVoltage:     mpp.OptimalVoltage,
		SkyTemperature:     tSky,
		SurfaceTemperature: tSurf,
		AtBoundary:         mpp.AtBoundary,
	}, nil
}
