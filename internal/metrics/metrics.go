// Package metrics exposes Prometheus collectors for model evaluations, the
// maximum-power-point cache, batch assessments and the REST API.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/radiativepower/pkg/modelerr"
	"github.com/chrissnell/radiativepower/pkg/radiative"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "radiativepower"

// Operation labels.
const (
	OpMaxPowerPoint  = "max_power_point"
	OpPower          = "power"
	OpEmissivity     = "emissivity"
	OpSkyTemperature = "sky_temperature"
)

// Collector bundles the Prometheus metrics and provides helpers to record
// them. A nil *Collector records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Evaluations        *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec

	AssessmentPoints     *prometheus.CounterVec
	CoordinatesCompleted prometheus.Counter
	AssessmentEnergy     prometheus.Gauge
	AssessmentInProgress prometheus.Gauge

	HTTPRequests         *prometheus.CounterVec
	HTTPRequestDurations *prometheus.HistogramVec
}

// NewCollector registers metrics against reg, defaulting to the global
// Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	evaluations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "evaluations_total",
		Help:      "Model evaluations, labeled by operation and outcome.",
	}, []string{"operation", "outcome"}), "evaluations_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evaluation_duration_seconds",
		Help:      "Model evaluation latency in seconds.",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"operation"}), "evaluation_duration_seconds")
	if err != nil {
		return nil, err
	}

	points, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "assessment_points_total",
		Help:      "Hourly assessment points, labeled by outcome (evaluated, skipped, daytime).",
	}, []string{"outcome"}), "assessment_points_total")
	if err != nil {
		return nil, err
	}

	coordinates, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "assessment_coordinates_completed_total",
		Help:      "Coordinates whose hourly series has been evaluated and stored.",
	}), "assessment_coordinates_completed_total")
	if err != nil {
		return nil, err
	}

	energy, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "assessment_last_total_kwh_per_square_meter",
		Help:      "Total energy of the most recently completed coordinate.",
	}), "assessment_last_total_kwh_per_square_meter")
	if err != nil {
		return nil, err
	}

	inProgress, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "assessment_coordinates_in_progress",
		Help:      "Coordinates currently being evaluated.",
	}), "assessment_coordinates_in_progress")
	if err != nil {
		return nil, err
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Handled REST requests, labeled by route and status code.",
	}, []string{"route", "code"}), "http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "REST request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"}), "http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:             gatherer,
		Evaluations:          evaluations,
		EvaluationDuration:   durations,
		AssessmentPoints:     points,
		CoordinatesCompleted: coordinates,
		AssessmentEnergy:     energy,
		AssessmentInProgress: inProgress,
		HTTPRequests:         httpRequests,
		HTTPRequestDurations: httpDurations,
	}, nil
}

// RegisterCache exposes the hit, miss and entry counts of cache. The values
// are read from the cache at scrape time.
func RegisterCache(reg prometheus.Registerer, cache *radiative.Cache) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mpp_cache_hits_total",
			Help:      "Maximum-power-point cache hits.",
		}, func() float64 { return float64(cache.Stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mpp_cache_misses_total",
			Help:      "Maximum-power-point cache misses.",
		}, func() float64 { return float64(cache.Stats().Misses) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mpp_cache_entries",
			Help:      "Entries held by the maximum-power-point cache.",
		}, func() float64 { return float64(cache.Stats().Entries) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("registering cache metrics: %w", err)
		}
	}
	return nil
}

// Outcome maps an evaluation error to a metric label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := modelerr.KindOf(err); kind != 0 {
		return strings.ReplaceAll(kind.String(), " ", "_")
	}
	return "error"
}

// ObserveEvaluation records one model evaluation that started at start.
func (c *Collector) ObserveEvaluation(operation string, start time.Time, err error) {
	if c == nil {
		return
	}
	c.Evaluations.WithLabelValues(operation, Outcome(err)).Inc()
	c.EvaluationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObservePoint records the outcome of one hourly assessment point.
func (c *Collector) ObservePoint(outcome string) {
	if c == nil {
		return
	}
	c.AssessmentPoints.WithLabelValues(outcome).Inc()
}

// CoordinateStarted marks a coordinate as in progress.
func (c *Collector) CoordinateStarted() {
	if c == nil {
		return
	}
	c.AssessmentInProgress.Inc()
}

// CoordinateFinished records a finished coordinate; totalKWh is ignored when
// the coordinate failed.
func (c *Collector) CoordinateFinished(totalKWh float64, err error) {
	if c == nil {
		return
	}
	c.AssessmentInProgress.Dec()
	if err == nil {
		c.CoordinatesCompleted.Inc()
		c.AssessmentEnergy.Set(totalKWh)
	}
}

// ObserveHTTP records one handled REST request.
func (c *Collector) ObserveHTTP(route string, code int, d time.Duration) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	c.HTTPRequestDurations.WithLabelValues(route).Observe(d.Seconds())
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
