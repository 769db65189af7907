package restserver

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/radiativepower/internal/metrics"
	"github.com/chrissnell/radiativepower/internal/storage"
	"github.com/chrissnell/radiativepower/pkg/modelerr"
	"github.com/chrissnell/radiativepower/pkg/responseformat"
	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/chrissnell/radiativepower/pkg/solar"
	"github.com/chrissnell/radiativepower/pkg/units"
)

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

// errBadParameter marks request validation failures
var errBadParameter = errors.New("bad parameter")

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

type params struct {
	req  *http.Request
	errs []error
}

func (p *params) float(name string, def *float64) float64 {
	raw := strings.TrimSpace(p.req.URL.Query().Get(name))
	if raw == "" {
		if def != nil {
			return *def
		}
		p.errs = append(p.errs, fmt.Errorf("%w: %s is required", errBadParameter, name))
		return math.NaN()
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.errs = append(p.errs, fmt.Errorf("%w: %s=%q is not a finite number", errBadParameter, name, raw))
		return math.NaN()
	}
	return v
}

// positive reads a float that must be strictly greater than zero, such as an
// absolute temperature or a bandgap.
func (p *params) positive(name string, def *float64) float64 {
	v := p.float(name, def)
	if !math.IsNaN(v) && v <= 0 {
		p.errs = append(p.errs, fmt.Errorf("%w: %s=%v must be positive", errBadParameter, name, v))
	}
	return v
}

// below records an error unless v is strictly less than limit.
func (p *params) below(name string, v, limit float64) {
	if !math.IsNaN(v) && !math.IsNaN(limit) && v >= limit {
		p.errs = append(p.errs, fmt.Errorf("%w: %s=%v must be below the bandgap %v", errBadParameter, name, v, limit))
	}
}

func (p *params) time(name string) time.Time {
	raw := strings.TrimSpace(p.req.URL.Query().Get(name))
	if raw == "" {
		p.errs = append(p.errs, fmt.Errorf("%w: %s is required", errBadParameter, name))
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	p.errs = append(p.errs, fmt.Errorf("%w: %s=%q is not an RFC 3339 time", errBadParameter, name, raw))
	return time.Time{}
}

func (p *params) location() sky.Location {
	loc := sky.Location{Latitude: p.float("lat", nil), Longitude: p.float("lon", nil)}
	if math.Abs(loc.Latitude) > 90 || math.Abs(loc.Longitude) > 180 {
		p.errs = append(p.errs, fmt.Errorf("%w: location %s out of range", errBadParameter, loc))
	}
	return loc
}

func (p *params) err() error {
	return errors.Join(p.errs...)
}

// writeError maps an error onto a status code: 400 for invalid parameters,
// 422 for missing climate data and 500 for model faults
func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status, kind := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, errBadParameter):
		status, kind = http.StatusBadRequest, "bad_request"
	case errors.Is(err, modelerr.ErrInsufficientData):
		status, kind = http.StatusUnprocessableEntity, metrics.Outcome(err)
	case modelerr.KindOf(err) != 0:
		kind = metrics.Outcome(err)
	}
	if status >= http.StatusInternalServerError {
		h.controller.logger.Errorw("request failed", "path", req.URL.Path, "error", err)
	}
	h.formatter.WriteError(w, req, status, kind, err)
}

// GetMaxPowerPoint handles /api/v1/mpp?bandgap=&t_sky=&t_cell=
func (h *Handlers) GetMaxPowerPoint(w http.ResponseWriter, req *http.Request) {
	def := float64(h.controller.models.Bandgap)
	p := &params{req: req}
	eg := p.positive("bandgap", &def)
	tSky := p.positive("t_sky", nil)
	tCell := p.positive("t_cell", nil)
	if err := p.err(); err != nil {
		h.writeError(w, req, err)
		return
	}

	start := time.Now()
	r, err := h.controller.models.Tracker.MaxPowerPoint(units.Electronvolt(eg), units.Kelvin(tSky), units.Kelvin(tCell))
	h.controller.metrics.ObserveEvaluation(metrics.OpMaxPowerPoint, start, err)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	h.formatter.WriteResponse(w, req, MaxPowerPointResponse{
		Bandgap:         eg,
		SkyTemperature:  tSky,
		CellTemperature: tCell,
		OptimalVoltage:  float64(r.OptimalVoltage),
		MaxPower:        float64(r.MaxPower),
		AtBoundary:      r.AtBoundary,
		Evaluations:     r.Evaluations,
		Cached:          r.Cached,
	}, nil)
}

// GetPower handles /api/v1/power?t_surface=&t_sky=&bandgap=&voltage=
func (h *Handlers) GetPower(w http.ResponseWriter, req *http.Request) {
	def := float64(h.controller.models.Bandgap)
	p := &params{req: req}
	tSurface := p.positive("t_surface", nil)
	tSky := p.positive("t_sky", nil)
	eg := p.positive("bandgap", &def)
	v := p.float("voltage", nil)
	p.below("voltage", v, eg)
	if err := p.err(); err != nil {
		h.writeError(w, req, err)
		return
	}

	start := time.Now()
	power, err := h.controller.models.Power.ExtractablePowerDensity(units.Kelvin(tSurface), units.Kelvin(tSky), units.Electronvolt(eg), units.Volt(v))
	h.controller.metrics.ObserveEvaluation(metrics.OpPower, start, err)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	h.formatter.WriteResponse(w, req, PowerResponse{
		SurfaceTemperature: tSurface,
		SkyTemperature:     tSky,
		Bandgap:            eg,
		Voltage:            v,
		Power:              float64(power),
	}, nil)
}

// GetEmissivity handles /api/v1/sky/emissivity?time=&lat=&lon=
func (h *Handlers) GetEmissivity(w http.ResponseWriter, req *http.Request) {
	p := &params{req: req}
	t := p.time("time")
	loc := p.location()
	if err := p.err(); err != nil {
		h.writeError(w, req, err)
		return
	}

	start := time.Now()
	e, err := h.controller.models.Sky.Emissivity().Emissivity(req.Context(), t, loc)
	h.controller.metrics.ObserveEvaluation(metrics.OpEmissivity, start, err)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	h.formatter.WriteResponse(w, req, EmissivityResponse{
		Time:       t,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Emissivity: e,
	}, nil)
}

// GetSkyTemperature handles /api/v1/sky/temperature?time=&lat=&lon=&formula=
func (h *Handlers) GetSkyTemperature(w http.ResponseWriter, req *http.Request) {
	p := &params{req: req}
	t := p.time("time")
	loc := p.location()

	formula := h.controller.models.Formula
	if raw := req.URL.Query().Get("formula"); raw != "" {
		f, err := sky.ParseFormula(raw)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%w: %v", errBadParameter, err))
		}
		formula = f
	}
	if err := p.err(); err != nil {
		h.writeError(w, req, err)
		return
	}

	start := time.Now()
	k, err := h.controller.models.Sky.SkyTemperature(req.Context(), t, loc, formula)
	h.controller.metrics.ObserveEvaluation(metrics.OpSkyTemperature, start, err)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	resp := SkyTemperatureResponse{
		Time:           t,
		Latitude:       loc.Latitude,
		Longitude:      loc.Longitude,
		Formula:        formula.String(),
		SkyTemperature: float64(k),
		Night:          solar.IsNight(t, loc.Latitude, loc.Longitude),
	}
	if rise, set, ok := solar.Daylight(t, loc.Latitude, loc.Longitude); ok {
		resp.Sunrise, resp.Sunset = &rise, &set
	}
	h.formatter.WriteResponse(w, req, resp, nil)
}

// GetHealth reports the last health check of every storage backend. It
// answers 503 when any backend is unhealthy.
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{Status: storage.StatusHealthy, Storage: map[string]storage.HealthData{}}
	if h.controller.health != nil {
		resp.Storage = h.controller.health.GetAllHealth()
	}

	status := http.StatusOK
	for _, s := range resp.Storage {
		if s.Status != storage.StatusHealthy {
			resp.Status = storage.StatusUnhealthy
			status = http.StatusServiceUnavailable
		}
	}
	h.formatter.WriteStatus(w, req, status, resp, nil)
}
