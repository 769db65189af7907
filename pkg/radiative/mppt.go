package radiative

import (
	"fmt"
	"math"
	"strings"

	"github.com/chrissnell/radiativepower/pkg/modelerr"
	"github.com/chrissnell/radiativepower/pkg/units"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Strategy selects how the tracker searches bias voltage.
type Strategy int

const (
	// StrategyBounded runs Brent's bounded scalar minimisation.
	StrategyBounded Strategy = iota
	// StrategyGrid evaluates a fixed voltage grid and keeps the best point.
	StrategyGrid
)

func (s Strategy) String() string {
	switch s {
	case StrategyBounded:
		return "bounded"
	case StrategyGrid:
		return "grid"
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseStrategy maps a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bounded", "brent":
		return StrategyBounded, nil
	case "grid":
		return StrategyGrid, nil
	}
	return 0, fmt.Errorf("unknown search strategy %q", s)
}

// SearchSettings configures the voltage search.
type SearchSettings struct {
	Strategy   Strategy
	MinVoltage units.Volt
	MaxVoltage units.Volt

	// VoltageTolerance is the absolute bracket width at which the bounded
	// search stops.
	VoltageTolerance float64
	// MaxEvaluations caps power evaluations in the bounded search.
	MaxEvaluations int

	// GridStep is the grid spacing; grid voltages are quantised to
	// GridDecimals places so the grid is reproducible.
	GridStep     units.Volt
	GridDecimals int32

	// TemperatureDecimals is the precision temperatures are rounded to
	// before searching and caching (1 = 0.1 K).
	TemperatureDecimals int32
	// BandgapDecimals is the precision of the bandgap in eV.
	BandgapDecimals int32
}

// DefaultSearchSettings searches [−5 V, 0 V] with Brent's method.
func DefaultSearchSettings() SearchSettings {
	return SearchSettings{
		Strategy:            StrategyBounded,
		MinVoltage:          -5,
		MaxVoltage:          0,
		VoltageTolerance:    1e-5,
		MaxEvaluations:      500,
		GridStep:            0.001,
		GridDecimals:        3,
		TemperatureDecimals: 1,
		BandgapDecimals:     4,
	}
}

// DefaultGridSettings scans −50 mV to −10 mV in 1 mV steps.
func DefaultGridSettings() SearchSettings {
	s := DefaultSearchSettings()
	s.Strategy = StrategyGrid
	s.MinVoltage = -0.05
	s.MaxVoltage = -0.01
	return s
}

// Validate checks the search interval and grid.
func (s SearchSettings) Validate() error {
	if !(s.MinVoltage < s.MaxVoltage) {
		return fmt.Errorf("voltage interval [%v, %v] is empty", s.MinVoltage, s.MaxVoltage)
	}
	switch s.Strategy {
	case StrategyBounded:
		if s.VoltageTolerance <= 0 {
			return fmt.Errorf("voltage tolerance must be positive")
		}
		if s.MaxEvaluations <= 0 {
			return fmt.Errorf("max evaluations must be positive")
		}
	case StrategyGrid:
		if s.GridStep <= 0 {
			return fmt.Errorf("grid step must be positive")
		}
	default:
		return fmt.Errorf("unknown search strategy %v", s.Strategy)
	}
	return nil
}

// fingerprint identifies the settings that change where the search lands.
func (s SearchSettings) fingerprint() string {
	switch s.Strategy {
	case StrategyGrid:
		return fmt.Sprintf("grid[%v,%v]/%v", s.MinVoltage, s.MaxVoltage, s.GridStep)
	default:
		return fmt.Sprintf("%s[%v,%v]/%v", s.Strategy, s.MinVoltage, s.MaxVoltage, s.VoltageTolerance)
	}
}

// OptimizationResult is the maximum power point for one operating point.
type OptimizationResult struct {
	OptimalVoltage units.Volt                `msgpack:"v" json:"optimal_voltage"`
	MaxPower       units.WattsPerSquareMeter `msgpack:"p" json:"max_power"`
	// AtBoundary is set when the optimum sits on an edge of the search
	// interval. The result is accepted as-is.
	AtBoundary  bool `msgpack:"b" json:"at_boundary"`
	Evaluations int  `msgpack:"n" json:"evaluations"`
	// Cached is set when the result was served from the cache.
	Cached bool `msgpack:"-" json:"cached"`
}

// Tracker finds the bias voltage that maximises power output.
type Tracker struct {
	model    *PowerModel
	cache    *Cache
	settings SearchSettings
	search   string
	logger   *zap.SugaredLogger
}

// NewTracker returns a tracker using model. cache may be nil to disable
// memoisation and may be shared between trackers; logger may be nil.
func NewTracker(model *PowerModel, cache *Cache, settings SearchSettings, logger *zap.SugaredLogger) (*Tracker, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if model == nil {
		model = NewPowerModel(nil)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Tracker{
		model:    model,
		cache:    cache,
		settings: settings,
		search:   settings.fingerprint(),
		logger:   logger,
	}, nil
}

// Settings returns the tracker's search settings.
func (t *Tracker) Settings() SearchSettings { return t.settings }

// Cache returns the injected cache, which may be nil.
func (t *Tracker) Cache() *Cache { return t.cache }

// Quantize returns the cache key for an operating point together with the
// rounded values the search runs on.
func (t *Tracker) Quantize(bandgap units.Electronvolt, tSky, tCell units.Kelvin) (Key, units.Electronvolt, units.Kelvin, units.Kelvin) {
	egKey, eg := quantize(float64(bandgap), t.settings.BandgapDecimals)
	skyKey, sky := quantize(float64(tSky), t.settings.TemperatureDecimals)
	cellKey, cell := quantize(float64(tCell), t.settings.TemperatureDecimals)
	return Key{Bandgap: egKey, SkyTemperature: skyKey, CellTemperature: cellKey, Search: t.search},
		units.Electronvolt(eg), units.Kelvin(sky), units.Kelvin(cell)
}

// MaxPowerPoint returns the optimal voltage and maximum power density for
// the operating point, after rounding it to the configured precision. Repeated
// calls with inputs that round identically return bit-identical results.
func (t *Tracker) MaxPowerPoint(bandgap units.Electronvolt, tSky, tCell units.Kelvin) (OptimizationResult, error) {
	for _, v := range []float64{float64(bandgap), float64(tSky), float64(tCell)} {
		if math.IsNaN(v) {
			return OptimizationResult{}, modelerr.InsufficientDataf("radiative.MaxPowerPoint",
				"missing input (Eg=%v, Tsky=%v, Tcell=%v)", bandgap, tSky, tCell)
		}
		if math.IsInf(v, 0) {
			return OptimizationResult{}, modelerr.RangeViolationf("radiative.MaxPowerPoint",
				"infinite input (Eg=%v, Tsky=%v, Tcell=%v)", bandgap, tSky, tCell)
		}
	}

	key, eg, sky, cell := t.Quantize(bandgap, tSky, tCell)
	if r, ok := t.cache.Get(key); ok {
		r.Cached = true
		return r, nil
	}

	absorbed, err := t.model.AbsorbedFlux(eg, sky)
	if err != nil {
		return OptimizationResult{}, err
	}
	power := func(v float64) (float64, error) {
		p, err := t.model.powerAt(absorbed, cell, eg, units.Volt(v))
		return float64(p), err
	}

	var r OptimizationResult
	switch t.settings.Strategy {
	case StrategyGrid:
		r, err = t.searchGrid(power)
	default:
		r, err = t.searchBounded(power)
	}
	if err != nil {
		return OptimizationResult{}, err
	}

	t.logger.Debugw("computed max power point",
		"key", key.String(),
		"strategy", t.settings.Strategy.String(),
		"voltage", float64(r.OptimalVoltage),
		"power", float64(r.MaxPower),
		"evaluations", r.Evaluations,
		"at_boundary", r.AtBoundary,
	)
	if r.AtBoundary {
		t.logger.Debugf("optimum for %s pinned to search interval edge at %v", key, r.OptimalVoltage)
	}

	t.cache.Put(key, r)
	return r, nil
}

func (t *Tracker) searchBounded(power func(float64) (float64, error)) (OptimizationResult, error) {
	lo, hi := float64(t.settings.MinVoltage), float64(t.settings.MaxVoltage)
	negPower := func(v float64) (float64, error) {
		p, err := power(v)
		return -p, err
	}

	v, f, evals, err := brentBounded(negPower, lo, hi, t.settings.VoltageTolerance, t.settings.MaxEvaluations)
	if err != nil {
		return OptimizationResult{}, err
	}

	edge := 2 * t.settings.VoltageTolerance
	return OptimizationResult{
		OptimalVoltage: units.Volt(v),
		MaxPower:       units.WattsPerSquareMeter(-f),
		AtBoundary:     v-lo <= edge || hi-v <= edge,
		Evaluations:    evals,
	}, nil
}

// gridVoltages returns the inclusive grid from MinVoltage to MaxVoltage.
func (t *Tracker) gridVoltages() []float64 {
	places := t.settings.GridDecimals
	lo := decimal.NewFromFloat(float64(t.settings.MinVoltage)).Round(places)
	hi := decimal.NewFromFloat(float64(t.settings.MaxVoltage)).Round(places)
	step := decimal.NewFromFloat(float64(t.settings.GridStep)).Round(places)
	if !step.IsPositive() {
		// A step finer than the grid precision collapses to zero.
		step = decimal.New(1, -places)
	}

	var grid []float64
	for v := lo; v.LessThanOrEqual(hi); v = v.Add(step) {
		f, _ := v.Float64()
		grid = append(grid, f)
	}
	return grid
}

func (t *Tracker) searchGrid(power func(float64) (float64, error)) (OptimizationResult, error) {
	grid := t.gridVoltages()
	if len(grid) == 0 {
		return OptimizationResult{}, fmt.Errorf("voltage grid is empty")
	}

	var evalErr error
	evals := 0
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			if evalErr != nil {
				return math.Inf(1)
			}
			evals++
			p, err := power(x[0])
			if err != nil {
				evalErr = err
				return math.Inf(1)
			}
			return -p
		},
	}

	method := &optimize.ListSearch{Locs: mat.NewDense(len(grid), 1, grid)}
	settings := &optimize.Settings{Converger: optimize.NeverTerminate{}}
	res, err := optimize.Minimize(problem, []float64{grid[0]}, settings, method)
	if evalErr != nil {
		return OptimizationResult{}, evalErr
	}
	if err != nil {
		return OptimizationResult{}, fmt.Errorf("grid search: %w", err)
	}

	v := res.X[0]
	return OptimizationResult{
		OptimalVoltage: units.Volt(v),
		MaxPower:       units.WattsPerSquareMeter(-res.F),
		AtBoundary:     v == grid[0] || v == grid[len(grid)-1],
		Evaluations:    evals,
	}, nil
}
