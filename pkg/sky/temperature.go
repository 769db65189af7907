package sky

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chrissnell/radiativepower/pkg/modelerr"
	"github.com/chrissnell/radiativepower/pkg/units"
	"go.uber.org/zap"
)

// Formula selects how the sky temperature is derived.
type Formula int

const (
	// FormulaMartinBerdahl scales the ambient temperature by ε^¼.
	FormulaMartinBerdahl Formula = iota
	// FormulaSwinbank is the empirical night-sky formula 0.0553·T^1.5
	// (DOI: 10.1016/0020-0891(89)90055-9).
	FormulaSwinbank
	// FormulaCloudySky inverts Stefan–Boltzmann on the measured downward
	// longwave flux (https://doi.org/10.3390/app10228057).
	FormulaCloudySky
)

// Formulas lists every formula in declaration order.
var Formulas = []Formula{FormulaMartinBerdahl, FormulaSwinbank, FormulaCloudySky}

func (f Formula) String() string {
	switch f {
	case FormulaMartinBerdahl:
		return "martin-berdahl"
	case FormulaSwinbank:
		return "swinbank"
	case FormulaCloudySky:
		return "cloudy-sky"
	}
	return fmt.Sprintf("formula(%d)", int(f))
}

// ParseFormula maps a configuration string to a Formula.
func ParseFormula(s string) (Formula, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "martin-berdahl", "martin_berdahl", "":
		return FormulaMartinBerdahl, nil
	case "swinbank":
		return FormulaSwinbank, nil
	case "cloudy-sky", "cloudy_sky":
		return FormulaCloudySky, nil
	}
	return 0, fmt.Errorf("unknown sky temperature formula %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Formula) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Formula) UnmarshalText(b []byte) error {
	parsed, err := ParseFormula(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// skyTemperatureFunc computes one formula variant.
type skyTemperatureFunc func(ctx context.Context, t time.Time, loc Location) (units.Kelvin, error)

// TemperatureModel converts climate observables into an effective sky
// temperature.
type TemperatureModel struct {
	provider   ClimateProvider
	emissivity *EmissivityModel
	logger     *zap.SugaredLogger
	formulas   map[Formula]skyTemperatureFunc
}

// NewTemperatureModel returns a model using provider for observables and
// emissivity for the Martin–Berdahl variant.
func NewTemperatureModel(provider ClimateProvider, emissivity *EmissivityModel, logger *zap.SugaredLogger) (*TemperatureModel, error) {
	if provider == nil {
		return nil, fmt.Errorf("temperature model requires a climate provider")
	}
	if emissivity == nil {
		var err error
		emissivity, err = NewEmissivityModel(provider, DefaultMartinBerdahl(), logger)
		if err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	m := &TemperatureModel{provider: provider, emissivity: emissivity, logger: logger}
	m.formulas = make(map[Formula]skyTemperatureFunc, len(Formulas))
	for _, f := range Formulas {
		switch f {
		case FormulaMartinBerdahl:
			m.formulas[f] = m.martinBerdahl
		case FormulaSwinbank:
			m.formulas[f] = m.swinbank
		case FormulaCloudySky:
			m.formulas[f] = m.cloudySky
		default:
			return nil, fmt.Errorf("formula %v has no implementation", f)
		}
	}
	return m, nil
}

// Emissivity returns the model's emissivity component.
func (m *TemperatureModel) Emissivity() *EmissivityModel { return m.emissivity }

// SkyTemperature returns the effective sky temperature at t and loc. A NaN
// result from missing observables is an InsufficientData error.
func (m *TemperatureModel) SkyTemperature(ctx context.Context, t time.Time, loc Location, formula Formula) (units.Kelvin, error) {
	const op = "sky.SkyTemperature"

	compute, ok := m.formulas[formula]
	if !ok {
		return 0, fmt.Errorf("unknown sky temperature formula %v", formula)
	}

	tSky, err := compute(ctx, t, loc)
	if err != nil {
		return 0, err
	}
	if tSky.IsNaN() {
		return 0, modelerr.InsufficientDataf(op, "%s sky temperature is NaN at %s %s", formula, t.Format(time.RFC3339), loc)
	}
	if math.IsInf(float64(tSky), 0) || tSky <= 0 {
		return 0, modelerr.RangeViolationf(op, "%s sky temperature %v is not a positive finite temperature", formula, tSky)
	}
	return tSky, nil
}

func (m *TemperatureModel) ambient(ctx context.Context, t time.Time, loc Location) (units.Kelvin, error) {
	q, err := m.provider.AmbientTemperature(ctx, t, loc)
	if err != nil {
		return 0, fmt.Errorf("2 m temperature: %w", err)
	}
	return q.Kelvin()
}

func (m *TemperatureModel) martinBerdahl(ctx context.Context, t time.Time, loc Location) (units.Kelvin, error) {
	tAmbient, err := m.ambient(ctx, t, loc)
	if err != nil {
		return 0, err
	}
	if tAmbient.IsNaN() {
		return tAmbient, nil
	}
	eps, err := m.emissivity.Emissivity(ctx, t, loc)
	if err != nil {
		return 0, err
	}
	return units.Kelvin(math.Pow(eps, 0.25) * float64(tAmbient)), nil
}

func (m *TemperatureModel) swinbank(ctx context.Context, t time.Time, loc Location) (units.Kelvin, error) {
	tAmbient, err := m.ambient(ctx, t, loc)
	if err != nil {
		return 0, err
	}
	return units.Kelvin(0.0553 * math.Pow(float64(tAmbient), 1.5)), nil
}

func (m *TemperatureModel) cloudySky(ctx context.Context, t time.Time, loc Location) (units.Kelvin, error) {
	q, err := m.provider.DownwardThermalRadiation(ctx, t, loc)
	if err != nil {
		return 0, fmt.Errorf("downward thermal radiation: %w", err)
	}
	flux, err := q.WattsPerSquareMeter()
	if err != nil {
		return 0, err
	}
	return units.Kelvin(math.Pow(float64(flux)/units.StefanBoltzmann, 0.25)), nil
}
