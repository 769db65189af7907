package sky

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/radiativepower/pkg/modelerr"
	"go.uber.org/zap"
)

// MartinBerdahlCoefficients parameterise the Martin–Berdahl sky emissivity
// model (https://publications.ibpsa.org/proceedings/bs/2017/papers/BS2017_569.pdf).
type MartinBerdahlCoefficients struct {
	// Clear-sky base: C0 + C1·(Tdp/100) + C2·(Tdp/100)², Tdp in °C.
	C0 float64 `json:"c0" yaml:"c0"`
	C1 float64 `json:"c1" yaml:"c1"`
	C2 float64 `json:"c2" yaml:"c2"`
	// Diurnal amplitude: Diurnal·cos(2π·(hour+1)/24).
	Diurnal float64 `json:"diurnal" yaml:"diurnal"`
	// Elevation correction: Elevation·(P − ReferencePressure), P in mbar.
	Elevation         float64 `json:"elevation" yaml:"elevation"`
	ReferencePressure float64 `json:"reference_pressure" yaml:"reference_pressure"`
	// CloudScaleHeight is the decay height of the cloud temperature factor
	// exp(−h/CloudScaleHeight), in metres.
	CloudScaleHeight float64 `json:"cloud_scale_height" yaml:"cloud_scale_height"`
}

// DefaultMartinBerdahl returns the published coefficients.
func DefaultMartinBerdahl() MartinBerdahlCoefficients {
	return MartinBerdahlCoefficients{
		C0:                0.711,
		C1:                0.56,
		C2:                0.73,
		Diurnal:           0.013,
		Elevation:         0.00012,
		ReferencePressure: 1000,
		CloudScaleHeight:  8200,
	}
}

// Validate rejects coefficient sets the model cannot use.
func (c MartinBerdahlCoefficients) Validate() error {
	if c.CloudScaleHeight <= 0 {
		return fmt.Errorf("cloud scale height must be positive, got %v", c.CloudScaleHeight)
	}
	for name, v := range map[string]float64{
		"c0": c.C0, "c1": c.C1, "c2": c.C2, "diurnal": c.Diurnal,
		"elevation": c.Elevation, "reference_pressure": c.ReferencePressure,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("martin-berdahl coefficient %s is not finite", name)
		}
	}
	return nil
}

// EmissivityModel computes atmospheric emissivity with the Martin–Berdahl
// method.
type EmissivityModel struct {
	provider ClimateProvider
	coeffs   MartinBerdahlCoefficients
	logger   *zap.SugaredLogger
}

// NewEmissivityModel returns a model reading observables from provider.
func NewEmissivityModel(provider ClimateProvider, coeffs MartinBerdahlCoefficients, logger *zap.SugaredLogger) (*EmissivityModel, error) {
	if provider == nil {
		return nil, fmt.Errorf("emissivity model requires a climate provider")
	}
	if err := coeffs.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &EmissivityModel{provider: provider, coeffs: coeffs, logger: logger}, nil
}

// ClearSky returns the clear-sky emissivity for the given monthly-mean
// dewpoint (°C), hour of day and surface pressure (mbar). A NaN pressure
// skips the elevation correction.
func (c MartinBerdahlCoefficients) ClearSky(dewpointC float64, hour int, pressureMbar float64) float64 {
	x := dewpointC / 100
	monthly := c.C0 + c.C1*x + c.C2*x*x
	diurnal := c.Diurnal * math.Cos(2*math.Pi*float64(hour+1)/24)

	elevation := 0.0
	if !math.IsNaN(pressureMbar) {
		elevation = c.Elevation * (pressureMbar - c.ReferencePressure)
	}
	return monthly + diurnal + elevation
}

// Cloudy blends clear-sky emissivity with cloud cover (fraction) at a cloud
// base height in metres.
func (c MartinBerdahlCoefficients) Cloudy(clear, cover, baseHeight float64) float64 {
	temperatureFactor := math.Exp(-baseHeight / c.CloudScaleHeight)
	infraredCloudAmount := cover * clear * temperatureFactor
	return clear + (1-clear)*infraredCloudAmount
}

// Emissivity returns the dimensionless sky emissivity at t and loc.
//
// A missing surface pressure drops the elevation correction and a missing
// cloud base height falls back to the clear-sky value; both are logged. A
// NaN result is an InsufficientData error and a result outside [0, 1] a
// RangeViolation error.
func (m *EmissivityModel) Emissivity(ctx context.Context, t time.Time, loc Location) (float64, error) {
	const op = "sky.Emissivity"

	dpq, err := m.provider.MonthlyMeanDewpointTemperature(ctx, t, loc)
	if err != nil {
		return 0, fmt.Errorf("monthly mean dewpoint: %w", err)
	}
	dewpoint, err := dpq.Celsius()
	if err != nil {
		return 0, err
	}

	pq, err := m.provider.SurfacePressure(ctx, t, loc)
	if err != nil {
		return 0, fmt.Errorf("surface pressure: %w", err)
	}
	pressure, err := pq.Millibars()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(float64(pressure)) {
		m.logger.Infow("surface pressure unavailable; elevation correction omitted", "time", t, "location", loc.String())
	}

	emissivity := m.coeffs.ClearSky(float64(dewpoint), t.UTC().Hour(), float64(pressure))

	hq, err := m.provider.CloudBaseHeight(ctx, t, loc)
	if err != nil {
		return 0, fmt.Errorf("cloud base height: %w", err)
	}
	height, err := hq.Meters()
	if err != nil {
		return 0, err
	}

	if math.IsNaN(float64(height)) {
		m.logger.Debugw("cloud base height unavailable; using clear-sky emissivity", "time", t, "location", loc.String())
	} else {
		cq, err := m.provider.TotalCloudCover(ctx, t, loc)
		if err != nil {
			return 0, fmt.Errorf("total cloud cover: %w", err)
		}
		cover, err := cq.Fraction()
		if err != nil {
			return 0, err
		}
		if cover < 0 || cover > 1 {
			return 0, modelerr.RangeViolationf(op, "cloud cover %v outside [0, 1] at %s", cover, loc)
		}
		emissivity = m.coeffs.Cloudy(emissivity, cover, float64(height))
	}

	if math.IsNaN(emissivity) {
		return 0, modelerr.InsufficientDataf(op, "emissivity is NaN at %s %s", t.Format(time.RFC3339), loc)
	}
	if emissivity < 0 || emissivity > 1 {
		return 0, modelerr.RangeViolationf(op, "emissivity %v outside [0, 1] at %s %s", emissivity, t.Format(time.RFC3339), loc)
	}
	return emissivity, nil
}
