package sky

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/chrissnell/radiativepower/pkg/modelerr"
	"github.com/chrissnell/radiativepower/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider returns fixed observables regardless of time and place.
type stubProvider struct {
	skin, ambient, dewpoint, monthlyDewpoint units.Quantity
	cover, baseHeight, pressure, strd        units.Quantity
	err                                      error
}

func (s stubProvider) SkinTemperature(context.Context, time.Time, Location) (units.Quantity, error) {
	return s.skin, s.err
}
func (s stubProvider) AmbientTemperature(context.Context, time.Time, Location) (units.Quantity, error) {
	return s.ambient, s.err
}
func (s stubProvider) DewpointTemperature(context.Context, time.Time, Location) (units.Quantity, error) {
	return s.dewpoint, s.err
}
func (s stubProvider) MonthlyMeanDewpointTemperature(context.Context, time.Time, Location) (units.Quantity, error) {
	return s.monthlyDewpoint, s.err
}
func (s stubProvider) TotalCloudCover(context.Context, time.Time, Location) (units.Quantity, error) {
	return s.cover, s.err
}
func (s stubProvider) CloudBaseHeight(context.Context, time.Time, Location) (units.Quantity, error) {
	return s.baseHeight, s.err
}
func (s stubProvider) SurfacePressure(context.Context, time.Time, Location) (units.Quantity, error) {
	return s.pressure, s.err
}
func (s stubProvider) DownwardThermalRadiation(context.Context, time.Time, Location) (units.Quantity, error) {
	return s.strd, s.err
}

// Overcast night over Dublin, January 2022.
func dublinOvercast() stubProvider {
	return stubProvider{
		skin:            units.Q(285.04, units.UnitKelvin),
		ambient:         units.Q(287.65, units.UnitKelvin),
		dewpoint:        units.Q(279.1, units.UnitKelvin),
		monthlyDewpoint: units.Q(278.4, units.UnitKelvin),
		cover:           units.Q(1.0, units.Dimensionless),
		baseHeight:      units.Q(180, units.UnitMeter),
		pressure:        units.Q(100460, units.UnitPascal),
		strd:            units.Q(1260000, units.UnitJoulePerSquareMeterHour),
	}
}

var (
	dublin   = Location{Latitude: 53.4, Longitude: -6.3}
	threeAM  = time.Date(2022, time.January, 1, 3, 0, 0, 0, time.UTC)
	bgCtx    = context.Background()
	mbClear  = 0.7494640625
	mbCloudy = 0.9331549237
)

func newTemperatureModel(t *testing.T, p ClimateProvider) *TemperatureModel {
	t.Helper()
	m, err := NewTemperatureModel(p, nil, nil)
	require.NoError(t, err)
	return m
}

func TestMartinBerdahlOvercast(t *testing.T) {
	m := newTemperatureModel(t, dublinOvercast())

	eps, err := m.Emissivity().Emissivity(bgCtx, threeAM, dublin)
	require.NoError(t, err)
	assert.InDelta(t, mbCloudy, eps, 1e-9)

	tSky, err := m.SkyTemperature(bgCtx, threeAM, dublin, FormulaMartinBerdahl)
	require.NoError(t, err)
	assert.InDelta(t, 282.72, float64(tSky), 0.1)
	assert.Less(t, float64(tSky), 287.65)
}

func TestEmissivityHourUsesUTC(t *testing.T) {
	m := newTemperatureModel(t, dublinOvercast())
	local := threeAM.In(time.FixedZone("UTC+5", 5*3600))

	a, err := m.Emissivity().Emissivity(bgCtx, threeAM, dublin)
	require.NoError(t, err)
	b, err := m.Emissivity().Emissivity(bgCtx, local, dublin)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmissivityFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*stubProvider)
		check  func(t *testing.T, eps float64)
	}{
		{
			name:   "missing cloud base height uses clear sky",
			mutate: func(p *stubProvider) { p.baseHeight = units.Missing(units.UnitMeter) },
			check:  func(t *testing.T, eps float64) { assert.InDelta(t, mbClear, eps, 1e-9) },
		},
		{
			name:   "missing pressure omits elevation correction",
			mutate: func(p *stubProvider) { p.pressure = units.Missing(units.UnitPascal) },
			check: func(t *testing.T, eps float64) {
				assert.Less(t, eps, mbCloudy)
				assert.InDelta(t, mbCloudy, eps, 1e-3)
			},
		},
		{
			name:   "clear sky with cloud base reported",
			mutate: func(p *stubProvider) { p.cover = units.Q(0, units.Dimensionless) },
			check:  func(t *testing.T, eps float64) { assert.InDelta(t, mbClear, eps, 1e-9) },
		},
		{
			name:   "cloud base in kilometres",
			mutate: func(p *stubProvider) { p.baseHeight = units.Q(0.18, units.UnitKilometer) },
			check:  func(t *testing.T, eps float64) { assert.InDelta(t, mbCloudy, eps, 1e-9) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := dublinOvercast()
			tt.mutate(&p)
			eps, err := newTemperatureModel(t, p).Emissivity().Emissivity(bgCtx, threeAM, dublin)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, eps, 0.0)
			assert.LessOrEqual(t, eps, 1.0)
			tt.check(t, eps)
		})
	}
}

func TestEmissivityBounded(t *testing.T) {
	for _, dp := range []float64{240, 260, 278.4, 295} {
		for _, cover := range []float64{0, 0.25, 0.5, 1} {
			for _, h := range []float64{0, 180, 2000} {
				p := dublinOvercast()
				p.monthlyDewpoint = units.Q(dp, units.UnitKelvin)
				p.cover = units.Q(cover, units.Dimensionless)
				p.baseHeight = units.Q(h, units.UnitMeter)

				m := newTemperatureModel(t, p)
				for hour := 0; hour < 24; hour++ {
					at := time.Date(2022, time.July, 15, hour, 0, 0, 0, time.UTC)
					eps, err := m.Emissivity().Emissivity(bgCtx, at, dublin)
					require.NoError(t, err)
					assert.True(t, eps >= 0 && eps <= 1, "ε=%v dp=%v cover=%v h=%v hour=%d", eps, dp, cover, h, hour)
				}
			}
		}
	}
}

func TestSkyTemperatureErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*stubProvider)
		formula Formula
		want    error
	}{
		{
			name:    "NaN dewpoint",
			mutate:  func(p *stubProvider) { p.monthlyDewpoint = units.Missing(units.UnitKelvin) },
			formula: FormulaMartinBerdahl,
			want:    modelerr.ErrInsufficientData,
		},
		{
			name:    "NaN ambient",
			mutate:  func(p *stubProvider) { p.ambient = units.Missing(units.UnitKelvin) },
			formula: FormulaSwinbank,
			want:    modelerr.ErrInsufficientData,
		},
		{
			name:    "NaN downward radiation",
			mutate:  func(p *stubProvider) { p.strd = units.Missing(units.UnitWattPerSquareMeter) },
			formula: FormulaCloudySky,
			want:    modelerr.ErrInsufficientData,
		},
		{
			name:    "cloud cover above one",
			mutate:  func(p *stubProvider) { p.cover = units.Q(1.5, units.Dimensionless) },
			formula: FormulaMartinBerdahl,
			want:    modelerr.ErrRangeViolation,
		},
		{
			name:    "negative cloud cover",
			mutate:  func(p *stubProvider) { p.cover = units.Q(-0.1, units.Dimensionless) },
			formula: FormulaMartinBerdahl,
			want:    modelerr.ErrRangeViolation,
		},
		{
			name: "clear-sky emissivity above one",
			mutate: func(p *stubProvider) {
				p.monthlyDewpoint = units.Q(333.15, units.UnitKelvin)
				p.baseHeight = units.Missing(units.UnitMeter)
			},
			formula: FormulaMartinBerdahl,
			want:    modelerr.ErrRangeViolation,
		},
		{
			name:    "pressure reported as temperature",
			mutate:  func(p *stubProvider) { p.pressure = units.Q(290, units.UnitKelvin) },
			formula: FormulaMartinBerdahl,
			want:    modelerr.ErrUnitMismatch,
		},
		{
			name:    "zero downward radiation",
			mutate:  func(p *stubProvider) { p.strd = units.Q(0, units.UnitWattPerSquareMeter) },
			formula: FormulaCloudySky,
			want:    modelerr.ErrRangeViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := dublinOvercast()
			tt.mutate(&p)
			_, err := newTemperatureModel(t, p).SkyTemperature(bgCtx, threeAM, dublin, tt.formula)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestSkyTemperatureFormulas(t *testing.T) {
	m := newTemperatureModel(t, dublinOvercast())

	tests := []struct {
		formula Formula
		want    float64
		delta   float64
	}{
		{FormulaMartinBerdahl, 282.7176, 1e-3},
		{FormulaSwinbank, 269.7874, 1e-3},
		{FormulaCloudySky, 280.2942, 1e-3},
	}

	for _, tt := range tests {
		t.Run(tt.formula.String(), func(t *testing.T) {
			got, err := m.SkyTemperature(bgCtx, threeAM, dublin, tt.formula)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, float64(got), tt.delta)
		})
	}
}

func TestSkyTemperatureProviderError(t *testing.T) {
	p := dublinOvercast()
	p.err = errors.New("dataset closed")
	_, err := newTemperatureModel(t, p).SkyTemperature(bgCtx, threeAM, dublin, FormulaSwinbank)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset closed")
	assert.False(t, modelerr.IsRecoverable(err))
}

func TestParseFormula(t *testing.T) {
	for in, want := range map[string]Formula{
		"martin-berdahl": FormulaMartinBerdahl,
		"Swinbank":       FormulaSwinbank,
		"cloudy_sky":     FormulaCloudySky,
		"cloudy-sky":     FormulaCloudySky,
	} {
		got, err := ParseFormula(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)

		round, err := ParseFormula(got.String())
		require.NoError(t, err)
		assert.Equal(t, got, round)
	}

	_, err := ParseFormula("idso")
	assert.Error(t, err)
}

func TestCoefficientsValidate(t *testing.T) {
	c := DefaultMartinBerdahl()
	require.NoError(t, c.Validate())

	c.CloudScaleHeight = 0
	assert.Error(t, c.Validate())

	c = DefaultMartinBerdahl()
	c.C1 = math.NaN()
	assert.Error(t, c.Validate())
}
