package radiative

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/chrissnell/radiativepower/pkg/modelerr"
	"github.com/chrissnell/radiativepower/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, settings SearchSettings, cache *Cache) *Tracker {
	t.Helper()
	tr, err := NewTracker(NewPowerModel(nil), cache, settings, nil)
	require.NoError(t, err)
	return tr
}

// InSb at 443 K radiating to a 270 K sky produces about 40.8 W/m²
// (DOI: 10.1021/acsphotonics.9b00679).
func TestMaxPowerPointPublishedOperatingPoint(t *testing.T) {
	tests := []struct {
		name     string
		settings SearchSettings
	}{
		{"bounded", DefaultSearchSettings()},
		{"grid", DefaultGridSettings()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker(t, tt.settings, nil)
			r, err := tr.MaxPowerPoint(0.17, 270, 443)
			require.NoError(t, err)

			assert.InDelta(t, 40.8, float64(r.MaxPower), 0.05)
			assert.InDelta(t, -0.0352, float64(r.OptimalVoltage), 0.002)
			assert.False(t, r.AtBoundary)
			assert.Positive(t, r.Evaluations)
		})
	}
}

func TestMaxPowerPointRoundTrip(t *testing.T) {
	tr := newTestTracker(t, DefaultSearchSettings(), nil)
	r, err := tr.MaxPowerPoint(0.17, 270, 443)
	require.NoError(t, err)

	p, err := NewPowerModel(nil).ExtractablePowerDensity(443, 270, 0.17, r.OptimalVoltage)
	require.NoError(t, err)
	assert.InDelta(t, float64(r.MaxPower), float64(p), 1e-9)

	// Nearby voltages produce less power.
	for _, dv := range []units.Volt{-0.002, 0.002} {
		q, err := NewPowerModel(nil).ExtractablePowerDensity(443, 270, 0.17, r.OptimalVoltage+dv)
		require.NoError(t, err)
		assert.Less(t, float64(q), float64(r.MaxPower))
	}
}

func TestMaxPowerPointIdempotent(t *testing.T) {
	cache := NewCache(0)
	tr := newTestTracker(t, DefaultSearchSettings(), cache)

	first, err := tr.MaxPowerPoint(0.218, 282.7172, 285.04)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	// Rounds to the same 0.1 K key.
	second, err := tr.MaxPowerPoint(0.218, 282.68, 284.96)
	require.NoError(t, err)
	assert.True(t, second.Cached)

	assert.Equal(t, math.Float64bits(float64(first.MaxPower)), math.Float64bits(float64(second.MaxPower)))
	assert.Equal(t, math.Float64bits(float64(first.OptimalVoltage)), math.Float64bits(float64(second.OptimalVoltage)))

	// Without a cache the result is recomputed from the same rounded inputs
	// and is still bit-identical.
	uncached := newTestTracker(t, DefaultSearchSettings(), nil)
	third, err := uncached.MaxPowerPoint(0.218, 282.68, 284.96)
	require.NoError(t, err)
	assert.Equal(t, math.Float64bits(float64(first.MaxPower)), math.Float64bits(float64(third.MaxPower)))

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestMaxPowerPointBoundaryIsObservable(t *testing.T) {
	// The true optimum (~ −35 mV) lies below this interval, so the search
	// pins to its lower edge.
	s := DefaultSearchSettings()
	s.MinVoltage = -0.02
	s.MaxVoltage = -0.001
	tr := newTestTracker(t, s, nil)

	r, err := tr.MaxPowerPoint(0.17, 270, 443)
	require.NoError(t, err)
	assert.True(t, r.AtBoundary)
	assert.InDelta(t, -0.02, float64(r.OptimalVoltage), 1e-4)

	g := DefaultGridSettings()
	g.MinVoltage = -0.02
	g.MaxVoltage = -0.001
	gr, err := newTestTracker(t, g, nil).MaxPowerPoint(0.17, 270, 443)
	require.NoError(t, err)
	assert.True(t, gr.AtBoundary)
	assert.Equal(t, units.Volt(-0.02), gr.OptimalVoltage)
}

func TestMaxPowerPointSurfacesIntegrationError(t *testing.T) {
	// A positive bias reaching the bandgap makes the emitted flux diverge.
	s := DefaultSearchSettings()
	s.MinVoltage = -0.1
	s.MaxVoltage = 0.5
	tr := newTestTracker(t, s, nil)

	_, err := tr.MaxPowerPoint(0.17, 270, 443)
	if err == nil {
		// Brent may never sample above the bandgap; the grid always does.
		g := DefaultGridSettings()
		g.MinVoltage = -0.1
		g.MaxVoltage = 0.5
		g.GridStep = 0.01
		_, err = newTestTracker(t, g, nil).MaxPowerPoint(0.17, 270, 443)
	}
	require.Error(t, err)
	assert.True(t, errors.Is(err, modelerr.ErrIntegration))
}

func TestMaxPowerPointRejectsNonFinite(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		name    string
		eg      units.Electronvolt
		tSky    units.Kelvin
		tCell   units.Kelvin
		want    error
		recover bool
	}{
		{"NaN sky", 0.17, units.Kelvin(nan), 443, modelerr.ErrInsufficientData, true},
		{"NaN cell", 0.17, 270, units.Kelvin(nan), modelerr.ErrInsufficientData, true},
		{"NaN bandgap", units.Electronvolt(nan), 270, 443, modelerr.ErrInsufficientData, true},
		{"infinite sky", 0.17, units.Kelvin(inf), 443, modelerr.ErrRangeViolation, false},
		{"infinite cell", 0.17, 270, units.Kelvin(-inf), modelerr.ErrRangeViolation, false},
	}

	tr := newTestTracker(t, DefaultSearchSettings(), nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.MaxPowerPoint(tt.eg, tt.tSky, tt.tCell)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, tt.recover, modelerr.IsRecoverable(err))
		})
	}
}

func TestExtractablePowerSign(t *testing.T) {
	m := NewPowerModel(nil)

	zero, err := m.ExtractablePowerDensity(443, 270, 0.17, 0)
	require.NoError(t, err)
	assert.Zero(t, float64(zero))

	// Far reverse bias: the cell absorbs the sky flux while emission
	// vanishes, so power is consumed. Negative output is not an error.
	neg, err := m.ExtractablePowerDensity(443, 270, 0.17, -2)
	require.NoError(t, err)
	assert.Negative(t, float64(neg))

	pos, err := m.ExtractablePowerDensity(443, 270, 0.17, -0.035)
	require.NoError(t, err)
	assert.Positive(t, float64(pos))
}

func TestGridVoltagesAreQuantised(t *testing.T) {
	tr := newTestTracker(t, DefaultGridSettings(), nil)
	grid := tr.gridVoltages()
	require.Len(t, grid, 41)
	assert.Equal(t, -0.05, grid[0])
	assert.Equal(t, -0.035, grid[15])
	assert.Equal(t, -0.01, grid[40])
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{"": StrategyBounded, "Brent": StrategyBounded, "grid": StrategyGrid} {
		got, err := ParseStrategy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseStrategy("annealing")
	assert.Error(t, err)
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(2)
	k := func(s string) Key { return Key{Bandgap: "0.17", SkyTemperature: s, CellTemperature: "300"} }
	c.Put(k("1"), OptimizationResult{MaxPower: 1})
	c.Put(k("2"), OptimizationResult{MaxPower: 2})
	c.Put(k("3"), OptimizationResult{MaxPower: 3})

	_, ok := c.Get(k("1"))
	assert.False(t, ok)
	r, ok := c.Get(k("3"))
	assert.True(t, ok)
	assert.Equal(t, units.WattsPerSquareMeter(3), r.MaxPower)
	assert.Equal(t, 2, c.Len())
}

func TestCacheSnapshotRoundTrip(t *testing.T) {
	src := NewCache(0)
	key := Key{Bandgap: "0.17", SkyTemperature: "270", CellTemperature: "443"}
	src.Put(key, OptimizationResult{OptimalVoltage: -0.0352, MaxPower: 40.81, Evaluations: 18})

	var buf bytes.Buffer
	require.NoError(t, src.Save(&buf))

	dst := NewCache(0)
	require.NoError(t, dst.Load(&buf))
	r, ok := dst.Get(key)
	require.True(t, ok)
	assert.Equal(t, units.Volt(-0.0352), r.OptimalVoltage)
	assert.Equal(t, units.WattsPerSquareMeter(40.81), r.MaxPower)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := NewCache(0)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := Key{Bandgap: "0.17", SkyTemperature: "270", CellTemperature: "443"}
				c.Put(key, OptimizationResult{MaxPower: 40.8})
				c.Get(key)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}

func TestSharedCacheSeparatesSearchSettings(t *testing.T) {
	cache := NewCache(0)
	bounded := newTestTracker(t, DefaultSearchSettings(), cache)
	grid := newTestTracker(t, DefaultGridSettings(), cache)

	narrow := DefaultSearchSettings()
	narrow.MinVoltage, narrow.MaxVoltage = -0.02, -0.01
	clamped := newTestTracker(t, narrow, cache)

	b, err := bounded.MaxPowerPoint(0.17, 270, 443)
	require.NoError(t, err)
	g, err := grid.MaxPowerPoint(0.17, 270, 443)
	require.NoError(t, err)
	assert.False(t, g.Cached)

	c, err := clamped.MaxPowerPoint(0.17, 270, 443)
	require.NoError(t, err)
	assert.False(t, c.Cached)
	assert.InDelta(t, -0.02, float64(c.OptimalVoltage), 1e-3)
	assert.Less(t, float64(c.MaxPower), float64(b.MaxPower))
	assert.Equal(t, 3, cache.Len())

	again, err := clamped.MaxPowerPoint(0.17, 270, 443)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, c.OptimalVoltage, again.OptimalVoltage)
}

func TestNilCacheIsUsable(t *testing.T) {
	var c *Cache
	c.Put(Key{}, OptimizationResult{})
	_, ok := c.Get(Key{})
	assert.False(t, ok)
	assert.Zero(t, c.Len())
	assert.NoError(t, c.Save(&bytes.Buffer{}))
}
