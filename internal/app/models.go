package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/chrissnell/radiativepower/internal/climate"
	"github.com/chrissnell/radiativepower/pkg/config"
	"github.com/chrissnell/radiativepower/pkg/radiative"
	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/chrissnell/radiativepower/pkg/units"
	"go.uber.org/zap"
)

// Models holds the evaluators built from the model and climate sections.
type Models struct {
	Climate *climate.Store
	Power   *radiative.PowerModel
	Tracker *radiative.Tracker
	Cache   *radiative.Cache
	Sky     *sky.TemperatureModel
	Bandgap units.Electronvolt
	Formula sky.Formula
}

// SearchSettings converts the model section into tracker settings.
func SearchSettings(m config.ModelData) (radiative.SearchSettings, error) {
	strategy, err := radiative.ParseStrategy(m.Strategy)
	if err != nil {
		return radiative.SearchSettings{}, err
	}
	s := radiative.SearchSettings{
		Strategy:            strategy,
		MinVoltage:          units.Volt(m.MinVoltage),
		MaxVoltage:          units.Volt(m.MaxVoltage),
		VoltageTolerance:    m.VoltageTolerance,
		MaxEvaluations:      m.MaxEvaluations,
		GridStep:            units.Volt(m.GridStep),
		GridDecimals:        m.GridDecimals,
		TemperatureDecimals: m.TemperatureDecimals,
		BandgapDecimals:     m.BandgapDecimals,
	}
	return s, s.Validate()
}

// Coefficients returns the configured Martin-Berdahl coefficients, or the
// published ones when the section is absent.
func Coefficients(m config.ModelData) sky.MartinBerdahlCoefficients {
	if m.MartinBerdahl == nil {
		return sky.DefaultMartinBerdahl()
	}
	mb := m.MartinBerdahl
	return sky.MartinBerdahlCoefficients{
		C0:                mb.C0,
		C1:                mb.C1,
		C2:                mb.C2,
		Diurnal:           mb.Diurnal,
		Elevation:         mb.Elevation,
		ReferencePressure: mb.ReferencePressure,
		CloudScaleHeight:  mb.CloudScaleHeight,
	}
}

// LoadClimate opens the configured climate source.
func LoadClimate(c config.ClimateData, logger *zap.SugaredLogger) (*climate.Store, error) {
	switch c.Type {
	case "csv":
		return climate.LoadCSV(c.Path, c.MaxDistance, logger)
	case "memory":
		return climate.NewStore(c.MaxDistance), nil
	}
	return nil, fmt.Errorf("unknown climate type %q", c.Type)
}

// BuildModels constructs the power, tracker and sky models over store.
func BuildModels(cfg *config.ConfigData, store *climate.Store, logger *zap.SugaredLogger) (*Models, error) {
	settings, err := SearchSettings(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("model search settings: %w", err)
	}
	formula, err := sky.ParseFormula(cfg.Model.SkyFormula)
	if err != nil {
		return nil, err
	}

	cache := radiative.NewCache(cfg.Model.CacheCapacity)
	if err := loadSnapshot(cfg.Model.CacheSnapshot, cache, logger); err != nil {
		return nil, err
	}

	power := radiative.NewPowerModel(nil)
	tracker, err := radiative.NewTracker(power, cache, settings, logger.Named("mppt"))
	if err != nil {
		return nil, err
	}

	emissivity, err := sky.NewEmissivityModel(store, Coefficients(cfg.Model), logger.Named("sky"))
	if err != nil {
		return nil, fmt.Errorf("emissivity model: %w", err)
	}
	skyModel, err := sky.NewTemperatureModel(store, emissivity, logger.Named("sky"))
	if err != nil {
		return nil, err
	}

	return &Models{
		Climate: store,
		Power:   power,
		Tracker: tracker,
		Cache:   cache,
		Sky:     skyModel,
		Bandgap: units.Electronvolt(cfg.Model.Bandgap),
		Formula: formula,
	}, nil
}

func loadSnapshot(path string, cache *radiative.Cache, logger *zap.SugaredLogger) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Infof("no MPP cache snapshot at %s; starting empty", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening MPP cache snapshot: %w", err)
	}
	defer f.Close()

	if err := cache.Load(f); err != nil {
		return fmt.Errorf("loading MPP cache snapshot %s: %w", path, err)
	}
	logger.Infof("loaded %d MPP cache entries from %s", cache.Len(), path)
	return nil
}

// SaveSnapshot writes the cache to path, replacing the file atomically.
func SaveSnapshot(path string, cache *radiative.Cache) error {
	if path == "" || cache == nil {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mpp-cache-*")
	if err != nil {
		return fmt.Errorf("creating MPP cache snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := cache.Save(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing MPP cache snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
