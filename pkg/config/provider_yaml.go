package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, err
	}

	y.config = config
	return config, nil
}

// ParseYAML converts a YAML document into configuration data
func ParseYAML(b []byte) (*ConfigData, error) {
	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Model      ModelYAML       `yaml:"model"`
		Climate    ClimateYAML     `yaml:"climate"`
		Assessment AssessmentYAML  `yaml:"assessment"`
		Storage    StorageYAML     `yaml:"storage,omitempty"`
		REST       *RESTServerYAML `yaml:"rest,omitempty"`
	}

	if err := yaml.UnmarshalStrict(b, &yamlConfig); err != nil {
		return nil, err
	}

	// Convert to our internal format
	m := yamlConfig.Model
	config := &ConfigData{
		Model: ModelData{
			Bandgap:             m.Bandgap,
			Strategy:            m.Strategy,
			MinVoltage:          m.MinVoltage,
			MaxVoltage:          m.MaxVoltage,
			VoltageTolerance:    m.VoltageTolerance,
			MaxEvaluations:      m.MaxEvaluations,
			GridStep:            m.GridStep,
			GridDecimals:        m.GridDecimals,
			TemperatureDecimals: m.TemperatureDecimals,
			BandgapDecimals:     m.BandgapDecimals,
			CacheCapacity:       m.CacheCapacity,
			CacheSnapshot:       m.CacheSnapshot,
			SkyFormula:          m.SkyFormula,
		},
		Climate: ClimateData{
			Type:        yamlConfig.Climate.Type,
			Path:        yamlConfig.Climate.Path,
			MaxDistance: yamlConfig.Climate.MaxDistance,
		},
	}
	if mb := m.MartinBerdahl; mb != nil {
		config.Model.MartinBerdahl = &MartinBerdahlData{
			C0:                mb.C0,
			C1:                mb.C1,
			C2:                mb.C2,
			Diurnal:           mb.Diurnal,
			Elevation:         mb.Elevation,
			ReferencePressure: mb.ReferencePressure,
			CloudScaleHeight:  mb.CloudScaleHeight,
		}
	}

	// Convert assessment
	a := yamlConfig.Assessment
	config.Assessment = AssessmentData{
		Name:          a.Name,
		StartDate:     a.StartDate,
		EndDate:       a.EndDate,
		BatchStart:    a.BatchStart,
		BatchQuantity: a.BatchQuantity,
		Workers:       a.Workers,
		NightOnly:     a.NightOnly,
	}
	for _, p := range a.Coordinates {
		config.Assessment.Coordinates = append(config.Assessment.Coordinates, PointData{Lat: p.Lat, Lon: p.Lon})
	}
	if a.Grid != nil {
		config.Assessment.Grid = &GridData{
			LatMin: a.Grid.LatMin,
			LatMax: a.Grid.LatMax,
			LonMin: a.Grid.LonMin,
			LonMax: a.Grid.LonMax,
			Step:   a.Grid.Step,
		}
	}

	// Convert storage
	if yamlConfig.Storage.CSV != nil {
		config.Storage.CSV = &CSVData{Directory: yamlConfig.Storage.CSV.Directory}
	}
	if yamlConfig.Storage.SQLite != nil {
		config.Storage.SQLite = &SQLiteData{Path: yamlConfig.Storage.SQLite.Path}
	}
	if yamlConfig.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: yamlConfig.Storage.TimescaleDB.ConnectionString,
		}
	}

	if r := yamlConfig.REST; r != nil {
		config.REST = &RESTServerData{
			Cert:       r.Cert,
			Key:        r.Key,
			Port:       r.Port,
			ListenAddr: r.ListenAddr,
		}
	}

	return config, nil
}

func (y *YAMLProvider) loaded() (*ConfigData, error) {
	if y.config == nil {
		if _, err := y.LoadConfig(); err != nil {
			return nil, err
		}
	}
	return y.config, nil
}

// GetModelConfig returns model configuration
func (y *YAMLProvider) GetModelConfig() (*ModelData, error) {
	config, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &config.Model, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	config, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &config.Storage, nil
}

// GetCoordinates returns the explicitly listed assessment coordinates
func (y *YAMLProvider) GetCoordinates() ([]PointData, error) {
	config, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return config.Assessment.Coordinates, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with proper YAML tags for parsing the file format
type ModelYAML struct {
	Bandgap             float64            `yaml:"bandgap,omitempty"`
	Strategy            string             `yaml:"strategy,omitempty"`
	MinVoltage          float64            `yaml:"min-voltage,omitempty"`
	MaxVoltage          float64            `yaml:"max-voltage,omitempty"`
	VoltageTolerance    float64            `yaml:"voltage-tolerance,omitempty"`
	MaxEvaluations      int                `yaml:"max-evaluations,omitempty"`
	GridStep            float64            `yaml:"grid-step,omitempty"`
	GridDecimals        int32              `yaml:"grid-decimals,omitempty"`
	TemperatureDecimals int32              `yaml:"temperature-decimals,omitempty"`
	BandgapDecimals     int32              `yaml:"bandgap-decimals,omitempty"`
	CacheCapacity       int                `yaml:"cache-capacity,omitempty"`
	CacheSnapshot       string             `yaml:"cache-snapshot,omitempty"`
	SkyFormula          string             `yaml:"sky-formula,omitempty"`
	MartinBerdahl       *MartinBerdahlYAML `yaml:"martin-berdahl,omitempty"`
}

type MartinBerdahlYAML struct {
	C0                float64 `yaml:"c0"`
	C1                float64 `yaml:"c1"`
	C2                float64 `yaml:"c2"`
	Diurnal           float64 `yaml:"diurnal"`
	Elevation         float64 `yaml:"elevation"`
	ReferencePressure float64 `yaml:"reference-pressure"`
	CloudScaleHeight  float64 `yaml:"cloud-scale-height"`
}

type ClimateYAML struct {
	Type        string  `yaml:"type,omitempty"`
	Path        string  `yaml:"path,omitempty"`
	MaxDistance float64 `yaml:"max-distance,omitempty"`
}

type AssessmentYAML struct {
	Name          string      `yaml:"name,omitempty"`
	StartDate     string      `yaml:"start-date,omitempty"`
	EndDate       string      `yaml:"end-date,omitempty"`
	Coordinates   []PointYAML `yaml:"coordinates,omitempty"`
	Grid          *GridYAML   `yaml:"grid,omitempty"`
	BatchStart    int         `yaml:"batch-start,omitempty"`
	BatchQuantity int         `yaml:"batch-quantity,omitempty"`
	Workers       int         `yaml:"workers,omitempty"`
	NightOnly     bool        `yaml:"night-only,omitempty"`
}

type GridYAML struct {
	LatMin float64 `yaml:"lat-min"`
	LatMax float64 `yaml:"lat-max"`
	LonMin float64 `yaml:"lon-min"`
	LonMax float64 `yaml:"lon-max"`
	Step   float64 `yaml:"step"`
}

type PointYAML struct {
	Lat float64 `yaml:"latitude"`
	Lon float64 `yaml:"longitude"`
}

type StorageYAML struct {
	CSV         *CSVYAML         `yaml:"csv,omitempty"`
	SQLite      *SQLiteYAML      `yaml:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBYAML `yaml:"timescaledb,omitempty"`
}

type CSVYAML struct {
	Directory string `yaml:"directory"`
}

type SQLiteYAML struct {
	Path string `yaml:"path"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type RESTServerYAML struct {
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	ListenAddr string `yaml:"listen-addr,omitempty"`
}
