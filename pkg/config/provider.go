package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetModelConfig() (*ModelData, error)
	GetStorageConfig() (*StorageData, error)
	GetCoordinates() ([]PointData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Model      ModelData       `json:"model"`
	Climate    ClimateData     `json:"climate"`
	Assessment AssessmentData  `json:"assessment"`
	Storage    StorageData     `json:"storage,omitempty"`
	REST       *RESTServerData `json:"rest,omitempty"`
}

// ModelData configures the power model and maximum power point search
type ModelData struct {
	Bandgap             float64            `json:"bandgap"`
	Strategy            string             `json:"strategy,omitempty"`
	MinVoltage          float64            `json:"min_voltage,omitempty"`
	MaxVoltage          float64            `json:"max_voltage,omitempty"`
	VoltageTolerance    float64            `json:"voltage_tolerance,omitempty"`
	MaxEvaluations      int                `json:"max_evaluations,omitempty"`
	GridStep            float64            `json:"grid_step,omitempty"`
	GridDecimals        int32              `json:"grid_decimals,omitempty"`
	TemperatureDecimals int32              `json:"temperature_decimals,omitempty"`
	BandgapDecimals     int32              `json:"bandgap_decimals,omitempty"`
	CacheCapacity       int                `json:"cache_capacity,omitempty"`
	CacheSnapshot       string             `json:"cache_snapshot,omitempty"`
	SkyFormula          string             `json:"sky_formula,omitempty"`
	MartinBerdahl       *MartinBerdahlData `json:"martin_berdahl,omitempty"`
}

// MartinBerdahlData overrides the sky emissivity coefficients
type MartinBerdahlData struct {
	C0                float64 `json:"c0"`
	C1                float64 `json:"c1"`
	C2                float64 `json:"c2"`
	Diurnal           float64 `json:"diurnal"`
	Elevation         float64 `json:"elevation"`
	ReferencePressure float64 `json:"reference_pressure"`
	CloudScaleHeight  float64 `json:"cloud_scale_height"`
}

// ClimateData selects the source of climate observables
type ClimateData struct {
	Type string `json:"type,omitempty"`
	// Path is a CSV file or a directory of per-point CSV files
	Path string `json:"path,omitempty"`
	// MaxDistance is the largest lat/lon distance, in degrees, at which a
	// series is accepted for a requested point
	MaxDistance float64 `json:"max_distance,omitempty"`
}

// AssessmentData describes a batch run
type AssessmentData struct {
	Name          string      `json:"name,omitempty"`
	StartDate     string      `json:"start_date"`
	EndDate       string      `json:"end_date"`
	Coordinates   []PointData `json:"coordinates,omitempty"`
	Grid          *GridData   `json:"grid,omitempty"`
	BatchStart    int         `json:"batch_start,omitempty"`
	BatchQuantity int         `json:"batch_quantity,omitempty"`
	Workers       int         `json:"workers,omitempty"`
	NightOnly     bool        `json:"night_only,omitempty"`
}

// GridData is a rectangular lat/lon grid with inclusive bounds
type GridData struct {
	LatMin float64 `json:"lat_min"`
	LatMax float64 `json:"lat_max"`
	LonMin float64 `json:"lon_min"`
	LonMax float64 `json:"lon_max"`
	Step   float64 `json:"step"`
}

type PointData struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// StorageData holds the configuration for various storage backends
type StorageData struct {
	CSV         *CSVData         `json:"csv,omitempty"`
	SQLite      *SQLiteData      `json:"sqlite,omitempty"`
	TimescaleDB *TimescaleDBData `json:"timescaledb,omitempty"`
}

// Storage backend configuration structs
type CSVData struct {
	Directory string `json:"directory"`
}

type SQLiteData struct {
	Path string `json:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

type RESTServerData struct {
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	Port       int    `json:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty"`
}
