package restserver

import (
	"time"

	"github.com/chrissnell/radiativepower/internal/storage"
)

// MaxPowerPointResponse is the body of /api/v1/mpp
type MaxPowerPointResponse struct {
	Bandgap         float64 `json:"bandgap_ev"`
	SkyTemperature  float64 `json:"t_sky"`
	CellTemperature float64 `json:"t_cell"`
	OptimalVoltage  float64 `json:"optimal_voltage"`
	MaxPower        float64 `json:"max_power_watts_per_sqm"`
	AtBoundary      bool    `json:"at_boundary"`
	Evaluations     int     `json:"evaluations"`
	Cached          bool    `json:"cached"`
}

// PowerResponse is the body of /api/v1/power
type PowerResponse struct {
	SurfaceTemperature float64 `json:"t_surface"`
	SkyTemperature     float64 `json:"t_sky"`
	Bandgap            float64 `json:"bandgap_ev"`
	Voltage            float64 `json:"voltage"`
	Power              float64 `json:"power_watts_per_sqm"`
}

// EmissivityResponse is the body of /api/v1/sky/emissivity
type EmissivityResponse struct {
	Time       time.Time `json:"time"`
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lon"`
	Emissivity float64   `json:"emissivity"`
}

// SkyTemperatureResponse is the body of /api/v1/sky/temperature
type SkyTemperatureResponse struct {
	Time           time.Time `json:"time"`
	Latitude       float64   `json:"lat"`
	Longitude      float64   `json:"lon"`
	Formula        string    `json:"formula"`
	SkyTemperature float64   `json:"t_sky"`
	Night          bool      `json:"night"`
	// Sunrise and Sunset are omitted under polar day or night.
	Sunrise *time.Time `json:"sunrise,omitempty"`
	Sunset  *time.Time `json:"sunset,omitempty"`
}

// HealthResponse is the body of /healthz
type HealthResponse struct {
	Status  string                        `json:"status"`
	Storage map[string]storage.HealthData `json:"storage"`
}
