package database

import (
	"time"

	"github.com/google/uuid"
)

// SeriesRecord is one coordinate's assessment over its period
type SeriesRecord struct {
	ID           uuid.UUID `gorm:"primaryKey;column:id;type:uuid"`
	RunID        uuid.UUID `gorm:"column:run_id;type:uuid;not null;index"`
	Name         string    `gorm:"column:name;not null"`
	Formula      string    `gorm:"column:formula;not null"`
	BandgapEV    float64   `gorm:"column:bandgap_ev;not null"`
	Latitude     float64   `gorm:"column:latitude;not null"`
	Longitude    float64   `gorm:"column:longitude;not null"`
	PeriodStart  time.Time `gorm:"column:period_start;not null"`
	PeriodEnd    time.Time `gorm:"column:period_end;not null"`
	TotalKWh     float64   `gorm:"column:total_kwh_per_square_m;not null"`
	SkippedHours int       `gorm:"column:skipped_hours;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for SeriesRecord
func (SeriesRecord) TableName() string {
	return "assessment_series"
}

// PowerReading is the maximum power point of one hour at one coordinate
type PowerReading struct {
	Time               time.Time `gorm:"column:time;not null"`
	SeriesID           uuid.UUID `gorm:"column:series_id;type:uuid;not null"`
	Latitude           float64   `gorm:"column:latitude"`
	Longitude          float64   `gorm:"column:longitude"`
	Power              float64   `gorm:"column:power_watts_per_sqm"`
	OptimalVoltage     float64   `gorm:"column:optimal_voltage"`
	SkyTemperature     float64   `gorm:"column:t_sky"`
	SurfaceTemperature float64   `gorm:"column:t_surf"`
	AtBoundary         bool      `gorm:"column:at_boundary"`
}

// TableName specifies the table name for PowerReading
func (PowerReading) TableName() string {
	return "power_readings"
}
