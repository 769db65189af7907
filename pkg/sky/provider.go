// Package sky derives the effective radiative temperature of the sky from
// climate observables.
package sky

import (
	"context"
	"fmt"
	"time"

	"github.com/chrissnell/radiativepower/pkg/units"
)

// Location is a geographic point in decimal degrees.
type Location struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

func (l Location) String() string {
	return fmt.Sprintf("%.4f,%.4f", l.Latitude, l.Longitude)
}

// ClimateProvider supplies the observables the sky models consume for a time
// and place. Every method returns a unit-tagged quantity; a NaN value means
// the observable is unavailable there and then, which is not an error.
type ClimateProvider interface {
	// SkinTemperature is the surface (cell) temperature.
	SkinTemperature(ctx context.Context, t time.Time, loc Location) (units.Quantity, error)
	// AmbientTemperature is the 2 m air temperature.
	AmbientTemperature(ctx context.Context, t time.Time, loc Location) (units.Quantity, error)
	// DewpointTemperature is the hourly 2 m dewpoint.
	DewpointTemperature(ctx context.Context, t time.Time, loc Location) (units.Quantity, error)
	// MonthlyMeanDewpointTemperature averages the 2 m dewpoint over t's month.
	MonthlyMeanDewpointTemperature(ctx context.Context, t time.Time, loc Location) (units.Quantity, error)
	// TotalCloudCover is the fractional sky cover in [0, 1].
	TotalCloudCover(ctx context.Context, t time.Time, loc Location) (units.Quantity, error)
	// CloudBaseHeight is the height of the lowest cloud base above ground.
	CloudBaseHeight(ctx context.Context, t time.Time, loc Location) (units.Quantity, error)
	// SurfacePressure is the pressure at ground level.
	SurfacePressure(ctx context.Context, t time.Time, loc Location) (units.Quantity, error)
	// DownwardThermalRadiation is the downward longwave flux at the surface.
	DownwardThermalRadiation(ctx context.Context, t time.Time, loc Location) (units.Quantity, error)
}
