package assessment

import (
	"time"

	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/shopspring/decimal"
)

// Hours returns every hour of every day from start through end, both dates
// inclusive. Only the calendar dates of start and end are used.
func Hours(start, end time.Time) []time.Time {
	first, last := firstHour(start), lastHour(end)
	if last.Before(first) {
		return nil
	}

	hours := make([]time.Time, 0, int(last.Sub(first)/time.Hour)+1)
	for t := first; !t.After(last); t = t.Add(time.Hour) {
		hours = append(hours, t)
	}
	return hours
}

func firstHour(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func lastHour(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 0, 0, 0, time.UTC)
}

// GridSpec describes a regular latitude/longitude grid in degrees. Both
// bounds are included when they fall on the grid.
type GridSpec struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
	Step           float64
}

// Points enumerates the grid longitude-major: all latitudes of the first
// longitude, then the next longitude. Coordinates are stepped in decimal so
// they do not accumulate floating-point drift.
func (g GridSpec) Points() []sky.Location {
	if !(g.Step > 0) {
		return nil
	}
	step := decimal.NewFromFloat(g.Step)
	latMin, latMax := decimal.NewFromFloat(g.LatMin), decimal.NewFromFloat(g.LatMax)
	lonMin, lonMax := decimal.NewFromFloat(g.LonMin), decimal.NewFromFloat(g.LonMax)

	var points []sky.Location
	for lon := lonMin; lon.LessThanOrEqual(lonMax); lon = lon.Add(step) {
		for lat := latMin; lat.LessThanOrEqual(latMax); lat = lat.Add(step) {
			points = append(points, sky.Location{Latitude: lat.InexactFloat64(), Longitude: lon.InexactFloat64()})
		}
	}
	return points
}

// Coordinates lists the explicit coordinates followed by the grid points,
// dropping duplicates.
func Coordinates(explicit []sky.Location, grid *GridSpec) []sky.Location {
	seen := make(map[sky.Location]bool)
	var out []sky.Location
	add := func(loc sky.Location) {
		if !seen[loc] {
			seen[loc] = true
			out = append(out, loc)
		}
	}
	for _, loc := range explicit {
		add(loc)
	}
	if grid != nil {
		for _, loc := range grid.Points() {
			add(loc)
		}
	}
	return out
}

// Batch returns coords[start:start+quantity], clamped to the slice. A zero
// quantity selects everything from start onwards.
func Batch(coords []sky.Location, start, quantity int) []sky.Location {
	if start < 0 {
		start = 0
	}
	if start >= len(coords) {
		return nil
	}
	end := len(coords)
	if quantity > 0 && start+quantity < end {
		end = start + quantity
	}
	return coords[start:end]
}
