// Package solar classifies hours as day or night from solar geometry.
package solar

import (
	"math"
	"time"

	"github.com/soniakeys/unit"
)

// horizonZenith is the zenith angle of the sun's centre at sunrise and sunset,
// allowing for refraction and the solar disc.
const horizonZenith = 90.833

// IsNight reports whether the sun is below the horizon at t. Polar day and
// polar night fall out of the zenith angle directly.
func IsNight(t time.Time, latitude, longitude float64) bool {
	return ZenithAngle(t, latitude, longitude) > horizonZenith
}

// Daylight returns sunrise and sunset in UTC for the solar day whose noon
// falls nearest to noon UTC on t's date. Either may land on the neighbouring
// UTC date west or east of Greenwich. ok is false under polar day or night.
func Daylight(t time.Time, latitude, longitude float64) (sunrise, sunset time.Time, ok bool) {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	decl, eot := sunAt(midnight.Add(12 * time.Hour))
	lat := unit.AngleFromDeg(latitude)

	cosH := (unit.AngleFromDeg(horizonZenith).Cos() - lat.Sin()*decl.Sin()) / (lat.Cos() * decl.Cos())
	if math.IsNaN(cosH) || cosH < -1 || cosH > 1 {
		return time.Time{}, time.Time{}, false
	}

	halfDay := math.Acos(cosH) * minutesPerRadian
	noon := 720 - 4*longitude - eot
	at := func(minutes float64) time.Time {
		return midnight.Add(time.Duration(minutes * float64(time.Minute))).Truncate(time.Second)
	}
	return at(noon - halfDay), at(noon + halfDay), true
}
