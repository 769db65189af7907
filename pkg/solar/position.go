package solar

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/eqtime"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/solar"
	"github.com/soniakeys/unit"
)

// minutesPerRadian converts an hour angle in radians to minutes of time.
const minutesPerRadian = 4 * 180 / math.Pi

// sunAt returns the apparent solar declination and the equation of time in
// minutes at t. UT stands in for dynamical time; the difference is about a
// minute and far below what night classification needs.
func sunAt(t time.Time) (declination unit.Angle, eotMinutes float64) {
	jd := julian.TimeToJD(t.UTC())
	_, declination = solar.ApparentEquatorial(jd)
	return declination, eqtime.ESmart(jd).Rad() * minutesPerRadian
}

// hourAngle returns the local hour angle of the sun at t, zero at solar noon.
func hourAngle(t time.Time, longitude, eotMinutes float64) unit.Angle {
	t = t.UTC()
	utcMin := float64(t.Hour()*60+t.Minute()) + float64(t.Second())/60
	trueSolarMin := utcMin + 4*longitude + eotMinutes
	return unit.AngleFromDeg(trueSolarMin/4 - 180)
}

// ZenithAngle returns the solar zenith angle in degrees at t for the given
// position. Angles above 90 put the sun below the horizon.
func ZenithAngle(t time.Time, latitude, longitude float64) float64 {
	decl, eot := sunAt(t)
	lat := unit.AngleFromDeg(latitude)
	h := hourAngle(t, longitude, eot)

	cosZ := lat.Sin()*decl.Sin() + lat.Cos()*decl.Cos()*h.Cos()
	cosZ = math.Max(-1, math.Min(1, cosZ))
	return unit.Angle(math.Acos(cosZ)).Deg()
}
