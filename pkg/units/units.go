// Package units provides lightweight typed physical quantities.
//
// Scalars the models compute with are distinct named float64 types, so
// mixing a temperature with an energy fails to compile. Values handed over by
// external collaborators arrive as a Quantity carrying a runtime unit tag and
// are converted through accessors that reject incompatible dimensions.
package units

import (
	"fmt"
	"math"

	"github.com/chrissnell/radiativepower/pkg/modelerr"
)

// Physical constants in the eV / SI system used by the models.
const (
	PlanckEV          = 4.135667696e-15 // h [eV·s]
	SpeedOfLight      = 299792458.0     // c [m·s⁻¹]
	BoltzmannEV       = 8.617333262e-5  // k_B [eV·K⁻¹]
	ElementaryCharge  = 1.602176634e-19 // q [C]
	StefanBoltzmann   = 5.670374419e-8  // σ [W·m⁻²·K⁻⁴]
	ZeroCelsiusKelvin = 273.15
)

type (
	Electronvolt        float64 // energy [eV]
	Kelvin              float64 // absolute temperature [K]
	Celsius             float64 // temperature [°C]
	Volt                float64 // bias voltage [V]
	WattsPerSquareMeter float64 // power or irradiance density [W·m⁻²]
	Meter               float64 // length [m]
	Millibar            float64 // pressure [mbar] (= hPa)
	PhotonFlux          float64 // photons·s⁻¹·m⁻²
)

// Celsius converts an absolute temperature.
func (k Kelvin) Celsius() Celsius { return Celsius(float64(k) - ZeroCelsiusKelvin) }

// Kelvin converts a Celsius temperature.
func (c Celsius) Kelvin() Kelvin { return Kelvin(float64(c) + ZeroCelsiusKelvin) }

// ThermalEnergy returns k_B·T.
func (k Kelvin) ThermalEnergy() Electronvolt { return Electronvolt(BoltzmannEV * float64(k)) }

// ChemicalPotential returns the photon chemical potential q·V induced by a
// bias voltage. In electronvolts this is numerically equal to the voltage.
func (v Volt) ChemicalPotential() Electronvolt { return Electronvolt(v) }

// IsNaN reports whether the temperature is missing.
func (k Kelvin) IsNaN() bool { return math.IsNaN(float64(k)) }

func (k Kelvin) String() string              { return fmt.Sprintf("%g K", float64(k)) }
func (e Electronvolt) String() string        { return fmt.Sprintf("%g eV", float64(e)) }
func (v Volt) String() string                { return fmt.Sprintf("%g V", float64(v)) }
func (w WattsPerSquareMeter) String() string { return fmt.Sprintf("%g W/m²", float64(w)) }

// Unit tags a Quantity's physical unit.
type Unit int

const (
	Dimensionless Unit = iota
	UnitKelvin
	UnitCelsius
	UnitMeter
	UnitKilometer
	UnitPascal
	UnitHectopascal
	UnitMillibar
	UnitWattPerSquareMeter
	UnitJoulePerSquareMeterHour // hourly accumulated energy, as in reanalysis radiation fields
)

var unitNames = map[Unit]string{
	Dimensionless:               "1",
	UnitKelvin:                  "K",
	UnitCelsius:                 "°C",
	UnitMeter:                   "m",
	UnitKilometer:               "km",
	UnitPascal:                  "Pa",
	UnitHectopascal:             "hPa",
	UnitMillibar:                "mbar",
	UnitWattPerSquareMeter:      "W m-2",
	UnitJoulePerSquareMeterHour: "J m-2 h-1",
}

func (u Unit) String() string {
	if s, ok := unitNames[u]; ok {
		return s
	}
	return fmt.Sprintf("unit(%d)", int(u))
}

// Quantity is a value with a runtime unit tag. A NaN Value marks data that
// is unavailable for the requested time and place.
type Quantity struct {
	Value float64
	Unit  Unit
}

// Q builds a Quantity.
func Q(v float64, u Unit) Quantity { return Quantity{Value: v, Unit: u} }

// Missing returns a NaN quantity in unit u.
func Missing(u Unit) Quantity { return Quantity{Value: math.NaN(), Unit: u} }

// IsNaN reports whether the quantity is missing.
func (q Quantity) IsNaN() bool { return math.IsNaN(q.Value) }

func (q Quantity) String() string { return fmt.Sprintf("%g %s", q.Value, q.Unit) }

func (q Quantity) mismatch(want string) error {
	return modelerr.UnitMismatchf("units.Quantity", "%s is not a %s", q, want)
}

// Kelvin converts a temperature quantity to kelvin.
func (q Quantity) Kelvin() (Kelvin, error) {
	switch q.Unit {
	case UnitKelvin:
		return Kelvin(q.Value), nil
	case UnitCelsius:
		return Celsius(q.Value).Kelvin(), nil
	}
	return 0, q.mismatch("temperature")
}

// Celsius converts a temperature quantity to degrees Celsius.
func (q Quantity) Celsius() (Celsius, error) {
	k, err := q.Kelvin()
	if err != nil {
		return 0, err
	}
	return k.Celsius(), nil
}

// Meters converts a length quantity to metres.
func (q Quantity) Meters() (Meter, error) {
	switch q.Unit {
	case UnitMeter:
		return Meter(q.Value), nil
	case UnitKilometer:
		return Meter(q.Value * 1000), nil
	}
	return 0, q.mismatch("length")
}

// Millibars converts a pressure quantity to millibar.
func (q Quantity) Millibars() (Millibar, error) {
	switch q.Unit {
	case UnitMillibar, UnitHectopascal:
		return Millibar(q.Value), nil
	case UnitPascal:
		return Millibar(q.Value / 100), nil
	}
	return 0, q.mismatch("pressure")
}

// WattsPerSquareMeter converts a radiative flux quantity. Hourly accumulations
// are averaged over the hour.
func (q Quantity) WattsPerSquareMeter() (WattsPerSquareMeter, error) {
	switch q.Unit {
	case UnitWattPerSquareMeter:
		return WattsPerSquareMeter(q.Value), nil
	case UnitJoulePerSquareMeterHour:
		return WattsPerSquareMeter(q.Value / 3600), nil
	}
	return 0, q.mismatch("radiative flux")
}

// Fraction returns a dimensionless quantity's value.
func (q Quantity) Fraction() (float64, error) {
	if q.Unit != Dimensionless {
		return 0, q.mismatch("dimensionless fraction")
	}
	return q.Value, nil
}
