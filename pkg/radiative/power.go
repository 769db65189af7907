package radiative

import (
	"github.com/chrissnell/radiativepower/pkg/units"
)

// NonRadiativeLossFraction is η, the share of recombination that is
// non-radiative. The absorbed sky flux is scaled by 1/(1−η). The value is
// fixed in the model; 0.03 reproduces the published 40.8 W·m⁻² operating
// point for InSb (Eg = 0.17 eV, 443 K cell, 270 K sky).
const NonRadiativeLossFraction = 0.03

// PowerModel converts photon fluxes into electrical power density.
type PowerModel struct {
	integrator *FluxIntegrator
}

// NewPowerModel returns a model backed by integrator, or by a default
// integrator when nil.
func NewPowerModel(integrator *FluxIntegrator) *PowerModel {
	if integrator == nil {
		integrator = NewFluxIntegrator()
	}
	return &PowerModel{integrator: integrator}
}

// Integrator exposes the flux integrator backing the model.
func (m *PowerModel) Integrator() *FluxIntegrator { return m.integrator }

// ExtractablePowerDensity returns
//
//	q·V·(Γ(Eg, Tsky, 0)/(1−η) − Γ(Eg, Tsurface, qV))
//
// in W·m⁻². Positive values are net extractable power; negative values mean
// the cell consumes power at this bias and are returned as-is.
func (m *PowerModel) ExtractablePowerDensity(tSurface, tSky units.Kelvin, bandgap units.Electronvolt, v units.Volt) (units.WattsPerSquareMeter, error) {
	absorbed, err := m.AbsorbedFlux(bandgap, tSky)
	if err != nil {
		return 0, err
	}
	return m.powerAt(absorbed, tSurface, bandgap, v)
}

// AbsorbedFlux is the zero-bias flux received from a sky at tSky. It does not
// depend on bias, so searches evaluate it once.
func (m *PowerModel) AbsorbedFlux(bandgap units.Electronvolt, tSky units.Kelvin) (units.PhotonFlux, error) {
	return m.integrator.Flux(SpectralState{Bandgap: bandgap, Temperature: tSky})
}

func (m *PowerModel) powerAt(absorbed units.PhotonFlux, tCell units.Kelvin, bandgap units.Electronvolt, v units.Volt) (units.WattsPerSquareMeter, error) {
	emitted, err := m.integrator.Flux(SpectralState{
		Bandgap:           bandgap,
		Temperature:       tCell,
		ChemicalPotential: v.ChemicalPotential(),
	})
	if err != nil {
		return 0, err
	}

	net := float64(absorbed)/(1-NonRadiativeLossFraction) - float64(emitted)
	return units.WattsPerSquareMeter(units.ElementaryCharge * float64(v) * net), nil
}
