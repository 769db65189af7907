// Package radiative models a thermoradiative cell: the generalized Planck
// photon flux it exchanges with the sky, the electrical power density that
// results at a given bias, and the bias that maximises it.
package radiative

import (
	"math"

	"github.com/chrissnell/radiativepower/pkg/modelerr"
	"github.com/chrissnell/radiativepower/pkg/units"
	"gonum.org/v1/gonum/integrate/quad"
)

// roundoff is the relative panel disagreement treated as floating-point noise.
const roundoff = 1e-14

// fluxPrefactor is 2π/(h³c²) in eV⁻³·s⁻¹·m⁻², so integrating E² [eV²] over
// dE [eV] yields photons·s⁻¹·m⁻².
var fluxPrefactor = 2 * math.Pi / (math.Pow(units.PlanckEV, 3) * units.SpeedOfLight * units.SpeedOfLight)

// SpectralState is the full input to one flux evaluation.
type SpectralState struct {
	Bandgap           units.Electronvolt
	Temperature       units.Kelvin
	ChemicalPotential units.Electronvolt // Δμ
}

func (s SpectralState) validate() error {
	const op = "radiative.Flux"
	switch {
	case math.IsNaN(float64(s.Temperature)) || math.IsInf(float64(s.Temperature), 0):
		return modelerr.Integrationf(op, "temperature %v is not finite", s.Temperature)
	case s.Temperature <= 0:
		return modelerr.Integrationf(op, "temperature %v must be positive", s.Temperature)
	case math.IsNaN(float64(s.Bandgap)) || math.IsInf(float64(s.Bandgap), 0) || s.Bandgap <= 0:
		return modelerr.Integrationf(op, "bandgap %v must be positive and finite", s.Bandgap)
	case math.IsNaN(float64(s.ChemicalPotential)) || math.IsInf(float64(s.ChemicalPotential), 0):
		return modelerr.Integrationf(op, "chemical potential %v is not finite", s.ChemicalPotential)
	case s.ChemicalPotential >= s.Bandgap:
		// The occupation diverges at E = Δμ and the integral from Eg does not converge.
		return modelerr.Integrationf(op, "chemical potential %v reaches the bandgap %v", s.ChemicalPotential, s.Bandgap)
	}
	return nil
}

// Emissivity is the sharp absorption edge: 0 below the bandgap, 1 from the
// bandgap upward.
func Emissivity(e, bandgap units.Electronvolt) float64 {
	if e < bandgap {
		return 0
	}
	return 1
}

// SpectralDensity returns ε(E)·E² / (exp((E−Δμ)/kT) − 1) in eV².
//
// A zero, negative or NaN denominator (E = Δμ, E < Δμ, or degenerate kT) is
// reported as an integration error instead of producing Inf or NaN. An
// overflowing denominator means the occupation has underflowed and the
// density is zero.
func SpectralDensity(e units.Electronvolt, s SpectralState) (float64, error) {
	const op = "radiative.SpectralDensity"

	eps := Emissivity(e, s.Bandgap)
	if eps == 0 {
		return 0, nil
	}

	kT := float64(s.Temperature.ThermalEnergy())
	x := float64(e-s.ChemicalPotential) / kT
	den := math.Expm1(x)
	switch {
	case math.IsNaN(den):
		return 0, modelerr.Integrationf(op, "occupation undefined at E=%v (kT=%g eV)", e, kT)
	case math.IsInf(den, 1):
		return 0, nil
	case math.IsInf(den, -1) || den <= 0:
		return 0, modelerr.Integrationf(op, "occupation denominator %g at E=%v, Δμ=%v", den, e, s.ChemicalPotential)
	}

	v := eps * float64(e) * float64(e) / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, modelerr.Integrationf(op, "non-finite spectral density at E=%v", e)
	}
	return v, nil
}

// FluxIntegrator integrates the spectral density from the bandgap to
// infinity with adaptive Gauss–Legendre quadrature.
type FluxIntegrator struct {
	// RelativeTolerance bounds the accepted refinement error relative to the
	// magnitude of the integral.
	RelativeTolerance float64
	// PanelOrder is the number of Legendre nodes per panel.
	PanelOrder int
	// MaxDepth caps panel bisection; exceeding it is an integration error.
	MaxDepth int
}

// NewFluxIntegrator returns an integrator with tolerances that keep power
// densities stable well beyond three significant figures.
func NewFluxIntegrator() *FluxIntegrator {
	return &FluxIntegrator{
		RelativeTolerance: 1e-9,
		PanelOrder:        15,
		MaxDepth:          40,
	}
}

// Flux returns the photon flux Γ(Eg, T, Δμ) in photons·s⁻¹·m⁻².
func (fi *FluxIntegrator) Flux(s SpectralState) (units.PhotonFlux, error) {
	const op = "radiative.Flux"

	if err := s.validate(); err != nil {
		return 0, err
	}

	// E = Eg + kT·u puts the decay scale at u ~ 1, and u = t/(1−t) maps
	// [0, ∞) onto [0, 1). Legendre nodes never touch t = 1.
	kT := float64(s.Temperature.ThermalEnergy())
	eg := float64(s.Bandgap)

	var evalErr error
	integrand := func(t float64) float64 {
		if evalErr != nil || t >= 1 {
			return 0
		}
		oneMinus := 1 - t
		u := t / oneMinus
		d, err := SpectralDensity(units.Electronvolt(eg+kT*u), s)
		if err != nil {
			evalErr = err
			return 0
		}
		if d == 0 {
			return 0
		}
		return d * kT / (oneMinus * oneMinus)
	}

	integral, err := fi.integrate(integrand, 0, 1)
	if evalErr != nil {
		return 0, evalErr
	}
	if err != nil {
		return 0, err
	}

	flux := fluxPrefactor * integral
	if math.IsNaN(flux) || math.IsInf(flux, 0) || flux < 0 {
		return 0, modelerr.Integrationf(op, "flux %g is not a finite non-negative number", flux)
	}
	return units.PhotonFlux(flux), nil
}

func (fi *FluxIntegrator) integrate(f func(float64) float64, a, b float64) (float64, error) {
	whole := quad.Fixed(f, a, b, fi.PanelOrder, quad.Legendre{}, 0)
	if math.IsNaN(whole) || math.IsInf(whole, 0) {
		return 0, modelerr.Integrationf("radiative.Flux", "non-finite quadrature estimate %g", whole)
	}
	return fi.refine(f, a, b, whole, fi.RelativeTolerance*math.Abs(whole), 0)
}

// refine bisects [a, b] until the two halves agree with the parent panel to
// within tol.
func (fi *FluxIntegrator) refine(f func(float64) float64, a, b, whole, tol float64, depth int) (float64, error) {
	m := 0.5 * (a + b)
	left := quad.Fixed(f, a, m, fi.PanelOrder, quad.Legendre{}, 0)
	right := quad.Fixed(f, m, b, fi.PanelOrder, quad.Legendre{}, 0)
	sum := left + right

	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0, modelerr.Integrationf("radiative.Flux", "non-finite panel sum on [%g, %g]", a, b)
	}
	if diff := math.Abs(sum - whole); diff <= tol || diff <= roundoff*math.Abs(sum) {
		return sum, nil
	}
	if depth >= fi.MaxDepth {
		return 0, modelerr.Integrationf("radiative.Flux", "no convergence on [%g, %g] after %d bisections", a, b, depth)
	}

	l, err := fi.refine(f, a, m, left, tol/2, depth+1)
	if err != nil {
		return 0, err
	}
	r, err := fi.refine(f, m, b, right, tol/2, depth+1)
	if err != nil {
		return 0, err
	}
	return l + r, nil
}
