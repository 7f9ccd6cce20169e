// Public domain.

// Package freefree models and fits thermal free-free spectra of HII
// regions.
//
// Conventions at this package boundary: frequencies in GHz unless typed
// unit.Frequency, flux densities in mJy, emission measures in pc cm⁻⁶,
// electron temperatures in K, specific intensities in W m⁻² Hz⁻¹ sr⁻¹.
package freefree

import (
	"math"

	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/phys"
)

// Case B recombination coefficients, cm³ s⁻¹.
const (
	AlphaB      = 3e-13 // density estimates
	AlphaBCaseB = 2e-13 // emission measure estimates
)

// Turnover returns ν₀ = T_e^1.5/1000 GHz, the frequency separating the low
// and high frequency Gaunt factor regimes of Tau.
func Turnover(te unit.Temperature) float64 {
	return math.Pow(float64(te), 1.5) / 1000
}

// Tau returns the free-free optical depth at nu GHz (Rohlfs & Wilson
// eqns 9.33, 9.34).  Below Turnover the Gaunt factor
// ln(4.955e-2/ν) + 1.5 ln T_e applies.
func Tau(nu float64, em phys.EmissionMeasure, te unit.Temperature) float64 {
	t := float64(te)
	tau := 3.014e-2 * math.Pow(t, -1.5) / (nu * nu) * float64(em)
	if nu < Turnover(te) {
		tau *= math.Log(4.955e-2/nu) + 1.5*math.Log(t)
	}
	return tau
}

// Intensity returns the specific intensity for optical depth tau under
// the Rayleigh-Jeans approximation.  Above τ = 1 it is the flat optically
// thick value 2kT_eν²/c², below it is attenuated as τ·e^(1-τ), meeting
// the thick branch at τ = 1.
func Intensity(nu unit.Frequency, tau float64, te unit.Temperature) float64 {
	rj := phys.RayleighJeans(te, nu)
	if tau < 1 {
		return tau * math.Exp(1-tau) * rj
	}
	return rj
}

// NuTau1 returns the frequency in GHz where τ = 1 by the Altenhoff
// approximation τ = 8.235e-2 T_e^-1.35 ν^-2.1 EM.
func NuTau1(em phys.EmissionMeasure, te unit.Temperature) float64 {
	return math.Pow(math.Pow(float64(te), 1.35)/float64(em)/8.235e-2, -1/2.1)
}

// TauCondon is the optical depth by Condon & Ransom eqn 4.60,
// τ = 3.28e-7 (T_e/10⁴K)^-1.35 ν^-2.1 EM.
func TauCondon(nu float64, em phys.EmissionMeasure, te unit.Temperature) float64 {
	return 3.28e-7 * math.Pow(float64(te)/1e4, -1.35) * math.Pow(nu, -2.1) * float64(em)
}

// BrightnessTemperature returns T_e(1 - e^-τ) with τ from TauCondon.
func BrightnessTemperature(nu float64, em phys.EmissionMeasure, te unit.Temperature) unit.Temperature {
	return te * unit.Temperature(-math.Expm1(-TauCondon(nu, em, te)))
}

// Diluted scales a brightness temperature for a source of radius r
// observed with a beam of linear radius beam.  Resolved sources are
// unchanged.
func Diluted(tb unit.Temperature, r, beam unit.Length) unit.Temperature {
	if beam < r {
		return tb
	}
	f := float64(r / beam)
	return tb * unit.Temperature(f*f)
}

// EMOfBrightness inverts BrightnessTemperature (Condon & Ransom eqn 4.61).
func EMOfBrightness(tb, te unit.Temperature, nu float64) phys.EmissionMeasure {
	return phys.EmissionMeasure(-3.05e6 * math.Pow(float64(te)/1e4, 1.35) *
		math.Pow(nu, 2.1) * math.Log(1-float64(tb/te)))
}

func cm(l unit.Length) float64 { return float64(l) * 100 }

const pcCM = phys.Parsec * 100

// ElectronDensity returns the density in cm⁻³ of a uniform sphere of
// radius r ionized by qlyc Lyman continuum photons s⁻¹, with recombination
// coefficient alphaB cm³ s⁻¹.
func ElectronDensity(qlyc float64, r unit.Length, alphaB float64) float64 {
	rc := cm(r)
	return math.Sqrt(3 * qlyc / (4 * math.Pi * rc * rc * rc * alphaB))
}

// EmissionMeasureOf returns n_e² r for the sphere of ElectronDensity.
func EmissionMeasureOf(qlyc float64, r unit.Length, alphaB float64) phys.EmissionMeasure {
	n := ElectronDensity(qlyc, r, alphaB)
	return phys.EmissionMeasure(n * n * float64(r) / phys.Parsec)
}

// QlycOfEM is the inverse of EmissionMeasureOf.
func QlycOfEM(em phys.EmissionMeasure, r unit.Length, alphaB float64) float64 {
	rc := cm(r)
	n2 := float64(em) * pcCM / rc
	return 4. / 3 * math.Pi * rc * rc * rc * alphaB * n2
}

// QlycOfBrightness returns the ionizing photon rate implied by brightness
// tb at nu GHz from a sphere of radius r.
func QlycOfBrightness(tb, te unit.Temperature, nu float64, r unit.Length, alphaB float64) float64 {
	return QlycOfEM(EMOfBrightness(tb, te, nu), r, alphaB)
}

// FluxOfBrightness converts a Rayleigh-Jeans brightness temperature at nu
// GHz over solid angle omega sr to flux density.
func FluxOfBrightness(tb unit.Temperature, nu float64, omega float64) phys.FluxDensity {
	return phys.FluxFromSI(phys.RayleighJeans(tb, phys.GHz(nu)) * omega)
}
