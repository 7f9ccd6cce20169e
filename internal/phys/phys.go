// Public domain.

// Package phys fixes the unit conventions used at package boundaries.
//
// SI quantities travel as gonum unit types (unit.Frequency, unit.Temperature,
// unit.Energy, unit.Length).  The radio astronomy quantities that have no SI
// home travel as the named types below, each with its unit in the type's doc.
// Conversion between the two happens only through the functions in this
// package.
package phys

import (
	"math"

	"gonum.org/v1/gonum/unit"
	"gonum.org/v1/gonum/unit/constant"
)

// Physical constants, SI.
const (
	Boltzmann  = float64(constant.Boltzmann)          // J K⁻¹
	Planck     = float64(constant.Planck)             // J s
	C          = float64(constant.LightSpeedInVacuum) // m s⁻¹
	ProtonMass = 1.67262192369e-27                    // kg, CODATA 2018
)

// Astronomical constants, SI (IAU 2012/2015 nominal values).
const (
	AU        = 1.495978707e11        // m
	Parsec    = 3.0856775814913673e16 // m
	SolarMass = 1.988409870698051e30  // kg
)

// ColumnDensity is a column density in cm⁻².
type ColumnDensity float64

// IntegratedIntensity is a brightness temperature integrated over velocity,
// in K km s⁻¹.
type IntegratedIntensity float64

// EmissionMeasure is in pc cm⁻⁶.
type EmissionMeasure float64

// FluxDensity is in mJy.
type FluxDensity float64

// 1 mJy in W m⁻² Hz⁻¹.
const mJy = 1e-29

// GHz returns the frequency f given in GHz.
func GHz(f float64) unit.Frequency {
	return unit.Frequency(f * unit.Giga)
}

// InGHz returns f in GHz.
func InGHz(f unit.Frequency) float64 {
	return float64(f) / unit.Giga
}

// EnergyOfTemperature converts an energy expressed as a temperature, E/k,
// to an energy.
func EnergyOfTemperature(t unit.Temperature) unit.Energy {
	return unit.Energy(float64(t) * Boltzmann)
}

// TemperatureOfEnergy is the inverse of EnergyOfTemperature.
func TemperatureOfEnergy(e unit.Energy) unit.Temperature {
	return unit.Temperature(float64(e) / Boltzmann)
}

// ColumnFromSI converts a column density in m⁻² to cm⁻².
func ColumnFromSI(perSquareMeter float64) ColumnDensity {
	return ColumnDensity(perSquareMeter * 1e-4)
}

// SI returns n in m⁻².
func (n ColumnDensity) SI() float64 { return float64(n) * 1e4 }

// SI returns w in K m s⁻¹.
func (w IntegratedIntensity) SI() float64 { return float64(w) * 1e3 }

// SI returns s in W m⁻² Hz⁻¹.
func (s FluxDensity) SI() float64 { return float64(s) * mJy }

// FluxFromSI converts W m⁻² Hz⁻¹ to mJy.
func FluxFromSI(s float64) FluxDensity { return FluxDensity(s / mJy) }

// RayleighJeans returns the Rayleigh-Jeans specific intensity 2kTν²/c²,
// W m⁻² Hz⁻¹ sr⁻¹.
func RayleighJeans(t unit.Temperature, nu unit.Frequency) float64 {
	f := float64(nu)
	return 2 * Boltzmann * float64(t) * f * f / (C * C)
}

// PlanckIntensity returns the Planck specific intensity B_ν(T), W m⁻² Hz⁻¹ sr⁻¹.
func PlanckIntensity(t unit.Temperature, nu unit.Frequency) float64 {
	f := float64(nu)
	return 2 * Planck * f * f * f / (C * C) /
		math.Expm1(Planck*f/(Boltzmann*float64(t)))
}

// Finite reports whether x is neither NaN nor infinite.
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
