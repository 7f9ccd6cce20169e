// Public domain.

package freefree

import (
	"math"

	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/phys"
)

// mean mass per electron in proton masses, for ionized gas mass
const muH = 2.8

// Region is an HII region with a fitted free-free SED.
type Region struct {
	SED      SED              // sorted by frequency
	Te       unit.Temperature // fixed electron temperature
	BeamArea float64          // arcsec², for resolved sources
	Distance unit.Length
	Resolved bool
	Fit      Result
}

// RegionOptions are the physical settings of a Region.
type RegionOptions struct {
	BeamArea float64 // arcsec², default 0.25
	Distance unit.Length
	Resolved bool
}

// NewRegion sorts s by frequency and fits it.
func NewRegion(s SED, ro RegionOptions, opt Options) (*Region, error) {
	opt = opt.withDefaults()
	if err := s.Validate(2); err != nil {
		return nil, err
	}
	r := &Region{
		SED:      s.Sorted(),
		Te:       opt.Te,
		BeamArea: ro.BeamArea,
		Distance: ro.Distance,
		Resolved: ro.Resolved,
	}
	if r.BeamArea == 0 {
		r.BeamArea = 0.25
	}
	if r.Distance == 0 {
		r.Distance = unit.Length(1e3 * phys.Parsec)
	}
	if err := r.Refit(opt); err != nil {
		return nil, err
	}
	return r, nil
}

// Refit fits the SED again with new options, replacing r.Fit on success.
// Option Te replaces r.Te when nonzero.
func (r *Region) Refit(opt Options) error {
	if opt.Te == 0 {
		opt.Te = r.Te
	}
	res, err := Fit(r.SED, opt)
	if err != nil {
		return err
	}
	r.Te = opt.withDefaults().Te
	r.Fit = res
	return nil
}

// PhysProps are physical properties derived from a fit.
type PhysProps struct {
	Radius  unit.Length
	Density float64 // electron density, cm⁻³
	Mass    float64 // ionized mass, M☉
	Nlyc    float64 // Lyman continuum photon rate, s⁻¹
	EM      phys.EmissionMeasure
	NuTau1  float64 // GHz
}

// PhysProps derives source size, density, mass and ionizing photon rate.
//
// A resolved source has angular size sqrt(BeamArea).  Otherwise the size
// follows from the lowest frequency flux taken as optically thick
// Rayleigh-Jeans emission at T_e.  The density is sqrt(EM/size) and the
// photon rate 8.04e46 T_e^-0.85 U³ with U = n^(2/3)·size in pc.
func (r *Region) PhysProps() PhysProps {
	d := float64(r.Distance)
	var size float64 // m
	if r.Resolved {
		size = math.Sqrt(r.BeamArea) / 3600 * math.Pi / 180 * d
	} else {
		s0 := phys.FluxDensity(r.SED.Flux[0]).SI()
		omega := s0 / phys.RayleighJeans(r.Te, phys.GHz(r.SED.Nu[0]))
		size = d * math.Sqrt(omega/math.Pi)
	}
	sizePC := size / phys.Parsec
	n := math.Sqrt(float64(r.Fit.EM) / sizePC)
	mass := n * 1e6 * 4. / 3 * math.Pi * size * size * size * muH * phys.ProtonMass /
		phys.SolarMass
	u := math.Pow(n, 2./3) * sizePC
	return PhysProps{
		Radius:  unit.Length(size),
		Density: n,
		Mass:    mass,
		Nlyc:    8.04e46 * math.Pow(float64(r.Te), -0.85) * u * u * u,
		EM:      r.Fit.EM,
		NuTau1:  r.Fit.NuTau1,
	}
}
