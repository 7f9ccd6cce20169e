// Public domain.

package freefree

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/phys"
)

// SED is a spectral energy distribution: frequencies in GHz, flux
// densities and their uncertainties in mJy.  Err may be nil.
type SED struct {
	Nu, Flux, Err []float64
}

// Sorted returns a copy of s ordered by frequency.
func (s SED) Sorted() SED {
	idx := make([]int, len(s.Nu))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return s.Nu[idx[a]] < s.Nu[idx[b]] })
	out := SED{Nu: make([]float64, len(idx)), Flux: make([]float64, len(idx))}
	if s.Err != nil {
		out.Err = make([]float64, len(idx))
	}
	for i, j := range idx {
		out.Nu[i], out.Flux[i] = s.Nu[j], s.Flux[j]
		if s.Err != nil {
			out.Err[i] = s.Err[j]
		}
	}
	return out
}

// Validate checks that s can be fit with nParams free parameters.
func (s SED) Validate(nParams int) error {
	n := len(s.Nu)
	switch {
	case len(s.Flux) != n || (s.Err != nil && len(s.Err) != n):
		return errors.New("SED columns have different lengths")
	case n < nParams:
		return fmt.Errorf("%d SED points cannot constrain %d parameters", n, nParams)
	}
	for i := range s.Nu {
		if !(s.Nu[i] > 0) || !phys.Finite(s.Nu[i]) || !phys.Finite(s.Flux[i]) {
			return fmt.Errorf("SED point %d invalid", i)
		}
		if s.Err != nil && (!(s.Err[i] > 0) || !phys.Finite(s.Err[i])) {
			return fmt.Errorf("SED point %d: uncertainty must be positive", i)
		}
	}
	return nil
}

// Model returns the free-free flux density in mJy at each frequency nu
// GHz, for normalization normfac, the source solid angle in sr.
func Model(nu []float64, em phys.EmissionMeasure, normfac float64, te unit.Temperature) []float64 {
	out := make([]float64, len(nu))
	for i, f := range nu {
		in := Intensity(phys.GHz(f), Tau(f, em, te), te)
		out[i] = float64(phys.FluxFromSI(normfac * in))
	}
	return out
}

// ModelDust adds a power law dust term normfac2·ν^alpha mJy to Model.
func ModelDust(nu []float64, em phys.EmissionMeasure, normfac, alpha, normfac2 float64, te unit.Temperature) []float64 {
	out := Model(nu, em, normfac, te)
	for i, f := range nu {
		out[i] += normfac2 * math.Pow(f, alpha)
	}
	return out
}

// ModelDustT adds a graybody dust term normfac2·ν^beta·B_ν(T_d) to Model,
// ν in GHz and normfac2 in sr.
func ModelDustT(nu []float64, em phys.EmissionMeasure, normfac, beta, normfac2 float64, td, te unit.Temperature) []float64 {
	out := Model(nu, em, normfac, te)
	for i, f := range nu {
		b := phys.PlanckIntensity(td, phys.GHz(f))
		out[i] += float64(phys.FluxFromSI(normfac2 * math.Pow(f, beta) * b))
	}
	return out
}
