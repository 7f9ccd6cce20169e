// Public domain.

// Package rotdiag fits rotational (Boltzmann) diagrams.
//
// A rotational diagram plots ln(N_u/g_u), the upper state column density
// per degenerate sublevel, against upper state energy E_u/k.  For optically
// thin emission in LTE the points fall on a line of slope -1/T_ex with
// intercept ln(N_tot/Q(T_ex)).
//
// Units at this package boundary are fixed: energies in K, N_u/g_u and
// their uncertainties in cm⁻², integrated intensities in K km s⁻¹.
package rotdiag

import (
	"math"

	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/lines"
	"github.com/soniakeys/w51fit/internal/phys"
)

// NupperOfKKms converts integrated intensity to upper state column
// density per degenerate sublevel, assuming optically thin emission:
//
//	N_u/g_u = 8πνk/(h A c²) · W ν/c / g_u
//
// w is in K km s⁻¹, the result in cm⁻².  The conversion is linear in w, so
// it applies equally to intensity uncertainties.
func NupperOfKKms(w phys.IntegratedIntensity, t lines.Transition) float64 {
	return float64(w) * perKKms(t)
}

// perKKms is N_u/g_u in cm⁻² for 1 K km s⁻¹.
func perKKms(t lines.Transition) float64 {
	nu := float64(t.Frequency)
	a := float64(t.EinsteinA)
	nline := 8 * math.Pi * nu * phys.Boltzmann /
		(phys.Planck * a * phys.C * phys.C)
	khz := phys.IntegratedIntensity(1).SI() * nu / phys.C
	return float64(phys.ColumnFromSI(nline*khz)) / t.Degeneracy
}

// NuppersOfKKms applies NupperOfKKms elementwise, w[i] going with trs[i].
// The result is a new slice.
func NuppersOfKKms(w []float64, trs []lines.Transition) []float64 {
	nu := make([]float64, len(w))
	for i, x := range w {
		nu[i] = x * perKKms(trs[i])
	}
	return nu
}

// LineIntensity is the optically thin forward model, the inverse of
// NupperOfKKms.  It returns the integrated intensity of transition t from
// a total column n at excitation temperature tex with partition function q.
func LineIntensity(t lines.Transition, tex unit.Temperature, n phys.ColumnDensity, q float64) phys.IntegratedIntensity {
	nug := float64(n) * math.Exp(-float64(t.EUpper/tex)) / q
	return phys.IntegratedIntensity(nug / perKKms(t))
}
