// Public domain.

package rotdiag

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/partfunc"
	"github.com/soniakeys/w51fit/internal/phys"
)

// Status tells whether a fit produced a result.
type Status int

const (
	Fitted Status = iota
	// Declined means the data did not support a fit.  The result values
	// are all zero.
	Declined
)

func (s Status) String() string {
	if s == Declined {
		return "declined"
	}
	return "fitted"
}

// DeclineReason says why a fit was declined.
type DeclineReason int

const (
	NotDeclined DeclineReason = iota
	TooManyUpperLimits
	TooFewValid
)

func (r DeclineReason) String() string {
	switch r {
	case TooManyUpperLimits:
		return "too many upper limits"
	case TooFewValid:
		return "too few valid points"
	}
	return ""
}

// ErrDegenerate is returned when the regression cannot give a physical
// temperature: a non-negative or non-finite slope, or non-finite weights.
var ErrDegenerate = errors.New("degenerate rotational diagram")

// Config holds settings fixed across many fits.
type Config struct {
	Molecule string // name passed to the partition function lookup

	// Points with N_u/g_u at or below MinNupper are not fit.  Zero keeps
	// every positive point.  DefaultConfig has 1 cm⁻².
	MinNupper float64

	// MaxUpperLimits is the most upper limits allowed before a fit is
	// declined.  Negative means half the number of points.
	MaxUpperLimits int

	// ErrorsFromUpperLimits replaces the uncertainty of each point flagged
	// as an upper limit with the limit itself.
	ErrorsFromUpperLimits bool
}

// DefaultConfig has the default thresholds.  Start from it rather than
// from a zero Config.
var DefaultConfig = Config{MinNupper: 1, MaxUpperLimits: -1}

// Diagram is the data of one rotational diagram.  All slices have the same
// length.  Errors and UpperLimits are optional.
type Diagram struct {
	EUpper      []float64 // K
	NuOverG     []float64 // cm⁻²
	Errors      []float64 // cm⁻²
	UpperLimits []float64 // cm⁻²
}

// Result of a rotational diagram fit.
type Result struct {
	Status       Status
	Reason       DeclineReason
	Temperature  unit.Temperature
	Column       phys.ColumnDensity
	Slope        float64 // K⁻¹
	Intercept    float64 // ln cm⁻²
	Q            float64 // partition function at Temperature
	ChiSquare    float64 // weighted sum of squared residuals in ln N_u/g_u
	RSquared     float64
	NUsed        int // points entering the regression
	NUpperLimits int
}

// Fitter fits rotational diagrams with a fixed configuration and partition
// function.  It is safe for concurrent use provided the Lookup is.
type Fitter struct {
	cfg    Config
	lookup partfunc.Lookup
}

// New returns a Fitter.
func New(lookup partfunc.Lookup, cfg Config) *Fitter {
	return &Fitter{cfg: cfg, lookup: lookup}
}

// sentinel value for upper limit points when uncertainties are given
const upperLimitValue = 1.

// Fit fits a rotational diagram.
//
// Points are treated in these steps:
//
// If upper limits are given, points with N_u/g_u less than their limit are
// flagged.  More than Config.MaxUpperLimits flagged points declines the
// fit.  Without uncertainties, flagged points take the value of the limit.
// With uncertainties, flagged points take the value 1 cm⁻² and, if
// Config.ErrorsFromUpperLimits, the limit as the uncertainty.
//
// Points with values at or below Config.MinNupper are then dropped.  If
// fewer than half of the points remain, or fewer than two, the fit is
// declined.
//
// A straight line is fit to ln(N_u/g_u) against E_u, weighted by inverse
// squared relative uncertainty when uncertainties are given.  The
// temperature is -1/slope and the total column exp(intercept)·Q(T).
//
// Declined fits return a Result with Status Declined and a nil error.
// Errors are ErrDegenerate or a failure of the partition function lookup.
// The slices of d are not modified.
func (f *Fitter) Fit(ctx context.Context, d Diagram) (Result, error) {
	n := len(d.NuOverG)
	if len(d.EUpper) != n ||
		(d.Errors != nil && len(d.Errors) != n) ||
		(d.UpperLimits != nil && len(d.UpperLimits) != n) {
		return Result{}, fmt.Errorf("rotdiag: mismatched lengths")
	}
	val := append([]float64(nil), d.NuOverG...)
	var errs []float64
	if d.Errors != nil {
		errs = append([]float64(nil), d.Errors...)
	}

	nUp := 0
	if d.UpperLimits != nil {
		for i, ul := range d.UpperLimits {
			if !(val[i] < ul) {
				continue
			}
			nUp++
			if errs == nil {
				val[i] = ul
				continue
			}
			val[i] = upperLimitValue
			if f.cfg.ErrorsFromUpperLimits {
				errs[i] = ul
			}
		}
		maxUp := f.cfg.MaxUpperLimits
		if maxUp < 0 {
			maxUp = n / 2
		}
		if nUp > maxUp {
			return Result{Status: Declined, Reason: TooManyUpperLimits,
				NUpperLimits: nUp}, nil
		}
	}

	var x, y, w []float64
	for i, v := range val {
		if !(v > f.cfg.MinNupper) {
			continue
		}
		x = append(x, d.EUpper[i])
		y = append(y, math.Log(v))
		if errs != nil {
			rel := errs[i] / v
			w = append(w, 1/(rel*rel))
		}
	}
	if len(x) < 2 || float64(len(x)) < float64(n)/2 {
		return Result{Status: Declined, Reason: TooFewValid,
			NUsed: len(x), NUpperLimits: nUp}, nil
	}
	for _, wt := range w {
		if !phys.Finite(wt) || wt < 0 {
			return Result{}, fmt.Errorf("%w: invalid weight %g", ErrDegenerate, wt)
		}
	}

	alpha, beta := stat.LinearRegression(x, y, w, false)
	tex := -1 / beta
	if !(tex > 0) || !phys.Finite(tex) || !phys.Finite(alpha) {
		return Result{}, fmt.Errorf("%w: slope %g", ErrDegenerate, beta)
	}
	q, err := f.lookup.Q(ctx, f.cfg.Molecule, unit.Temperature(tex))
	if err != nil {
		return Result{}, fmt.Errorf("partition function: %w", err)
	}
	chi2 := 0.
	for i := range x {
		r := y[i] - alpha - beta*x[i]
		if w != nil {
			r *= math.Sqrt(w[i])
		}
		chi2 += r * r
	}
	return Result{
		Status:       Fitted,
		Temperature:  unit.Temperature(tex),
		Column:       phys.ColumnDensity(math.Exp(alpha + math.Log(q))),
		Slope:        beta,
		Intercept:    alpha,
		Q:            q,
		ChiSquare:    chi2,
		RSquared:     stat.RSquared(x, y, w, alpha, beta),
		NUsed:        len(x),
		NUpperLimits: nUp,
	}, nil
}
