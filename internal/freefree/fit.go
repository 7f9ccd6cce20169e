// Public domain.

package freefree

import (
	"errors"
	"fmt"
	"math"

	"github.com/maorshutman/lm"
	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/phys"
)

// Dust selects the dust term added to the free-free model: none, the
// power law of ModelDust, or the graybody of ModelDustT.
type Dust int

const (
	NoDust Dust = iota
	PowerLaw
	Graybody
)

// Options control Fit.  Zero values select defaults.
type Options struct {
	Te         unit.Temperature     // fixed electron temperature, 8500 K
	EMGuess    phys.EmissionMeasure // 1e7 pc cm⁻⁶
	NormGuess  float64              // sr; zero derives it from EMGuess
	Dust       Dust
	DustIndex  float64          // initial alpha or beta; 3 or 1.5
	DustNorm   float64          // initial dust normalization; zero derives it
	DustT      unit.Temperature // initial dust temperature, 20 K
	Iterations int              // per solver run, 200
}

// DefaultOptions has the default values filled in.
var DefaultOptions = Options{
	Te:         8500,
	EMGuess:    1e7,
	Iterations: 200,
}

func (o Options) withDefaults() Options {
	if o.Te == 0 {
		o.Te = DefaultOptions.Te
	}
	if o.EMGuess == 0 {
		o.EMGuess = DefaultOptions.EMGuess
	}
	if o.Iterations == 0 {
		o.Iterations = DefaultOptions.Iterations
	}
	if o.DustIndex == 0 {
		o.DustIndex = 3
		if o.Dust == Graybody {
			o.DustIndex = 1.5
		}
	}
	if o.DustT == 0 {
		o.DustT = 20
	}
	return o
}

// Result of a free-free fit.  Dust fields are zero without a dust term.
type Result struct {
	EM          phys.EmissionMeasure
	NuTau1      float64 // GHz
	NormFac     float64 // sr
	ChiSquare   float64
	DustIndex   float64
	DustNorm    float64
	DustT       unit.Temperature
	Evaluations int // model evaluations
}

// ErrNotConverged is wrapped by NotConvergedError.
var ErrNotConverged = errors.New("free-free fit did not converge")

// NotConvergedError reports a fit that did not settle, with the state at
// the last solver step.
type NotConvergedError struct {
	ChiSquare   float64
	Evaluations int
	Params      []float64 // EM, normfac, then any dust parameters
	Cause       error     // solver error, if any
}

func (e *NotConvergedError) Error() string {
	s := fmt.Sprintf("%v: χ² %g after %d evaluations, parameters %g",
		ErrNotConverged, e.ChiSquare, e.Evaluations, e.Params)
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *NotConvergedError) Unwrap() error { return ErrNotConverged }

// param maps a solver variable x to a model parameter.  Positive
// parameters are searched in log space around their starting value so
// all variables are of order unity.
type param struct {
	start float64
	log   bool
}

func (p param) value(x float64) float64 {
	if p.log {
		return p.start * math.Exp(x)
	}
	return p.start + x
}

type problem struct {
	sed    SED
	opt    Options
	params []param
	evals  int
}

func (p *problem) values(x []float64) []float64 {
	v := make([]float64, len(x))
	for i, pr := range p.params {
		v[i] = pr.value(x[i])
	}
	return v
}

func (p *problem) model(v []float64) []float64 {
	em := phys.EmissionMeasure(v[0])
	switch p.opt.Dust {
	case PowerLaw:
		return ModelDust(p.sed.Nu, em, v[1], v[2], v[3], p.opt.Te)
	case Graybody:
		return ModelDustT(p.sed.Nu, em, v[1], v[2], v[3], unit.Temperature(v[4]), p.opt.Te)
	}
	return Model(p.sed.Nu, em, v[1], p.opt.Te)
}

func (p *problem) residuals(dst, x []float64) {
	p.evals++
	m := p.model(p.values(x))
	for i, f := range p.sed.Flux {
		r := f - m[i]
		if p.sed.Err != nil {
			r /= p.sed.Err[i]
		}
		dst[i] = r
	}
}

func (p *problem) chi2(x []float64) float64 {
	r := make([]float64, len(p.sed.Flux))
	p.residuals(r, x)
	s := 0.
	for _, v := range r {
		s += v * v
	}
	return s
}

func (p *problem) solve(x0 []float64) ([]float64, error) {
	jac := lm.NumJac{Func: p.residuals}
	res, err := lm.LM(lm.LMProblem{
		Dim:        len(x0),
		Size:       len(p.sed.Flux),
		Func:       p.residuals,
		Jac:        jac.Jac,
		InitParams: x0,
		Tau:        1e-6,
		Eps1:       1e-8,
		Eps2:       1e-8,
	}, &lm.Settings{Iterations: p.opt.Iterations, ObjectiveTol: 1e-16})
	if err != nil {
		return x0, err
	}
	return res.X, nil
}

// linear least squares scale of m onto the fluxes
func (p *problem) scale(m []float64) float64 {
	num, den := 0., 0.
	for i, f := range p.sed.Flux {
		w := 1.
		if p.sed.Err != nil {
			w = 1 / (p.sed.Err[i] * p.sed.Err[i])
		}
		num += w * f * m[i]
		den += w * m[i] * m[i]
	}
	return num / den
}

// Fit fits a free-free model, optionally with a dust term, to an SED at
// fixed electron temperature by Levenberg-Marquardt minimization of
// Σ((flux-model)/err)².  The SED should be sorted by frequency.
//
// A fit is accepted only if restarting the solver from its solution
// leaves the solution in place.  Otherwise Fit returns a
// *NotConvergedError.
func Fit(s SED, opt Options) (Result, error) {
	opt = opt.withDefaults()
	if err := s.Validate(2); err != nil {
		return Result{}, err
	}
	p := &problem{sed: s, opt: opt}

	norm := opt.NormGuess
	if norm == 0 {
		norm = p.scale(Model(s.Nu, opt.EMGuess, 1, opt.Te))
	}
	if !(norm > 0) || !phys.Finite(norm) {
		return Result{}, fmt.Errorf("no positive normalization fits the SED at EM %g", float64(opt.EMGuess))
	}
	p.params = []param{{float64(opt.EMGuess), true}, {norm, true}}
	switch opt.Dust {
	case PowerLaw, Graybody:
		dn := opt.DustNorm
		if dn == 0 {
			// tenth of the flux at the highest frequency
			var unitDust []float64
			last := len(s.Nu) - 1
			if opt.Dust == PowerLaw {
				unitDust = ModelDust(s.Nu[last:], 0, 0, opt.DustIndex, 1, opt.Te)
			} else {
				unitDust = ModelDustT(s.Nu[last:], 0, 0, opt.DustIndex, 1, opt.DustT, opt.Te)
			}
			dn = 0.1 * math.Abs(s.Flux[last]) / unitDust[0]
		}
		p.params = append(p.params, param{opt.DustIndex, false}, param{dn, true})
		if opt.Dust == Graybody {
			p.params = append(p.params, param{float64(opt.DustT), true})
		}
	}
	if err := s.Validate(len(p.params)); err != nil {
		return Result{}, err
	}

	x0 := make([]float64, len(p.params))
	x1, err := p.solve(x0)
	if err != nil {
		return Result{}, p.notConverged(x1, err)
	}
	c1 := p.chi2(x1)
	x2, err := p.solve(x1)
	if err != nil {
		return Result{}, p.notConverged(x2, err)
	}
	c2 := p.chi2(x2)
	if !phys.Finite(c2) || c2 < c1*(1-1e-6)-1e-12 {
		return Result{}, p.notConverged(x2, nil)
	}
	for i := range x2 {
		if !phys.Finite(x2[i]) || math.Abs(x2[i]-x1[i]) > 1e-3 {
			return Result{}, p.notConverged(x2, nil)
		}
	}

	v := p.values(x2)
	r := Result{
		EM:          phys.EmissionMeasure(v[0]),
		NormFac:     v[1],
		ChiSquare:   c2,
		Evaluations: p.evals,
	}
	r.NuTau1 = NuTau1(r.EM, opt.Te)
	if len(v) > 2 {
		r.DustIndex, r.DustNorm = v[2], v[3]
	}
	if len(v) > 4 {
		r.DustT = unit.Temperature(v[4])
	}
	return r, nil
}

func (p *problem) notConverged(x []float64, cause error) *NotConvergedError {
	return &NotConvergedError{
		ChiSquare:   p.chi2(x),
		Evaluations: p.evals,
		Params:      p.values(x),
		Cause:       cause,
	}
}
