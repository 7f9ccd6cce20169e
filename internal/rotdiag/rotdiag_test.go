// Public domain.

package rotdiag_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/lines"
	"github.com/soniakeys/w51fit/internal/partfunc"
	"github.com/soniakeys/w51fit/internal/phys"
	"github.com/soniakeys/w51fit/internal/rotdiag"
)

var ctx = context.Background()

// five CH3OH transitions near 1.3 mm
var ch3oh = []lines.Transition{
	{Name: "4(2,2)-3(1,2)", Frequency: phys.GHz(218.44005), EUpper: 45.46, Degeneracy: 9, EinsteinA: unit.Frequency(math.Pow(10, -4.3292))},
	{Name: "4(2,3)-5(1,4)", Frequency: phys.GHz(234.68345), EUpper: 60.92, Degeneracy: 9, EinsteinA: unit.Frequency(math.Pow(10, -4.7304))},
	{Name: "8(0,8)-7(1,6)", Frequency: phys.GHz(220.07849), EUpper: 96.61, Degeneracy: 17, EinsteinA: unit.Frequency(math.Pow(10, -4.5994))},
	{Name: "5(4,2)-6(3,3)", Frequency: phys.GHz(234.69847), EUpper: 122.72, Degeneracy: 11, EinsteinA: unit.Frequency(math.Pow(10, -5.1966))},
	{Name: "10(2,9)-9(3,6)", Frequency: phys.GHz(231.28115), EUpper: 165.35, Degeneracy: 21, EinsteinA: unit.Frequency(math.Pow(10, -4.7372))},
}

const qFixed = 1185

func eu() []float64 {
	e := make([]float64, len(ch3oh))
	for i, t := range ch3oh {
		e[i] = float64(t.EUpper)
	}
	return e
}

func model(tex unit.Temperature, n phys.ColumnDensity) []float64 {
	w := make([]float64, len(ch3oh))
	for i, t := range ch3oh {
		w[i] = float64(rotdiag.LineIntensity(t, tex, n, qFixed))
	}
	return w
}

func ExampleFitter_Fit() {
	w := model(100, 1e15)
	f := rotdiag.New(partfunc.Fixed(qFixed), rotdiag.DefaultConfig)
	r, err := f.Fit(context.Background(), rotdiag.Diagram{
		EUpper:  eu(),
		NuOverG: rotdiag.NuppersOfKKms(w, ch3oh),
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(r.Status)
	fmt.Printf("T = %.1f K\n", float64(r.Temperature))
	fmt.Printf("N = %.3g cm-2\n", float64(r.Column))
	// Output:
	// fitted
	// T = 100.0 K
	// N = 1e+15 cm-2
}

func TestNupperOfKKmsCGS(t *testing.T) {
	// same conversion written out in cgs
	const (
		k = 1.380649e-16
		h = 6.62607015e-27
		c = 2.99792458e10
	)
	for _, tr := range ch3oh {
		nu := float64(tr.Frequency)
		a := float64(tr.EinsteinA)
		want := 8 * math.Pi * nu * k / (h * a * c * c) * (2.5 * 1e5 * nu / c) / tr.Degeneracy
		got := rotdiag.NupperOfKKms(2.5, tr)
		assert.InDelta(t, 1, got/want, 1e-12, tr.Name)
	}
}

func TestNupperOfKKmsLinear(t *testing.T) {
	tr := ch3oh[2]
	f1 := rotdiag.NupperOfKKms(1, tr)
	assert.Greater(t, f1, 0.)
	assert.Equal(t, 0., rotdiag.NupperOfKKms(0, tr))
	for _, w := range []phys.IntegratedIntensity{0.3, 7, 1e3} {
		assert.InDelta(t, float64(w)*f1, rotdiag.NupperOfKKms(w, tr), 1e-12*float64(w)*f1)
		sum := rotdiag.NupperOfKKms(w, tr) + rotdiag.NupperOfKKms(2*w, tr)
		assert.InDelta(t, sum, rotdiag.NupperOfKKms(3*w, tr), 1e-12*sum)
	}
	assert.Equal(t, -f1, rotdiag.NupperOfKKms(-1, tr))
}

func TestRoundTrip(t *testing.T) {
	f := rotdiag.New(partfunc.Fixed(qFixed), rotdiag.DefaultConfig)
	for _, tc := range []struct {
		tex unit.Temperature
		n   phys.ColumnDensity
	}{
		{100, 1e15},
		{35, 3e14},
		{250, 2e17},
	} {
		w := model(tc.tex, tc.n)
		nug := rotdiag.NuppersOfKKms(w, ch3oh)
		errs := make([]float64, len(nug))
		for i, v := range nug {
			errs[i] = 0.1 * v
		}
		for _, e := range [][]float64{nil, errs} {
			r, err := f.Fit(ctx, rotdiag.Diagram{EUpper: eu(), NuOverG: nug, Errors: e})
			require.NoError(t, err)
			require.Equal(t, rotdiag.Fitted, r.Status)
			assert.InDelta(t, 1, float64(r.Temperature/tc.tex), 0.05)
			assert.InDelta(t, 1, float64(r.Column/tc.n), 0.05)
			assert.Equal(t, 5, r.NUsed)
			assert.InDelta(t, 1, r.RSquared, 1e-9)
		}
	}
}

func TestErrorScaleInvariance(t *testing.T) {
	nug := rotdiag.NuppersOfKKms(model(80, 5e15), ch3oh)
	// perturb so the weights matter
	noise := []float64{1.1, 0.93, 1.05, 0.88, 1.2}
	rel := []float64{0.05, 0.2, 0.1, 0.3, 0.15}
	errs := make([]float64, len(nug))
	for i := range nug {
		nug[i] *= noise[i]
		errs[i] = rel[i] * nug[i]
	}
	f := rotdiag.New(partfunc.Fixed(qFixed), rotdiag.DefaultConfig)
	r1, err := f.Fit(ctx, rotdiag.Diagram{EUpper: eu(), NuOverG: nug, Errors: errs})
	require.NoError(t, err)
	for _, s := range []float64{1e-3, 7, 1e4} {
		scaled := make([]float64, len(errs))
		for i, e := range errs {
			scaled[i] = s * e
		}
		r2, err := f.Fit(ctx, rotdiag.Diagram{EUpper: eu(), NuOverG: nug, Errors: scaled})
		require.NoError(t, err)
		assert.InDelta(t, 1, float64(r2.Temperature/r1.Temperature), 1e-9)
		assert.InDelta(t, 1, float64(r2.Column/r1.Column), 1e-9)
	}
}

func TestDeclinedTooFewValid(t *testing.T) {
	nug := rotdiag.NuppersOfKKms(model(100, 1e15), ch3oh)
	nug[1], nug[2], nug[4] = 0, 0.5, math.NaN()
	f := rotdiag.New(partfunc.Fixed(qFixed), rotdiag.DefaultConfig)
	r, err := f.Fit(ctx, rotdiag.Diagram{EUpper: eu(), NuOverG: nug})
	require.NoError(t, err)
	assert.Equal(t, rotdiag.Declined, r.Status)
	assert.Equal(t, rotdiag.TooFewValid, r.Reason)
	assert.Equal(t, unit.Temperature(0), r.Temperature)
	assert.Equal(t, phys.ColumnDensity(0), r.Column)
	assert.Equal(t, 2, r.NUsed)

	// three of five is enough
	nug[4] = 1e11
	r, err = f.Fit(ctx, rotdiag.Diagram{EUpper: eu(), NuOverG: nug})
	require.NoError(t, err)
	assert.Equal(t, rotdiag.Fitted, r.Status)
	assert.Equal(t, 3, r.NUsed)
}

func TestUpperLimits(t *testing.T) {
	nug := rotdiag.NuppersOfKKms(model(100, 1e15), ch3oh)
	orig := append([]float64(nil), nug...)
	ul := make([]float64, len(nug))
	ul[4] = 2 * nug[4] // one point below its limit

	f := rotdiag.New(partfunc.Fixed(qFixed), rotdiag.DefaultConfig)

	// no errors: the limit value is fit in place of the measurement
	r, err := f.Fit(ctx, rotdiag.Diagram{EUpper: eu(), NuOverG: nug, UpperLimits: ul})
	require.NoError(t, err)
	assert.Equal(t, rotdiag.Fitted, r.Status)
	assert.Equal(t, 1, r.NUpperLimits)
	assert.Equal(t, 5, r.NUsed)
	assert.Greater(t, float64(r.Temperature), 100.)

	// with errors: the point drops out at the default threshold
	errs := make([]float64, len(nug))
	for i, v := range nug {
		errs[i] = 0.1 * v
	}
	r, err = f.Fit(ctx, rotdiag.Diagram{EUpper: eu(), NuOverG: nug, Errors: errs, UpperLimits: ul})
	require.NoError(t, err)
	assert.Equal(t, 4, r.NUsed)
	assert.InDelta(t, 100, float64(r.Temperature), 1e-6)
	assert.Equal(t, orig, nug)

	// three limits of five is more than half
	ul[0], ul[1] = 2*nug[0], 2*nug[1]
	r, err = f.Fit(ctx, rotdiag.Diagram{EUpper: eu(), NuOverG: nug, UpperLimits: ul})
	require.NoError(t, err)
	assert.Equal(t, rotdiag.Declined, r.Status)
	assert.Equal(t, rotdiag.TooManyUpperLimits, r.Reason)
	assert.Equal(t, 3, r.NUpperLimits)

	// unless configured otherwise
	f = rotdiag.New(partfunc.Fixed(qFixed), rotdiag.Config{MaxUpperLimits: 3})
	r, err = f.Fit(ctx, rotdiag.Diagram{EUpper: eu(), NuOverG: nug, UpperLimits: ul})
	require.NoError(t, err)
	assert.Equal(t, rotdiag.Fitted, r.Status)
}

func TestErrorsFromUpperLimits(t *testing.T) {
	nug := rotdiag.NuppersOfKKms(model(100, 1e15), ch3oh)
	errs := make([]float64, len(nug))
	for i, v := range nug {
		errs[i] = 0.1 * v
	}
	ul := make([]float64, len(nug))
	ul[3] = 10 * nug[3]
	f := rotdiag.New(partfunc.Fixed(qFixed), rotdiag.Config{
		MinNupper:             0.5,
		MaxUpperLimits:        -1,
		ErrorsFromUpperLimits: true,
	})
	// flagged point enters at 1 cm⁻² with a huge relative error
	r, err := f.Fit(ctx, rotdiag.Diagram{EUpper: eu(), NuOverG: nug, Errors: errs, UpperLimits: ul})
	require.NoError(t, err)
	assert.Equal(t, 5, r.NUsed)
	assert.InDelta(t, 100, float64(r.Temperature), 0.01)
}

func TestMinNupperZero(t *testing.T) {
	eu := []float64{10, 20, 30}
	nug := []float64{0.5 * math.Exp(2), 0.5 * math.E, 0.5}
	d := rotdiag.Diagram{EUpper: eu, NuOverG: nug}

	r, err := rotdiag.New(partfunc.Fixed(qFixed), rotdiag.DefaultConfig).Fit(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 2, r.NUsed)

	cfg := rotdiag.DefaultConfig
	cfg.MinNupper = 0
	r, err = rotdiag.New(partfunc.Fixed(qFixed), cfg).Fit(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, rotdiag.Fitted, r.Status)
	assert.Equal(t, 3, r.NUsed)
	assert.InDelta(t, 10, float64(r.Temperature), 1e-9)
}

func TestDegenerate(t *testing.T) {
	f := rotdiag.New(partfunc.Fixed(qFixed), rotdiag.DefaultConfig)
	// population rising with energy
	_, err := f.Fit(ctx, rotdiag.Diagram{
		EUpper:  []float64{10, 20, 30},
		NuOverG: []float64{1e10, 2e10, 4e10},
	})
	assert.True(t, errors.Is(err, rotdiag.ErrDegenerate))

	// zero uncertainty
	_, err = f.Fit(ctx, rotdiag.Diagram{
		EUpper:  []float64{10, 20, 30},
		NuOverG: []float64{4e10, 2e10, 1e10},
		Errors:  []float64{1e9, 0, 1e9},
	})
	assert.True(t, errors.Is(err, rotdiag.ErrDegenerate))

	_, err = f.Fit(ctx, rotdiag.Diagram{EUpper: []float64{1}, NuOverG: []float64{1, 2}})
	assert.Error(t, err)
}

func TestLookupFailure(t *testing.T) {
	f := rotdiag.New(partfunc.Registry{}, rotdiag.Config{Molecule: "CH3OH"})
	_, err := f.Fit(ctx, rotdiag.Diagram{
		EUpper:  eu(),
		NuOverG: rotdiag.NuppersOfKKms(model(100, 1e15), ch3oh),
	})
	assert.True(t, errors.Is(err, partfunc.ErrUnknownMolecule))
}
