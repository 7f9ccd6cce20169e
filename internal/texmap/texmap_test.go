// Public domain.

package texmap_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/cube"
	"github.com/soniakeys/w51fit/internal/lines"
	"github.com/soniakeys/w51fit/internal/partfunc"
	"github.com/soniakeys/w51fit/internal/phys"
	"github.com/soniakeys/w51fit/internal/rotdiag"
	"github.com/soniakeys/w51fit/internal/synth"
	"github.com/soniakeys/w51fit/internal/texmap"
)

var ctx = context.Background()

var ch3oh = []lines.Transition{
	{Name: "4(2,2)-3(1,2)", Frequency: phys.GHz(218.44005), EUpper: 45.46, Degeneracy: 9, EinsteinA: unit.Frequency(math.Pow(10, -4.3292))},
	{Name: "4(2,3)-5(1,4)", Frequency: phys.GHz(234.68345), EUpper: 60.92, Degeneracy: 9, EinsteinA: unit.Frequency(math.Pow(10, -4.7304))},
	{Name: "8(0,8)-7(1,6)", Frequency: phys.GHz(220.07849), EUpper: 96.61, Degeneracy: 17, EinsteinA: unit.Frequency(math.Pow(10, -4.5994))},
	{Name: "5(4,2)-6(3,3)", Frequency: phys.GHz(234.69847), EUpper: 122.72, Degeneracy: 11, EinsteinA: unit.Frequency(math.Pow(10, -5.1966))},
	{Name: "10(2,9)-9(3,6)", Frequency: phys.GHz(231.28115), EUpper: 165.35, Degeneracy: 21, EinsteinA: unit.Frequency(math.Pow(10, -4.7372))},
}

const qFixed = partfunc.Fixed(1185)

var spec = synth.CubeSpec{
	NX: 6, NY: 4,
	T0: 50, T1: 200,
	Column:   1e16,
	Molecule: "CH3OH",
}

func fitter() *rotdiag.Fitter {
	cfg := rotdiag.DefaultConfig
	cfg.Molecule = "CH3OH"
	return rotdiag.New(qFixed, cfg)
}

func fitSpec(t *testing.T, s synth.CubeSpec, opt texmap.Options) *texmap.Maps {
	w, _, err := synth.Cube(ctx, ch3oh, s, qFixed)
	require.NoError(t, err)
	m, err := texmap.FitAll(ctx, fitter(), texmap.Input{Intensity: w, Transitions: ch3oh}, opt)
	require.NoError(t, err)
	return m
}

func TestFitAllRecovers(t *testing.T) {
	var calls int
	m := fitSpec(t, spec, texmap.Options{Progress: func(done, total int) {
		calls++
		assert.Equal(t, spec.NY, total)
	}})
	assert.Equal(t, spec.NY, calls)
	assert.Equal(t, spec.NX*spec.NY, m.Counts[texmap.Fitted])
	for j := 0; j < spec.NY; j++ {
		for i := 0; i < spec.NX; i++ {
			want := 50 + 150*float64(i)/float64(spec.NX-1)
			assert.InDelta(t, 1, m.Temperature.At(i, j)/want, 1e-6)
			assert.InDelta(t, 1, m.Column.At(i, j)/1e16, 1e-6)
			assert.Equal(t, texmap.Fitted, m.StatusAt(i, j))
		}
	}
}

func TestFitAllNaNPixel(t *testing.T) {
	clean := fitSpec(t, spec, texmap.Options{})
	s := spec
	s.Blank = [][2]int{{2, 1}}
	m := fitSpec(t, s, texmap.Options{})
	assert.Equal(t, texmap.Invalid, m.StatusAt(2, 1))
	assert.True(t, math.IsNaN(m.Temperature.At(2, 1)))
	assert.True(t, math.IsNaN(m.Column.At(2, 1)))
	assert.Equal(t, 1, m.Counts[texmap.Invalid])
	for j := 0; j < spec.NY; j++ {
		for i := 0; i < spec.NX; i++ {
			if i == 2 && j == 1 {
				continue
			}
			assert.Equal(t, clean.Temperature.At(i, j), m.Temperature.At(i, j))
			assert.Equal(t, clean.Column.At(i, j), m.Column.At(i, j))
		}
	}
}

func TestFitAllWorkers(t *testing.T) {
	s := spec
	s.Noise = 0.05
	s.Seed = 7
	one := fitSpec(t, s, texmap.Options{Workers: 1})
	many := fitSpec(t, s, texmap.Options{Workers: 5})
	assert.Equal(t, one.Status, many.Status)
	assert.Equal(t, one.Counts, many.Counts)
	for p, a := range one.Temperature.Data {
		b := many.Temperature.Data[p]
		if !(math.IsNaN(a) && math.IsNaN(b)) {
			assert.Equal(t, a, b)
		}
	}
}

func TestFitAllDeclinedAndDegenerate(t *testing.T) {
	w, e, err := synth.Cube(ctx, ch3oh, synth.CubeSpec{NX: 2, NY: 1, T0: 100, T1: 100,
		Column: 1e16, Molecule: "CH3OH"}, qFixed)
	require.NoError(t, err)
	np := w.NX * w.NY
	for k, tr := range ch3oh {
		// pixel 0: uncertainties swamp every line
		e.Data[k*np] = 1e6
		// pixel 1: populations rise with energy
		e.Data[k*np+1] = 0.01 * w.Data[k*np+1]
		w.Data[k*np+1] *= math.Exp(2 * float64(tr.EUpper) / 100)
	}
	m, err := texmap.FitAll(ctx, fitter(), texmap.Input{Intensity: w, Errors: e, Transitions: ch3oh}, texmap.Options{})
	require.NoError(t, err)
	assert.Equal(t, texmap.Declined, m.StatusAt(0, 0))
	assert.Equal(t, 0., m.Temperature.At(0, 0))
	assert.Equal(t, 0., m.Column.At(0, 0))
	assert.Equal(t, texmap.Degenerate, m.StatusAt(1, 0))
	assert.True(t, math.IsNaN(m.Temperature.At(1, 0)))
	assert.Equal(t, 2, m.Counts.Total())
}

func TestFitAllUpperLimit(t *testing.T) {
	w, _, err := synth.Cube(ctx, ch3oh, synth.CubeSpec{NX: 1, NY: 1, T0: 100, T1: 100,
		Column: 1e16, Molecule: "CH3OH"}, qFixed)
	require.NoError(t, err)
	w.Data[4] = -1
	in := texmap.Input{Intensity: w, Transitions: ch3oh}
	m, err := texmap.FitAll(ctx, fitter(), in, texmap.Options{UpperLimit: 0.5})
	require.NoError(t, err)
	assert.Equal(t, texmap.Fitted, m.StatusAt(0, 0))

	// the same, with the limit substituted by hand
	w2 := &cube.Cube{NX: 1, NY: 1, NZ: w.NZ, Data: append([]float64(nil), w.Data...)}
	w2.Data[4] = 0.5
	m2, err := texmap.FitAll(ctx, fitter(), texmap.Input{Intensity: w2, Transitions: ch3oh}, texmap.Options{})
	require.NoError(t, err)
	assert.InDelta(t, m2.Temperature.At(0, 0), m.Temperature.At(0, 0), 1e-9*m2.Temperature.At(0, 0))
	assert.Equal(t, -1., w.Data[4])
}

func TestFitAllNoPartition(t *testing.T) {
	// Q = T^1.5 tabulated over 10 to 1000 K
	tb, err := partfunc.ReadTable(strings.NewReader("CH3OH 10 31.6227766017\nCH3OH 1000 31622.7766017\n"))
	require.NoError(t, err)
	w := &cube.Cube{NX: 2, NY: 1, NZ: len(ch3oh), Data: make([]float64, 2*len(ch3oh))}
	for p, tex := range []float64{100, 20000} {
		for k, v := range synth.Intensities(ch3oh, unit.Temperature(tex), 1e16, math.Pow(tex, 1.5), 0, nil) {
			w.Data[k*2+p] = v
		}
	}
	cfg := rotdiag.DefaultConfig
	cfg.Molecule = "CH3OH"
	m, err := texmap.FitAll(ctx, rotdiag.New(tb, cfg), texmap.Input{Intensity: w, Transitions: ch3oh}, texmap.Options{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, texmap.Fitted, m.StatusAt(0, 0))
	assert.InDelta(t, 100, m.Temperature.At(0, 0), 1e-6)
	assert.InDelta(t, 1, m.Column.At(0, 0)/1e16, 1e-6)
	assert.Equal(t, texmap.NoPartition, m.StatusAt(1, 0))
	assert.True(t, math.IsNaN(m.Temperature.At(1, 0)))
	assert.True(t, math.IsNaN(m.Column.At(1, 0)))
	assert.Equal(t, 1, m.Counts[texmap.Fitted])
	assert.Equal(t, 1, m.Counts[texmap.NoPartition])
	assert.Equal(t, "no partition function", texmap.NoPartition.String())
}

func TestFitAllErrors(t *testing.T) {
	w, _, err := synth.Cube(ctx, ch3oh, spec, qFixed)
	require.NoError(t, err)

	// an unknown molecule is fatal
	cfg := rotdiag.DefaultConfig
	cfg.Molecule = "HNCO"
	f := rotdiag.New(partfunc.Registry{"CH3OH": qFixed}, cfg)
	_, err = texmap.FitAll(ctx, f, texmap.Input{Intensity: w, Transitions: ch3oh}, texmap.Options{Workers: 3})
	assert.True(t, errors.Is(err, partfunc.ErrUnknownMolecule))

	_, err = texmap.FitAll(ctx, fitter(), texmap.Input{Intensity: w, Transitions: ch3oh[:4]}, texmap.Options{})
	assert.Error(t, err)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = texmap.FitAll(cctx, fitter(), texmap.Input{Intensity: w, Transitions: ch3oh}, texmap.Options{})
	assert.True(t, errors.Is(err, context.Canceled))
}
