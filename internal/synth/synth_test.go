// Public domain.

package synth_test

import (
	"context"
	"math"
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
)

// HNCO 10-9 K_a = 0, 1, 2, 3
var hnco = []lines.Transition{
	{Name: "10(0,10)-9(0,9)", Frequency: phys.GHz(219.79827), EUpper: 58.02, Degeneracy: 21, EinsteinA: unit.Frequency(1.47e-4)},
	{Name: "10(1,9)-9(1,8)", Frequency: phys.GHz(220.58475), EUpper: 101.08, Degeneracy: 21, EinsteinA: unit.Frequency(1.45e-4)},
	{Name: "10(2,8)-9(2,7)", Frequency: phys.GHz(219.73719), EUpper: 231.06, Degeneracy: 21, EinsteinA: unit.Frequency(1.40e-4)},
	{Name: "10(3,7)-9(3,6)", Frequency: phys.GHz(219.65677), EUpper: 432.96, Degeneracy: 21, EinsteinA: unit.Frequency(1.32e-4)},
}

func TestIntensitiesNoiseless(t *testing.T) {
	w := synth.Intensities(hnco, 150, 1e15, 900, 0, nil)
	for i, tr := range hnco {
		nug := rotdiag.NupperOfKKms(phys.IntegratedIntensity(w[i]), tr)
		assert.InDelta(t, 1, nug/(1e15/900*math.Exp(-float64(tr.EUpper)/150)), 1e-12)
	}
}

func TestIntensitiesSeeded(t *testing.T) {
	a := synth.Intensities(hnco, 150, 1e15, 900, 0.1, synth.NewRand(3))
	b := synth.Intensities(hnco, 150, 1e15, 900, 0.1, synth.NewRand(3))
	c := synth.Intensities(hnco, 150, 1e15, 900, 0.1, synth.NewRand(4))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCube(t *testing.T) {
	s := synth.CubeSpec{NX: 5, NY: 3, T0: 50, T1: 250, Column: 1e15,
		Molecule: "HNCO", Noise: 0.02, Blank: [][2]int{{1, 2}, {9, 9}}, Seed: 1}
	w, e, err := synth.Cube(context.Background(), hnco, s, partfunc.Fixed(900))
	require.NoError(t, err)
	assert.Equal(t, [3]int{5, 3, 4}, [3]int{w.NX, w.NY, w.NZ})
	assert.True(t, math.IsNaN(w.At(1, 2, 0)))
	n := 0
	for _, v := range w.Data {
		if math.IsNaN(v) {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 0.02, e.At(4, 0, 3))

	wcs, err := cube.HeaderWCS(w.Header)
	require.NoError(t, err)
	assert.InDelta(t, 0, wcs.Separation(0, 0, synth.W51e2.Sky(0, 0)).Sec(), 1e-6)
	assert.InDelta(t, -0.05, synth.W51e2.CDelt1.Sec(), 1e-12)
	assert.InDelta(t, 0.05, synth.W51e2.CDelt2.Sec(), 1e-12)
	assert.InDelta(t, 0.05, wcs.PixelScale().Sec(), 1e-9)
	assert.InDelta(t, 0.05, wcs.Separation(0, 0, synth.W51e2.Sky(0, 1)).Sec(), 1e-6)
	_, ok := cube.HeaderBeam(w.Header)
	assert.True(t, ok)

	_, _, err = synth.Cube(context.Background(), hnco, synth.CubeSpec{}, partfunc.Fixed(900))
	assert.Error(t, err)
}
