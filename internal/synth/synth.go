// Public domain.

// Package synth generates synthetic line data with known excitation
// temperature and column density, for exercising the fitting code end to
// end.
package synth

import (
	"context"
	"errors"
	"math"

	"github.com/astrogo/fitsio"
	sunit "github.com/soniakeys/unit"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/cube"
	"github.com/soniakeys/w51fit/internal/lines"
	"github.com/soniakeys/w51fit/internal/partfunc"
	"github.com/soniakeys/w51fit/internal/phys"
	"github.com/soniakeys/w51fit/internal/rotdiag"
)

// NewRand returns a PCG generator seeded with seed.
func NewRand(seed uint64) *xrand.Rand {
	rnd := xrand.New(&xrand.PCGSource{})
	rnd.Seed(seed)
	return rnd
}

// Intensities returns the optically thin integrated intensity of each of
// trs, in K km s⁻¹, plus Gaussian noise of standard deviation sigma.
// rnd may be nil when sigma is zero.
func Intensities(trs []lines.Transition, tex unit.Temperature, n phys.ColumnDensity, q, sigma float64, rnd *xrand.Rand) []float64 {
	w := make([]float64, len(trs))
	for i, t := range trs {
		w[i] = float64(rotdiag.LineIntensity(t, tex, n, q))
		if sigma > 0 {
			w[i] += sigma * rnd.NormFloat64()
		}
	}
	return w
}

// W51e2 is the coordinate system of generated cubes, referenced to the
// W51 e2 hot core.  Reference values are set by init.
var W51e2 = cube.WCS{
	CRPix1: 1,
	CRPix2: 1,
	CDelt1: sunit.AngleFromSec(-0.05),
	CDelt2: sunit.AngleFromSec(0.05),
}

func init() {
	eq, err := cube.ParsePosition("19:23:43.963 +14:30:34.53")
	if err != nil {
		panic(err)
	}
	W51e2.CRVal1, W51e2.CRVal2 = eq.RA, eq.Dec
}

// CubeSpec describes a synthetic cube.  Temperature varies linearly in x
// from T0 at the first column to T1 at the last; column density is
// uniform.
type CubeSpec struct {
	NX, NY   int
	T0, T1   unit.Temperature
	Column   phys.ColumnDensity
	Molecule string
	Noise    float64  // K km s⁻¹
	Blank    [][2]int // pixels (i, j) with a NaN in one plane
	Seed     uint64
}

// Cube builds an intensity cube, one plane per transition, and a matching
// uncertainty cube holding spec.Noise everywhere.  Partition function
// values come from q.
func Cube(ctx context.Context, trs []lines.Transition, spec CubeSpec, q partfunc.Lookup) (intensity, errs *cube.Cube, err error) {
	if spec.NX <= 0 || spec.NY <= 0 || len(trs) == 0 {
		return nil, nil, errors.New("synth: empty cube")
	}
	rnd := NewRand(spec.Seed)
	hdr := cube.SetCards(W51e2.Cards(),
		fitsio.Card{Name: "BUNIT", Value: "K km/s"},
		fitsio.Card{Name: "BMAJ", Value: 0.2 / 3600.},
		fitsio.Card{Name: "BMIN", Value: 0.2 / 3600.},
		fitsio.Card{Name: "BPA", Value: 0.})
	nz := len(trs)
	np := spec.NX * spec.NY
	intensity = &cube.Cube{NX: spec.NX, NY: spec.NY, NZ: nz,
		Data: make([]float64, np*nz), Header: hdr}
	errs = &cube.Cube{NX: spec.NX, NY: spec.NY, NZ: nz,
		Data: make([]float64, np*nz), Header: hdr}
	for i := 0; i < spec.NX; i++ {
		tex := spec.T0
		if spec.NX > 1 {
			tex += (spec.T1 - spec.T0) * unit.Temperature(float64(i)/float64(spec.NX-1))
		}
		qv, err := q.Q(ctx, spec.Molecule, tex)
		if err != nil {
			return nil, nil, err
		}
		for j := 0; j < spec.NY; j++ {
			w := Intensities(trs, tex, spec.Column, qv, spec.Noise, rnd)
			for k, v := range w {
				p := k*np + j*spec.NX + i
				intensity.Data[p] = v
				errs.Data[p] = spec.Noise
			}
		}
	}
	for n, b := range spec.Blank {
		i, j := b[0], b[1]
		if i < 0 || i >= spec.NX || j < 0 || j >= spec.NY {
			continue
		}
		intensity.Data[(n%nz)*np+j*spec.NX+i] = math.NaN()
	}
	return intensity, errs, nil
}
