// Public domain.

package cube

import (
	"errors"
	"fmt"
	"math"

	"github.com/astrogo/fitsio"
	"github.com/soniakeys/coord"
	"github.com/soniakeys/meeus/v3/angle"
	mcoord "github.com/soniakeys/meeus/v3/coord"
	"github.com/soniakeys/unit"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stack stacks same sized images into a cube, plane k from ims[k].
// The cube header is a copy of the first image header.
func Stack(ims []*Image) (*Cube, error) {
	if len(ims) == 0 {
		return nil, errors.New("no images to stack")
	}
	nx, ny := ims[0].NX, ims[0].NY
	c := &Cube{NX: nx, NY: ny, NZ: len(ims),
		Data:   make([]float64, 0, nx*ny*len(ims)),
		Header: Celestial(ims[0].Header)}
	for k, im := range ims {
		if im.NX != nx || im.NY != ny {
			return nil, fmt.Errorf("image %d is %dx%d, want %dx%d", k, im.NX, im.NY, nx, ny)
		}
		c.Data = append(c.Data, im.Data...)
	}
	return c, nil
}

// Moment0 integrates a spectral cube over its third axis.
//
// The channel width in km/s is dv.  Per pixel noise is the standard
// deviation of the first noiseChans channels; channels below clip times
// the noise are excluded from the sum.  With noiseChans < 2 no channels
// are clipped.  A pixel with any NaN channel is NaN.  The second image
// returned is the uncertainty sqrt(n)·σ·|dv| where n channels were summed.
func Moment0(c *Cube, dv float64, noiseChans int, clip float64) (m0, e0 *Image) {
	m0 = NewImage(c.NX, c.NY, Celestial(c.Header))
	e0 = NewImage(c.NX, c.NY, Celestial(c.Header))
	var sp []float64
	for j := 0; j < c.NY; j++ {
		for i := 0; i < c.NX; i++ {
			sp = c.Spectrum(i, j, sp)
			if floats.HasNaN(sp) {
				continue
			}
			sigma := 0.
			if noiseChans >= 2 && noiseChans <= len(sp) {
				sigma = stat.StdDev(sp[:noiseChans], nil)
			}
			sum, n := 0., 0
			for _, v := range sp {
				if noiseChans >= 2 && v < clip*sigma {
					continue
				}
				sum += v
				n++
			}
			m0.Set(i, j, sum*dv)
			e0.Set(i, j, math.Sqrt(float64(n))*sigma*math.Abs(dv))
		}
	}
	return
}

// unit vector toward eq
func cart(eq mcoord.Equatorial) coord.Cart {
	sd, cd := math.Sincos(eq.Dec.Rad())
	sr, cr := math.Sincos(unit.Angle(eq.RA).Rad())
	return coord.Cart{X: cd * cr, Y: cd * sr, Z: sd}
}

// Separation returns the angle between the sky positions of pixel (x, y)
// and eq.
func (w WCS) Separation(x, y float64, eq mcoord.Equatorial) unit.Angle {
	p := w.Sky(x, y)
	return angle.Sep(unit.Angle(p.RA), p.Dec, unit.Angle(eq.RA), eq.Dec)
}

// Cutout extracts the pixels of c within radius of center.  The result
// covers the bounding box of the circle clipped to the cube; box pixels
// outside the circle are NaN.  Header reference pixels are shifted so
// the result keeps the WCS of c.
func Cutout(c *Cube, center mcoord.Equatorial, radius unit.Angle) (*Cube, error) {
	w, err := HeaderWCS(c.Header)
	if err != nil {
		return nil, err
	}
	cx, cy := w.Pixel(center)
	rp := radius.Rad() / w.PixelScale().Rad()
	x0 := max(0, int(math.Floor(cx-rp)))
	y0 := max(0, int(math.Floor(cy-rp)))
	x1 := min(c.NX-1, int(math.Ceil(cx+rp)))
	y1 := min(c.NY-1, int(math.Ceil(cy+rp)))
	if x0 > x1 || y0 > y1 {
		return nil, fmt.Errorf("cutout at %s does not overlap the cube",
			FormatPosition(center))
	}
	// chord length squared between unit vectors
	u0 := cart(center)
	ch := 2 * math.Sin(radius.Rad()/2)
	ch2 := ch * ch

	out := &Cube{NX: x1 - x0 + 1, NY: y1 - y0 + 1, NZ: c.NZ}
	out.Data = make([]float64, out.NX*out.NY*out.NZ)
	inside := make([]bool, out.NX*out.NY)
	for j := y0; j <= y1; j++ {
		for i := x0; i <= x1; i++ {
			u := cart(w.Sky(float64(i), float64(j)))
			var d coord.Cart
			d.Sub(&u, &u0)
			inside[(j-y0)*out.NX+i-x0] = d.Square() <= ch2
		}
	}
	for k := 0; k < c.NZ; k++ {
		for j := y0; j <= y1; j++ {
			for i := x0; i <= x1; i++ {
				v := math.NaN()
				if inside[(j-y0)*out.NX+i-x0] {
					v = c.At(i, j, k)
				}
				out.Data[(k*out.NY+j-y0)*out.NX+i-x0] = v
			}
		}
	}
	ws := w
	ws.CRPix1 -= float64(x0)
	ws.CRPix2 -= float64(y0)
	out.Header = SetCards(c.Header,
		fitsio.Card{Name: "CRPIX1", Value: ws.CRPix1},
		fitsio.Card{Name: "CRPIX2", Value: ws.CRPix2})
	return out, nil
}

// RadialProfile averages im in annuli of width binSize pixels about
// pixel position (cx, cy).  NaN pixels are ignored.  Radii are bin centers
// in pixels; bins with no pixels have NaN means.
func RadialProfile(im *Image, cx, cy, binSize float64) (radii, means []float64, counts []int) {
	if !(binSize > 0) {
		return
	}
	rmax := 0.
	for _, x := range []float64{0, float64(im.NX - 1)} {
		for _, y := range []float64{0, float64(im.NY - 1)} {
			rmax = math.Max(rmax, math.Hypot(x-cx, y-cy))
		}
	}
	nb := int(rmax/binSize) + 1
	sums := make([]float64, nb)
	counts = make([]int, nb)
	for j := 0; j < im.NY; j++ {
		for i := 0; i < im.NX; i++ {
			v := im.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			b := int(math.Hypot(float64(i)-cx, float64(j)-cy) / binSize)
			sums[b] += v
			counts[b]++
		}
	}
	radii = make([]float64, nb)
	means = make([]float64, nb)
	for b := range sums {
		radii[b] = (float64(b) + .5) * binSize
		if counts[b] == 0 {
			means[b] = math.NaN()
		} else {
			means[b] = sums[b] / float64(counts[b])
		}
	}
	return
}
