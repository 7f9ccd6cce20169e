// Public domain.

package cube

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
	"github.com/soniakeys/meeus/v3/coord"
	sexa "github.com/soniakeys/sexagesimal"
	"github.com/soniakeys/unit"
)

// WCS is a linear celestial coordinate system, adequate for the small
// fields of interferometer images.  Right ascension offsets are scaled by
// 1/cos of the reference declination.
type WCS struct {
	CRVal1 unit.RA    // reference right ascension
	CRVal2 unit.Angle // reference declination
	CRPix1 float64    // 1-based reference pixel
	CRPix2 float64
	CDelt1 unit.Angle // increment per pixel, normally negative
	CDelt2 unit.Angle
}

// HeaderWCS reads a WCS from an image header.  Increments come from
// CDELTi or, when those are missing, the diagonal of the CD matrix.
func HeaderWCS(hdr []fitsio.Card) (WCS, error) {
	get := func(names ...string) (float64, error) {
		for _, n := range names {
			if v, ok := Float(hdr, n); ok {
				return v, nil
			}
		}
		return 0, fmt.Errorf("header missing %s", names[0])
	}
	var w WCS
	var v [6]float64
	var err error
	for i, n := range [][]string{
		{"CRVAL1"}, {"CRVAL2"}, {"CRPIX1"}, {"CRPIX2"},
		{"CDELT1", "CD1_1"}, {"CDELT2", "CD2_2"},
	} {
		if v[i], err = get(n...); err != nil {
			return w, err
		}
	}
	if v[4] == 0 || v[5] == 0 {
		return w, fmt.Errorf("zero pixel increment")
	}
	w.CRVal1 = unit.RAFromDeg(v[0])
	w.CRVal2 = unit.AngleFromDeg(v[1])
	w.CRPix1, w.CRPix2 = v[2], v[3]
	w.CDelt1 = unit.AngleFromDeg(v[4])
	w.CDelt2 = unit.AngleFromDeg(v[5])
	return w, nil
}

// Cards returns header cards describing w.
func (w WCS) Cards() []fitsio.Card {
	return []fitsio.Card{
		{Name: "CTYPE1", Value: "RA---SIN"},
		{Name: "CTYPE2", Value: "DEC--SIN"},
		{Name: "CRVAL1", Value: unit.Angle(w.CRVal1).Deg()},
		{Name: "CRVAL2", Value: w.CRVal2.Deg()},
		{Name: "CRPIX1", Value: w.CRPix1},
		{Name: "CRPIX2", Value: w.CRPix2},
		{Name: "CDELT1", Value: w.CDelt1.Deg()},
		{Name: "CDELT2", Value: w.CDelt2.Deg()},
		{Name: "CUNIT1", Value: "deg"},
		{Name: "CUNIT2", Value: "deg"},
	}
}

// Sky returns the equatorial coordinates of 0-based pixel position (x, y).
func (w WCS) Sky(x, y float64) coord.Equatorial {
	dec := w.CRVal2 + unit.Angle(y+1-w.CRPix2)*w.CDelt2
	dra := unit.Angle(x+1-w.CRPix1) * w.CDelt1 / unit.Angle(math.Cos(w.CRVal2.Rad()))
	ra := w.CRVal1 + unit.RA(dra)
	switch {
	case ra < 0:
		ra += unit.RA(2 * math.Pi)
	case ra >= unit.RA(2*math.Pi):
		ra -= unit.RA(2 * math.Pi)
	}
	return coord.Equatorial{RA: ra, Dec: dec}
}

// Pixel returns the 0-based pixel position of eq.
func (w WCS) Pixel(eq coord.Equatorial) (x, y float64) {
	dra := unit.Angle(eq.RA - w.CRVal1)
	// wrap through 0h
	if dra.Rad() > math.Pi {
		dra -= unit.Angle(2 * math.Pi)
	} else if dra.Rad() < -math.Pi {
		dra += unit.Angle(2 * math.Pi)
	}
	x = float64(dra*unit.Angle(math.Cos(w.CRVal2.Rad()))/w.CDelt1) + w.CRPix1 - 1
	y = float64((eq.Dec-w.CRVal2)/w.CDelt2) + w.CRPix2 - 1
	return
}

// PixelScale is the geometric mean of the absolute pixel increments.
func (w WCS) PixelScale() unit.Angle {
	return unit.Angle(math.Sqrt(math.Abs(w.CDelt1.Rad() * w.CDelt2.Rad())))
}

// Beam is a Gaussian restoring beam.
type Beam struct {
	Major, Minor unit.Angle // full widths at half maximum
	PA           unit.Angle
}

// HeaderBeam reads BMAJ, BMIN and BPA from a header.
func HeaderBeam(hdr []fitsio.Card) (Beam, bool) {
	maj, ok1 := Float(hdr, "BMAJ")
	min, ok2 := Float(hdr, "BMIN")
	if !ok1 || !ok2 {
		return Beam{}, false
	}
	pa, _ := Float(hdr, "BPA")
	return Beam{unit.AngleFromDeg(maj), unit.AngleFromDeg(min), unit.AngleFromDeg(pa)}, true
}

// Area returns the beam solid angle π/(4 ln 2)·θmaj·θmin in sr.
func (b Beam) Area() float64 {
	return math.Pi / (4 * math.Ln2) * b.Major.Rad() * b.Minor.Rad()
}

// AreaSqArcsec returns the beam solid angle in square arc seconds.
func (b Beam) AreaSqArcsec() float64 {
	return math.Pi / (4 * math.Ln2) * b.Major.Sec() * b.Minor.Sec()
}

// FormatPosition formats eq sexagesimally.
func FormatPosition(eq coord.Equatorial) string {
	return fmt.Sprintf("%.3s %.2s", sexa.FmtRA(eq.RA), sexa.FmtAngle(eq.Dec))
}

// ParsePosition parses a position written as colon separated sexagesimal
// right ascension in hours and declination in degrees, for example
// "19:23:43.963 +14:30:34.53".  Either part may instead be decimal degrees.
func ParsePosition(s string) (coord.Equatorial, error) {
	f := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(f) != 2 {
		return coord.Equatorial{}, fmt.Errorf("position %q: want RA and Dec", s)
	}
	ra, err := parseSexa(f[0])
	if err != nil {
		return coord.Equatorial{}, fmt.Errorf("position %q: %w", s, err)
	}
	dec, err := parseSexa(f[1])
	if err != nil {
		return coord.Equatorial{}, fmt.Errorf("position %q: %w", s, err)
	}
	if strings.ContainsRune(f[0], ':') {
		ra *= 15
	}
	if ra < 0 || ra >= 360 || dec < -90 || dec > 90 {
		return coord.Equatorial{}, fmt.Errorf("position %q out of range", s)
	}
	return coord.Equatorial{RA: unit.RAFromDeg(ra), Dec: unit.AngleFromDeg(dec)}, nil
}

// parseSexa parses d:m:s or decimal, returning units of the leading field.
func parseSexa(s string) (float64, error) {
	neg := strings.HasPrefix(s, "-")
	p := strings.Split(strings.TrimLeft(s, "+-"), ":")
	if len(p) > 3 {
		return 0, fmt.Errorf("too many fields in %q", s)
	}
	v, scale := 0., 1.
	for i, x := range p {
		f, err := strconv.ParseFloat(x, 64)
		if err != nil || f < 0 || (i > 0 && f >= 60) {
			return 0, fmt.Errorf("invalid sexagesimal %q", s)
		}
		v += f / scale
		scale *= 60
	}
	if neg {
		v = -v
	}
	return v, nil
}
