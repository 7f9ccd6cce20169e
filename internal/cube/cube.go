// Public domain.

// Package cube reads, writes and manipulates FITS images and spectral
// cubes.
//
// Pixel data is held as float64 in FITS order: the first axis (x) varies
// fastest, then y, then the third axis.  Blank integer pixels read as NaN.
package cube

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/astrogo/fitsio"
)

// Image is a two dimensional image.  Data[j*NX+i] is pixel (i, j).
type Image struct {
	NX, NY int
	Data   []float64
	Header []fitsio.Card
}

// Cube is a stack of NZ planes.  Data[k*NY*NX+j*NX+i] is pixel (i, j) of
// plane k.
type Cube struct {
	NX, NY, NZ int
	Data       []float64
	Header     []fitsio.Card
}

// NewImage returns a NaN filled image with a copy of hdr.
func NewImage(nx, ny int, hdr []fitsio.Card) *Image {
	im := &Image{NX: nx, NY: ny, Data: make([]float64, nx*ny),
		Header: append([]fitsio.Card(nil), hdr...)}
	for i := range im.Data {
		im.Data[i] = math.NaN()
	}
	return im
}

// At returns pixel (i, j).
func (im *Image) At(i, j int) float64 { return im.Data[j*im.NX+i] }

// Set sets pixel (i, j).
func (im *Image) Set(i, j int, v float64) { im.Data[j*im.NX+i] = v }

// At returns pixel (i, j) of plane k.
func (c *Cube) At(i, j, k int) float64 { return c.Data[(k*c.NY+j)*c.NX+i] }

// Spectrum copies the NZ values at pixel (i, j) into dst, which is grown
// as needed, and returns it.
func (c *Cube) Spectrum(i, j int, dst []float64) []float64 {
	dst = dst[:0]
	for k := 0; k < c.NZ; k++ {
		dst = append(dst, c.At(i, j, k))
	}
	return dst
}

// Plane returns plane k as an image.  Data is copied, the header is a
// celestial header derived from the cube header.
func (c *Cube) Plane(k int) *Image {
	n := c.NX * c.NY
	return &Image{NX: c.NX, NY: c.NY,
		Data:   append([]float64(nil), c.Data[k*n:(k+1)*n]...),
		Header: Celestial(c.Header)}
}

// structural cards are written by fitsio or recomputed on output.
var structural = map[string]bool{
	"SIMPLE": true, "BITPIX": true, "NAXIS": true, "NAXIS1": true,
	"NAXIS2": true, "NAXIS3": true, "NAXIS4": true, "EXTEND": true,
	"BSCALE": true, "BZERO": true, "BLANK": true, "END": true,
	"PCOUNT": true, "GCOUNT": true, "XTENSION": true,
	"COMMENT": true, "HISTORY": true, "": true,
}

// Celestial returns a copy of hdr without cards describing axes past the
// second.
func Celestial(hdr []fitsio.Card) []fitsio.Card {
	var out []fitsio.Card
	for _, c := range hdr {
		if celestial(c.Name) {
			out = append(out, c)
		}
	}
	return out
}

func celestial(name string) bool {
	n := len(name)
	if n < 2 {
		return true
	}
	switch name[:n-1] {
	case "CTYPE", "CRVAL", "CDELT", "CRPIX", "CUNIT", "CROTA":
		return name[n-1] == '1' || name[n-1] == '2'
	}
	// PCi_j, CDi_j
	if n == 5 && (name[:2] == "PC" || name[:2] == "CD") && name[3] == '_' {
		return strings.IndexByte("12", name[2]) >= 0 &&
			strings.IndexByte("12", name[4]) >= 0
	}
	return true
}

// SetCards returns hdr with each of cards replacing a card of the same name
// or appended.
func SetCards(hdr []fitsio.Card, cards ...fitsio.Card) []fitsio.Card {
	out := append([]fitsio.Card(nil), hdr...)
next:
	for _, c := range cards {
		for i := range out {
			if out[i].Name == c.Name {
				out[i] = c
				continue next
			}
		}
		out = append(out, c)
	}
	return out
}

// Card returns the named card from hdr.
func Card(hdr []fitsio.Card, name string) (fitsio.Card, bool) {
	for _, c := range hdr {
		if c.Name == name {
			return c, true
		}
	}
	return fitsio.Card{}, false
}

// Float returns the value of a numeric card.
func Float(hdr []fitsio.Card, name string) (float64, bool) {
	c, ok := Card(hdr, name)
	if !ok {
		return 0, false
	}
	return number(c.Value)
}

func number(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

// ErrNoImage is returned by Read functions when a file has no image data.
var ErrNoImage = errors.New("no image HDU")

type raw struct {
	axes []int
	data []float64
	hdr  []fitsio.Card
}

func read(r io.Reader) (*raw, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	for _, hdu := range f.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok || len(img.Header().Axes()) < 2 {
			continue
		}
		return readImage(img)
	}
	return nil, ErrNoImage
}

func readImage(img fitsio.Image) (*raw, error) {
	h := img.Header()
	rw := &raw{axes: h.Axes()}
	n := 1
	for _, a := range rw.axes {
		n *= a
	}
	for _, k := range h.Keys() {
		if structural[k] {
			continue
		}
		if c := h.Get(k); c != nil {
			rw.hdr = append(rw.hdr, *c)
		}
	}

	rw.data = make([]float64, n)
	var blank *int64
	if c := h.Get("BLANK"); c != nil {
		if b, ok := number(c.Value); ok {
			bi := int64(b)
			blank = &bi
		}
	}
	ints := func(i int, v int64) {
		if blank != nil && v == *blank {
			rw.data[i] = math.NaN()
		} else {
			rw.data[i] = float64(v)
		}
	}
	switch bp := h.Bitpix(); bp {
	case 8:
		buf := make([]byte, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			ints(i, int64(v))
		}
	case 16:
		buf := make([]int16, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			ints(i, int64(v))
		}
	case 32:
		buf := make([]int32, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			ints(i, int64(v))
		}
	case 64:
		buf := make([]int64, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			ints(i, v)
		}
	case -32:
		buf := make([]float32, n)
		if err := img.Read(&buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			rw.data[i] = float64(v)
		}
	case -64:
		if err := img.Read(&rw.data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bp)
	}

	scale, zero := 1., 0.
	if c := h.Get("BSCALE"); c != nil {
		if v, ok := number(c.Value); ok {
			scale = v
		}
	}
	if c := h.Get("BZERO"); c != nil {
		if v, ok := number(c.Value); ok {
			zero = v
		}
	}
	if scale != 1 || zero != 0 {
		for i, v := range rw.data {
			rw.data[i] = v*scale + zero
		}
	}
	return rw, nil
}

// ReadImage reads the first image HDU of a FITS stream.  Axes beyond the
// second must have length 1.
func ReadImage(r io.Reader) (*Image, error) {
	rw, err := read(r)
	if err != nil {
		return nil, err
	}
	for _, a := range rw.axes[2:] {
		if a != 1 {
			return nil, fmt.Errorf("image has %d non-degenerate axes", len(rw.axes))
		}
	}
	return &Image{NX: rw.axes[0], NY: rw.axes[1], Data: rw.data, Header: rw.hdr}, nil
}

// ReadCube reads the first image HDU of a FITS stream as a cube.  A two
// dimensional image reads as a cube with one plane.  Axes beyond the third
// must have length 1.
func ReadCube(r io.Reader) (*Cube, error) {
	rw, err := read(r)
	if err != nil {
		return nil, err
	}
	c := &Cube{NX: rw.axes[0], NY: rw.axes[1], NZ: 1, Data: rw.data, Header: rw.hdr}
	if len(rw.axes) > 2 {
		c.NZ = rw.axes[2]
		for _, a := range rw.axes[3:] {
			if a != 1 {
				return nil, fmt.Errorf("cube has %d non-degenerate axes", len(rw.axes))
			}
		}
	}
	return c, nil
}

// ReadImageFile reads an image from the named FITS file.
func ReadImageFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	im, err := ReadImage(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return im, nil
}

func write(w io.Writer, axes []int, data []float64, hdr []fitsio.Card) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer f.Close()
	im := fitsio.NewImage(-64, axes)
	defer im.Close()
	var cards []fitsio.Card
	for _, c := range SetCards(nil, hdr...) {
		if !structural[c.Name] {
			cards = append(cards, c)
		}
	}
	if err := im.Header().Append(cards...); err != nil {
		return err
	}
	if err := im.Write(data); err != nil {
		return err
	}
	return f.Write(im)
}

// WriteImage writes im as a 64 bit float FITS primary HDU.  Cards in
// extra replace same named cards of im.Header.
func WriteImage(w io.Writer, im *Image, extra ...fitsio.Card) error {
	return write(w, []int{im.NX, im.NY}, im.Data, SetCards(im.Header, extra...))
}

// WriteCube is like WriteImage for a cube.
func WriteCube(w io.Writer, c *Cube, extra ...fitsio.Card) error {
	return write(w, []int{c.NX, c.NY, c.NZ}, c.Data, SetCards(c.Header, extra...))
}
