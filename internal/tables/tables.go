// Public domain.

// Package tables reads the plain text measurement tables fed to the fits.
//
// Columns are separated by white space, commas, or '|'.  Blank lines and
// lines starting with '#' are ignored, as is a heading line before the
// first row of numbers.  Any other line that does not parse is an error
// reported with its line number.
package tables

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/freefree"
	"github.com/soniakeys/w51fit/internal/phys"
)

// scan calls row with the fields of each data line.
func scan(r io.Reader, row func(ln int, f []string) error) error {
	sc := bufio.NewScanner(r)
	heading := true
	for ln := 1; sc.Scan(); ln++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == '|' || r == ' ' || r == '\t'
		})
		err := row(ln, f)
		if err == nil {
			heading = false
			continue
		}
		var ne *strconv.NumError
		if heading && errors.As(err, &ne) {
			heading = false
			continue
		}
		return fmt.Errorf("line %d: %w", ln, err)
	}
	return sc.Err()
}

func floats(f []string) ([]float64, error) {
	v := make([]float64, len(f))
	for i, s := range f {
		var err error
		if v[i], err = strconv.ParseFloat(s, 64); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// ReadSED reads photometry for a free-free fit, one point per line as
//
//	frequency-GHz  flux-mJy  [uncertainty-mJy]
//
// Uncertainties must be given on every line or none.  The result is in
// file order.
func ReadSED(r io.Reader) (freefree.SED, error) {
	var s freefree.SED
	withErr := -1
	err := scan(r, func(ln int, f []string) error {
		if len(f) < 2 || len(f) > 3 {
			return fmt.Errorf("%d columns, want 2 or 3", len(f))
		}
		v, err := floats(f)
		if err != nil {
			return err
		}
		has := 0
		if len(v) == 3 {
			has = 1
		}
		switch withErr {
		case -1:
			withErr = has
		case has:
		default:
			return errors.New("uncertainty column on some lines but not others")
		}
		s.Nu = append(s.Nu, v[0])
		s.Flux = append(s.Flux, v[1])
		if has == 1 {
			s.Err = append(s.Err, v[2])
		}
		return nil
	})
	if err != nil {
		return freefree.SED{}, err
	}
	if len(s.Nu) == 0 {
		return freefree.SED{}, errors.New("no SED points")
	}
	return s, nil
}

// Measurement is an integrated intensity measurement of one line,
// identified by name, frequency, or both.
type Measurement struct {
	Name      string
	Frequency unit.Frequency // zero if not given
	Intensity phys.IntegratedIntensity
	Error     phys.IntegratedIntensity // zero if not given
}

// ReadMeasurements reads integrated intensities, one line per transition
// as
//
//	line  intensity-K-km/s  [uncertainty-K-km/s]
//
// where line is a catalog name or a rest frequency in GHz.  Names cannot
// contain separators.
func ReadMeasurements(r io.Reader) ([]Measurement, error) {
	var ms []Measurement
	err := scan(r, func(ln int, f []string) error {
		if len(f) < 2 || len(f) > 3 {
			return fmt.Errorf("%d columns, want 2 or 3", len(f))
		}
		v, err := floats(f[1:])
		if err != nil {
			return err
		}
		m := Measurement{Intensity: phys.IntegratedIntensity(v[0])}
		if len(v) == 2 {
			if !(v[1] > 0) {
				return fmt.Errorf("uncertainty %g not positive", v[1])
			}
			m.Error = phys.IntegratedIntensity(v[1])
		}
		if ghz, err := strconv.ParseFloat(f[0], 64); err == nil {
			m.Frequency = phys.GHz(ghz)
		} else {
			m.Name = f[0]
		}
		ms = append(ms, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, errors.New("no measurements")
	}
	return ms, nil
}
