// Public domain.

// Package lines holds spectral line transitions and reads line catalogs.
//
// A catalog file has one transition per line with five columns:
//
//	name  rest-frequency-GHz  upper-energy-K  upper-degeneracy  log10-Aij
//
// Columns are separated by tabs or '|' when either is present on the line,
// otherwise by runs of white space.  Names may then contain spaces only in
// the tab or '|' separated forms.  Blank lines and lines starting with '#'
// are ignored.  So is a single heading line before the first transition,
// this is recognized as a line where the frequency column does not parse.
package lines

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/phys"
)

// Transition is a single rotational transition.
type Transition struct {
	Name       string
	Frequency  unit.Frequency   // rest frequency
	EUpper     unit.Temperature // upper state energy, E_u/k
	Degeneracy float64          // upper state degeneracy g_u
	EinsteinA  unit.Frequency   // spontaneous emission coefficient A_ul, s⁻¹
}

// Catalog is a set of transitions sorted by frequency.
type Catalog []Transition

// ErrNoMatch is returned by Catalog.Match when no transition is close enough.
var ErrNoMatch = errors.New("no catalog transition matches")

// Read reads a line catalog.
func Read(r io.Reader) (Catalog, error) {
	var c Catalog
	sc := bufio.NewScanner(r)
	headingOK := true
	for ln := 1; sc.Scan(); ln++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		f := fields(line)
		if len(f) != 5 {
			return nil, fmt.Errorf("line %d: %d columns, want 5", ln, len(f))
		}
		ghz, err := strconv.ParseFloat(f[1], 64)
		if err != nil {
			if headingOK {
				headingOK = false
				continue
			}
			return nil, fmt.Errorf("line %d: frequency: %w", ln, err)
		}
		headingOK = false
		var v [3]float64
		for i := range v {
			if v[i], err = strconv.ParseFloat(f[i+2], 64); err != nil {
				return nil, fmt.Errorf("line %d: column %d: %w", ln, i+3, err)
			}
		}
		if ghz <= 0 || v[1] <= 0 {
			return nil, fmt.Errorf("line %d: frequency and degeneracy must be positive", ln)
		}
		c = append(c, Transition{
			Name:       f[0],
			Frequency:  phys.GHz(ghz),
			EUpper:     unit.Temperature(v[0]),
			Degeneracy: v[1],
			EinsteinA:  unit.Frequency(math.Pow(10, v[2])),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(c) == 0 {
		return nil, errors.New("no transitions in catalog")
	}
	c.sort()
	return c, nil
}

// ReadFile reads a line catalog from the named file.
func ReadFile(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func fields(line string) []string {
	var f []string
	switch {
	case strings.ContainsRune(line, '|'):
		f = strings.Split(line, "|")
	case strings.ContainsRune(line, '\t'):
		f = strings.Split(line, "\t")
	default:
		return strings.Fields(line)
	}
	for i := range f {
		f[i] = strings.TrimSpace(f[i])
	}
	return f
}

func (c Catalog) sort() {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].Frequency < c[j].Frequency
	})
}

// Nearest returns the transition with rest frequency closest to f.
// The catalog must not be empty.
func (c Catalog) Nearest(f unit.Frequency) Transition {
	i := sort.Search(len(c), func(i int) bool { return c[i].Frequency >= f })
	switch {
	case i == 0:
		return c[0]
	case i == len(c):
		return c[i-1]
	case f-c[i-1].Frequency <= c[i].Frequency-f:
		return c[i-1]
	}
	return c[i]
}

// Named returns the transition with the given name.
func (c Catalog) Named(name string) (Transition, bool) {
	for _, t := range c {
		if t.Name == name {
			return t, true
		}
	}
	return Transition{}, false
}

// Match finds a transition by name, or failing that by the nearest
// frequency within tol.  Either name or f may be zero valued.
func (c Catalog) Match(name string, f, tol unit.Frequency) (Transition, error) {
	if name != "" {
		if t, ok := c.Named(name); ok {
			return t, nil
		}
	}
	if f > 0 && len(c) > 0 {
		t := c.Nearest(f)
		if math.Abs(float64(t.Frequency-f)) <= float64(tol) {
			return t, nil
		}
	}
	return Transition{}, fmt.Errorf("%w name %q frequency %.6f GHz",
		ErrNoMatch, name, phys.InGHz(f))
}

// Fetch gets a catalog over HTTP and writes it to the named file.
func Fetch(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: %s", url, r.Status)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err = io.Copy(f, r.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
