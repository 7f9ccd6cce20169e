// Public domain.

package partfunc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/unit"
)

// Table interpolates tabulated partition functions.
//
// Interpolation is linear in log Q against log T.  Outside the tabulated
// range the end segments are extended as power laws for at most a factor
// Extrapolate in temperature.  Beyond that Q returns ErrOutOfRange.
type Table struct {
	Extrapolate float64
	curves      map[string]*curve
}

type curve struct {
	lt0, lt1 float64 // log T range
	pl       interp.PiecewiseLinear
	lt, lq   []float64
}

// ReadTable reads partition function values, one per line as
//
//	molecule  temperature-K  Q
//
// Each molecule needs at least two distinct temperatures.
func ReadTable(r io.Reader) (*Table, error) {
	type point struct{ t, q float64 }
	pts := map[string][]point{}
	sc := bufio.NewScanner(r)
	for ln := 1; sc.Scan(); ln++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.Fields(line)
		if len(f) != 3 {
			return nil, fmt.Errorf("table line %d: %d columns, want 3", ln, len(f))
		}
		t, err := strconv.ParseFloat(f[1], 64)
		if err != nil {
			return nil, fmt.Errorf("table line %d: %w", ln, err)
		}
		q, err := strconv.ParseFloat(f[2], 64)
		if err != nil {
			return nil, fmt.Errorf("table line %d: %w", ln, err)
		}
		if !(t > 0) || !(q > 0) {
			return nil, fmt.Errorf("table line %d: T and Q must be positive", ln)
		}
		pts[f[0]] = append(pts[f[0]], point{t, q})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	tb := &Table{Extrapolate: 2, curves: map[string]*curve{}}
	for mol, p := range pts {
		sort.Slice(p, func(i, j int) bool { return p[i].t < p[j].t })
		c := &curve{}
		for i, pt := range p {
			if i > 0 && pt.t == p[i-1].t {
				return nil, fmt.Errorf("table: %s: duplicate temperature %g", mol, pt.t)
			}
			c.lt = append(c.lt, math.Log(pt.t))
			c.lq = append(c.lq, math.Log(pt.q))
		}
		if len(c.lt) < 2 {
			return nil, fmt.Errorf("table: %s: need at least two temperatures", mol)
		}
		if err := c.pl.Fit(c.lt, c.lq); err != nil {
			return nil, fmt.Errorf("table: %s: %w", mol, err)
		}
		c.lt0, c.lt1 = c.lt[0], c.lt[len(c.lt)-1]
		tb.curves[mol] = c
	}
	return tb, nil
}

// Q implements Lookup.
func (tb *Table) Q(ctx context.Context, molecule string, t unit.Temperature) (float64, error) {
	c, ok := tb.curves[molecule]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMolecule, molecule)
	}
	if err := checkT(t); err != nil {
		return 0, err
	}
	lt := math.Log(float64(t))
	lim := math.Log(math.Max(tb.Extrapolate, 1))
	n := len(c.lt)
	switch {
	case lt < c.lt0-lim || lt > c.lt1+lim:
		return 0, fmt.Errorf("%w: %s at %g K", ErrOutOfRange, molecule, float64(t))
	case lt < c.lt0:
		return math.Exp(extend(c.lt[0], c.lq[0], c.lt[1], c.lq[1], lt)), nil
	case lt > c.lt1:
		return math.Exp(extend(c.lt[n-2], c.lq[n-2], c.lt[n-1], c.lq[n-1], lt)), nil
	}
	return math.Exp(c.pl.Predict(lt)), nil
}

func extend(x0, y0, x1, y1, x float64) float64 {
	return y0 + (y1-y0)/(x1-x0)*(x-x0)
}

// Molecules lists the molecules in the table.
func (tb *Table) Molecules() []string {
	m := make([]string, 0, len(tb.curves))
	for k := range tb.curves {
		m = append(m, k)
	}
	sort.Strings(m)
	return m
}
