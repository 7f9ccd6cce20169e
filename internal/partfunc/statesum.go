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

	"gonum.org/v1/gonum/unit"
)

// Level is one energy level of a molecule.
type Level struct {
	Energy     unit.Temperature // E/k
	Degeneracy float64
}

// StateSum computes Q(T) = Σ g exp(-E/kT) directly over energy levels.
type StateSum map[string][]Level

// Q implements Lookup.
func (s StateSum) Q(ctx context.Context, molecule string, t unit.Temperature) (float64, error) {
	lv, ok := s[molecule]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMolecule, molecule)
	}
	if err := checkT(t); err != nil {
		return 0, err
	}
	q := 0.
	// levels are sorted by energy, largest terms sum last
	for i := len(lv) - 1; i >= 0; i-- {
		q += lv[i].Degeneracy * math.Exp(-float64(lv[i].Energy/t))
	}
	return q, nil
}

// ReadLevels reads energy levels, one per line as
//
//	molecule  energy-K  degeneracy
//
// Blank lines and lines starting with '#' are ignored.
func ReadLevels(r io.Reader) (StateSum, error) {
	s := StateSum{}
	sc := bufio.NewScanner(r)
	for ln := 1; sc.Scan(); ln++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.Fields(line)
		if len(f) != 3 {
			return nil, fmt.Errorf("levels line %d: %d columns, want 3", ln, len(f))
		}
		e, err := strconv.ParseFloat(f[1], 64)
		if err != nil {
			return nil, fmt.Errorf("levels line %d: %w", ln, err)
		}
		g, err := strconv.ParseFloat(f[2], 64)
		if err != nil {
			return nil, fmt.Errorf("levels line %d: %w", ln, err)
		}
		if e < 0 || g <= 0 {
			return nil, fmt.Errorf("levels line %d: invalid level", ln)
		}
		s[f[0]] = append(s[f[0]], Level{unit.Temperature(e), g})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for _, lv := range s {
		sort.Slice(lv, func(i, j int) bool { return lv[i].Energy < lv[j].Energy })
	}
	return s, nil
}
