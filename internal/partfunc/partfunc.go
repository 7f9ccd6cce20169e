// Public domain.

// Package partfunc provides rotational partition functions Q(T).
//
// Callers see only the Lookup interface.  Implementations here compute Q
// from an energy level list, interpolate a tabulated Q(T), ask a remote
// service over HTTP, or return a fixed value.  A Registry routes lookups by
// molecule to any of these.
package partfunc

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/unit"
)

// Lookup gives the partition function of a molecule at temperature t.
type Lookup interface {
	Q(ctx context.Context, molecule string, t unit.Temperature) (float64, error)
}

var (
	ErrUnknownMolecule = errors.New("unknown molecule")
	ErrOutOfRange      = errors.New("temperature outside table range")
	ErrTemperature     = errors.New("temperature must be positive and finite")
)

func checkT(t unit.Temperature) error {
	if !(t > 0) || math.IsInf(float64(t), 1) {
		return fmt.Errorf("%w: %g K", ErrTemperature, float64(t))
	}
	return nil
}

// Fixed is a Lookup returning the same value for any molecule and
// temperature.
type Fixed float64

// Q implements Lookup.
func (f Fixed) Q(ctx context.Context, molecule string, t unit.Temperature) (float64, error) {
	if err := checkT(t); err != nil {
		return 0, err
	}
	return float64(f), nil
}

// Registry routes lookups by molecule name.
type Registry map[string]Lookup

// Q implements Lookup.
func (r Registry) Q(ctx context.Context, molecule string, t unit.Temperature) (float64, error) {
	l, ok := r[molecule]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMolecule, molecule)
	}
	return l.Q(ctx, molecule, t)
}

// Chain tries each Lookup in turn, moving on only when one does not know
// the molecule.
type Chain []Lookup

// Q implements Lookup.
func (c Chain) Q(ctx context.Context, molecule string, t unit.Temperature) (float64, error) {
	for _, l := range c {
		q, err := l.Q(ctx, molecule, t)
		if !errors.Is(err, ErrUnknownMolecule) {
			return q, err
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMolecule, molecule)
}
