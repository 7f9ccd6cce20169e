// Public domain.

// Package texmap fits rotational diagrams pixel by pixel over a cube of
// integrated intensity maps, producing excitation temperature and column
// density maps.
//
// Plane k of the input cube holds the integrated intensity of transition k
// in K km s⁻¹.  Output maps are in K and cm⁻².
package texmap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/soniakeys/w51fit/internal/cube"
	"github.com/soniakeys/w51fit/internal/lines"
	"github.com/soniakeys/w51fit/internal/partfunc"
	"github.com/soniakeys/w51fit/internal/phys"
	"github.com/soniakeys/w51fit/internal/rotdiag"
)

// PixelStatus is the outcome of fitting one pixel.
type PixelStatus uint8

const (
	Fitted PixelStatus = iota
	// Declined pixels had too little data.  Both maps hold 0.
	Declined
	// Invalid pixels had a non-finite intensity or uncertainty.  Both maps
	// hold NaN.
	Invalid
	// Degenerate pixels fit a line that gives no physical temperature.
	// Both maps hold NaN.
	Degenerate
	// NoPartition pixels fit a temperature where the partition function
	// has no value, outside its table for example.  Both maps hold NaN.
	NoPartition
)

var statusNames = [...]string{"fitted", "declined", "invalid", "degenerate", "no partition function"}

func (s PixelStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("PixelStatus(%d)", int(s))
}

// Counts tallies pixels by status.
type Counts [len(statusNames)]int

// Total is the number of pixels counted.
func (c Counts) Total() (n int) {
	for _, x := range c {
		n += x
	}
	return
}

// Input is the data of a map fit.
type Input struct {
	Intensity   *cube.Cube // K km s⁻¹, one plane per transition
	Errors      *cube.Cube // optional, same shape as Intensity
	Transitions []lines.Transition
}

// Options control FitAll.  Zero values select defaults.
type Options struct {
	// Workers is the number of concurrent fitting goroutines.
	// Default runtime.GOMAXPROCS(0).
	Workers int

	// With an error cube, points are upper limits when below
	// UpperLimitSigma times their uncertainty.  Default 3.
	UpperLimitSigma float64

	// Without an error cube a positive UpperLimit, in K km s⁻¹, is the
	// upper limit of every transition.  Lower values are replaced by
	// the limit.
	UpperLimit phys.IntegratedIntensity

	// Progress, if not nil, is called from the calling goroutine as rows
	// complete.
	Progress func(done, total int)
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.UpperLimitSigma == 0 {
		o.UpperLimitSigma = 3
	}
	return o
}

// Maps are the results of FitAll.
type Maps struct {
	Temperature *cube.Image // K
	Column      *cube.Image // cm⁻²
	Status      []PixelStatus
	Counts      Counts
}

// StatusAt returns the status of pixel (i, j).
func (m *Maps) StatusAt(i, j int) PixelStatus {
	return m.Status[j*m.Temperature.NX+i]
}

func (in Input) validate() error {
	c := in.Intensity
	switch {
	case c == nil:
		return errors.New("texmap: no intensity cube")
	case c.NX <= 0 || c.NY <= 0:
		return errors.New("texmap: empty cube")
	case c.NZ != len(in.Transitions):
		return fmt.Errorf("texmap: %d planes for %d transitions", c.NZ, len(in.Transitions))
	}
	if e := in.Errors; e != nil && (e.NX != c.NX || e.NY != c.NY || e.NZ != c.NZ) {
		return fmt.Errorf("texmap: error cube %dx%dx%d, intensity cube %dx%dx%d",
			e.NX, e.NY, e.NZ, c.NX, c.NY, c.NZ)
	}
	return nil
}

type rowResult struct {
	counts Counts
	err    error
}

// FitAll fits the rotational diagram of every pixel of in.
//
// Pixels are independent.  A pixel with any non-finite sample is marked
// Invalid, a degenerate fit is marked Degenerate, and a fitted temperature
// the partition function cannot evaluate (partfunc.ErrOutOfRange or
// partfunc.ErrTemperature) is marked NoPartition.  None of these stop the
// run.  Other partition function failures, an unknown molecule or an
// unreachable service, stop the run and are returned.  So is
// cancellation of ctx.
//
// Rows are dispatched to opt.Workers goroutines, each writing only the
// map cells of its rows.
func FitAll(ctx context.Context, f *rotdiag.Fitter, in Input, opt Options) (*Maps, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	opt = opt.withDefaults()
	c := in.Intensity
	hdr := cube.Celestial(c.Header)
	m := &Maps{
		Temperature: cube.NewImage(c.NX, c.NY, hdr),
		Column:      cube.NewImage(c.NX, c.NY, hdr),
		Status:      make([]PixelStatus, c.NX*c.NY),
	}
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// dispatcher
	rowCh := make(chan int)
	go func() {
		defer close(rowCh)
		for j := 0; j < c.NY; j++ {
			select {
			case rowCh <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	resCh := make(chan rowResult, opt.Workers)
	var wg sync.WaitGroup
	for n := 0; n < min(opt.Workers, c.NY); n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := newWorker(f, in, opt, m)
			for j := range rowCh {
				resCh <- w.row(ctx, j)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resCh)
	}()

	log := zerolog.Ctx(parent)
	var firstErr error
	done := 0
	for r := range resCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
			continue
		}
		for s, n := range r.counts {
			m.Counts[s] += n
		}
		done++
		if opt.Progress != nil {
			opt.Progress(done, c.NY)
		}
	}
	if firstErr == nil {
		firstErr = parent.Err()
	}
	if firstErr != nil {
		log.Error().Err(firstErr).Int("rows", done).Msg("map fit stopped")
		return nil, firstErr
	}
	log.Info().
		Int("fitted", m.Counts[Fitted]).
		Int("declined", m.Counts[Declined]).
		Int("invalid", m.Counts[Invalid]).
		Int("degenerate", m.Counts[Degenerate]).
		Int("no_partition", m.Counts[NoPartition]).
		Msg("map fit complete")
	return m, nil
}

// worker holds per goroutine scratch space.
type worker struct {
	f    *rotdiag.Fitter
	in   Input
	opt  Options
	m    *Maps
	eu   []float64
	ul   []float64 // fixed upper limits, cm⁻²
	w, e []float64
}

func newWorker(f *rotdiag.Fitter, in Input, opt Options, m *Maps) *worker {
	w := &worker{f: f, in: in, opt: opt, m: m,
		eu: make([]float64, len(in.Transitions))}
	for k, t := range in.Transitions {
		w.eu[k] = float64(t.EUpper)
	}
	if in.Errors == nil && opt.UpperLimit > 0 {
		w.ul = make([]float64, len(in.Transitions))
		for k, t := range in.Transitions {
			w.ul[k] = rotdiag.NupperOfKKms(opt.UpperLimit, t)
		}
	}
	return w
}

func (w *worker) row(ctx context.Context, j int) (r rowResult) {
	nx := w.in.Intensity.NX
	for i := 0; i < nx; i++ {
		if err := ctx.Err(); err != nil {
			r.err = err
			return
		}
		s, t, n, err := w.pixel(ctx, i, j)
		if err != nil {
			r.err = fmt.Errorf("pixel (%d, %d): %w", i, j, err)
			return
		}
		w.m.Temperature.Set(i, j, t)
		w.m.Column.Set(i, j, n)
		w.m.Status[j*nx+i] = s
		r.counts[s]++
	}
	return
}

func allFinite(x []float64) bool {
	for _, v := range x {
		if !phys.Finite(v) {
			return false
		}
	}
	return true
}

func (w *worker) pixel(ctx context.Context, i, j int) (s PixelStatus, t, n float64, err error) {
	nan := math.NaN()
	w.w = w.in.Intensity.Spectrum(i, j, w.w)
	if !allFinite(w.w) {
		return Invalid, nan, nan, nil
	}
	d := rotdiag.Diagram{
		EUpper:      w.eu,
		NuOverG:     rotdiag.NuppersOfKKms(w.w, w.in.Transitions),
		UpperLimits: w.ul,
	}
	if w.in.Errors != nil {
		w.e = w.in.Errors.Spectrum(i, j, w.e)
		if !allFinite(w.e) {
			return Invalid, nan, nan, nil
		}
		d.Errors = rotdiag.NuppersOfKKms(w.e, w.in.Transitions)
		d.UpperLimits = make([]float64, len(d.Errors))
		for k, e := range d.Errors {
			d.UpperLimits[k] = w.opt.UpperLimitSigma * e
		}
	}
	res, err := w.f.Fit(ctx, d)
	switch {
	case errors.Is(err, rotdiag.ErrDegenerate):
		return Degenerate, nan, nan, nil
	case errors.Is(err, partfunc.ErrOutOfRange), errors.Is(err, partfunc.ErrTemperature):
		return NoPartition, nan, nan, nil
	case err != nil:
		return 0, 0, 0, err
	case res.Status == rotdiag.Declined:
		return Declined, 0, 0, nil
	}
	return Fitted, float64(res.Temperature), float64(res.Column), nil
}
