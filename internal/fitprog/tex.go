// Public domain.

package fitprog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/astrogo/fitsio"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/soniakeys/unit"
	"github.com/spf13/cobra"
	gunit "gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/cube"
	"github.com/soniakeys/w51fit/internal/lines"
	"github.com/soniakeys/w51fit/internal/phys"
	"github.com/soniakeys/w51fit/internal/rotdiag"
	"github.com/soniakeys/w51fit/internal/tables"
	"github.com/soniakeys/w51fit/internal/texmap"
)

// lineKey finds a transition by catalog name or by frequency in GHz.
func lineKey(cat lines.Catalog, key string, tol gunit.Frequency) (lines.Transition, error) {
	if ghz, err := strconv.ParseFloat(key, 64); err == nil {
		return cat.Match("", phys.GHz(ghz), tol)
	}
	return cat.Match(key, 0, tol)
}

func (p *program) texCommand() *cobra.Command {
	var molecule string
	var tolMHz float64
	cmd := &cobra.Command{
		Use:   "tex <catalog> <measurements>",
		Short: "Fit a rotational diagram to integrated intensities of one spectrum",
		Long: `tex matches each measured line to the catalog by name or by nearest
frequency, converts integrated intensities to upper state column densities
and fits excitation temperature and total column density.

Lines with uncertainties below rotdiag.uplim_sigma times their uncertainty
are treated as upper limits.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := p.ctx(cmd)
			cat, err := p.readCatalog(ctx, args[0])
			if err != nil {
				return err
			}
			r, err := p.opener.Open(ctx, args[1])
			if err != nil {
				return err
			}
			ms, err := tables.ReadMeasurements(r)
			r.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			tol := gunit.Frequency(tolMHz * gunit.Mega)
			return p.fitTex(ctx, cmd.OutOrStdout(), cat, ms, molecule, tol)
		},
	}
	cmd.Flags().StringVar(&molecule, "molecule", "", "molecule for the partition function (required)")
	cmd.Flags().Float64Var(&tolMHz, "tol", 5, "frequency match tolerance, MHz")
	cmd.MarkFlagRequired("molecule")
	return cmd
}

func (p *program) fitTex(ctx context.Context, w io.Writer, cat lines.Catalog, ms []tables.Measurement, molecule string, tol gunit.Frequency) error {
	trs := make([]lines.Transition, len(ms))
	in := make([]float64, len(ms))
	var e []float64
	for i, m := range ms {
		t, err := cat.Match(m.Name, m.Frequency, tol)
		if err != nil {
			return err
		}
		trs[i] = t
		in[i] = float64(m.Intensity)
		if m.Error > 0 {
			e = append(e, float64(m.Error))
		}
	}
	if len(e) != 0 && len(e) != len(ms) {
		return errors.New("uncertainties must be given for all lines or none")
	}
	d := rotdiag.Diagram{NuOverG: rotdiag.NuppersOfKKms(in, trs)}
	for _, t := range trs {
		d.EUpper = append(d.EUpper, float64(t.EUpper))
	}
	if e != nil {
		d.Errors = rotdiag.NuppersOfKKms(e, trs)
		for _, x := range d.Errors {
			d.UpperLimits = append(d.UpperLimits, p.cfg.RotDiag.UplimSigma*x)
		}
	}
	q, err := p.cfg.Lookup()
	if err != nil {
		return err
	}
	res, err := rotdiag.New(q, p.cfg.RotDiagOptions(molecule)).Fit(ctx, d)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "line\tGHz\tEu K\tNu/gu cm-2\t")
	for i, t := range trs {
		fmt.Fprintf(tw, "%s\t%.5f\t%.2f\t%.4g\t\n", t.Name, phys.InGHz(t.Frequency),
			float64(t.EUpper), d.NuOverG[i])
	}
	tw.Flush()
	if res.Status == rotdiag.Declined {
		fmt.Fprintf(w, "fit declined: %s\n", res.Reason)
		return nil
	}
	fmt.Fprintf(w, "Tex = %.2f K\n", float64(res.Temperature))
	fmt.Fprintf(w, "N   = %.4g cm-2\n", float64(res.Column))
	fmt.Fprintf(w, "Q   = %.4g\n", res.Q)
	fmt.Fprintf(w, "chi2 = %.4g  R2 = %.4f  points %d  upper limits %d\n",
		res.ChiSquare, res.RSquared, res.NUsed, res.NUpperLimits)
	return nil
}

// mapArg parses line=uri.
func mapArg(s string) (key, uri string, err error) {
	key, uri, ok := strings.Cut(s, "=")
	if !ok || key == "" || uri == "" {
		return "", "", fmt.Errorf("map %q: want line=file", s)
	}
	return key, uri, nil
}

func (p *program) texmapCommand() *cobra.Command {
	var (
		catalog, molecule, source string
		outT, outN                string
		maps, errMaps             []string
		radiusAS, tolMHz          float64
	)
	cmd := &cobra.Command{
		Use:   "texmap",
		Short: "Fit rotational diagrams pixel by pixel over integrated intensity maps",
		Long: `texmap stacks integrated intensity maps, one per transition, and fits
the rotational diagram of every pixel.  Each --map is line=file where line
is a catalog name or rest frequency in GHz; --error maps use the same keys.
Pixels with any NaN are NaN in the output maps.  Pixels with too few valid
points are 0.

With --source and --radius the maps are first cut to a circle about the
source.`,
		Example: `  w51fit texmap --catalog ch3oh.txt --molecule CH3OH \
    --map 218.44005=m0_218.fits --map 220.07849=m0_220.fits \
    --map 231.28115=m0_231.fits --map 234.68345=m0_234.fits \
    --source "19:23:43.963 +14:30:34.53" --radius 1.5 \
    --out-t tex.fits --out-n col.fits`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := p.ctx(cmd)
			runID := uuid.New().String()
			logger := log.Ctx(ctx).With().Str("run", runID).Logger()
			ctx = logger.WithContext(ctx)

			cat, err := p.readCatalog(ctx, catalog)
			if err != nil {
				return err
			}
			tol := gunit.Frequency(tolMHz * gunit.Mega)
			trs := make([]lines.Transition, len(maps))
			keys := map[string]int{}
			ims := make([]*cube.Image, len(maps))
			for k, m := range maps {
				key, uri, err := mapArg(m)
				if err != nil {
					return err
				}
				if _, dup := keys[key]; dup {
					return fmt.Errorf("duplicate --map %q", key)
				}
				if trs[k], err = lineKey(cat, key, tol); err != nil {
					return err
				}
				keys[key] = k
				if ims[k], err = p.readImage(ctx, uri); err != nil {
					return err
				}
			}
			in := texmap.Input{Transitions: trs}
			if in.Intensity, err = cube.Stack(ims); err != nil {
				return err
			}
			if len(errMaps) > 0 {
				if len(errMaps) != len(maps) {
					return fmt.Errorf("%d error maps for %d maps", len(errMaps), len(maps))
				}
				eims := make([]*cube.Image, len(maps))
				for _, m := range errMaps {
					key, uri, err := mapArg(m)
					if err != nil {
						return err
					}
					k, ok := keys[key]
					if !ok {
						return fmt.Errorf("error map %q has no intensity map", key)
					}
					if eims[k] != nil {
						return fmt.Errorf("duplicate --error %q", key)
					}
					if eims[k], err = p.readImage(ctx, uri); err != nil {
						return err
					}
				}
				for k, e := range eims {
					if e == nil {
						return fmt.Errorf("no error map for %s", trs[k].Name)
					}
				}
				if in.Errors, err = cube.Stack(eims); err != nil {
					return err
				}
			}
			if source != "" {
				eq, err := cube.ParsePosition(source)
				if err != nil {
					return err
				}
				r := unit.AngleFromSec(radiusAS)
				if in.Intensity, err = cube.Cutout(in.Intensity, eq, r); err != nil {
					return err
				}
				if in.Errors != nil {
					if in.Errors, err = cube.Cutout(in.Errors, eq, r); err != nil {
						return err
					}
				}
				logger.Info().Str("source", cube.FormatPosition(eq)).
					Int("nx", in.Intensity.NX).Int("ny", in.Intensity.NY).Msg("cutout")
			}

			q, err := p.cfg.Lookup()
			if err != nil {
				return err
			}
			opt := p.cfg.TexMapOptions()
			opt.Progress = func(done, total int) {
				logger.Debug().Int("rows", done).Int("of", total).Msg("progress")
			}
			f := rotdiag.New(q, p.cfg.RotDiagOptions(molecule))
			m, err := texmap.FitAll(ctx, f, in, opt)
			if err != nil {
				return err
			}
			cards := []fitsio.Card{
				{Name: "RUNID", Value: runID},
				{Name: "MOLECULE", Value: molecule},
				{Name: "NLINES", Value: len(trs)},
			}
			if err := p.writeFile(ctx, outT, func(w io.Writer) error {
				return cube.WriteImage(w, m.Temperature, append(cards,
					fitsio.Card{Name: "BUNIT", Value: "K"})...)
			}); err != nil {
				return err
			}
			return p.writeFile(ctx, outN, func(w io.Writer) error {
				return cube.WriteImage(w, m.Column, append(cards,
					fitsio.Card{Name: "BUNIT", Value: "cm-2"})...)
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&catalog, "catalog", "", "line catalog (required)")
	fl.StringVar(&molecule, "molecule", "", "molecule for the partition function (required)")
	fl.StringArrayVar(&maps, "map", nil, "line=file integrated intensity map, K km/s (repeatable)")
	fl.StringArrayVar(&errMaps, "error", nil, "line=file uncertainty map, K km/s (repeatable)")
	fl.StringVar(&source, "source", "", "cutout center, \"RA Dec\"")
	fl.Float64Var(&radiusAS, "radius", 1, "cutout radius, arc seconds")
	fl.Float64Var(&tolMHz, "tol", 5, "frequency match tolerance, MHz")
	fl.StringVar(&outT, "out-t", "tex.fits", "temperature map output")
	fl.StringVar(&outN, "out-n", "column.fits", "column density map output")
	cmd.MarkFlagRequired("catalog")
	cmd.MarkFlagRequired("molecule")
	cmd.MarkFlagRequired("map")
	return cmd
}

func (p *program) moment0Command() *cobra.Command {
	var (
		dv, clip      float64
		noiseChans    int
		outM0, outErr string
	)
	cmd := &cobra.Command{
		Use:   "moment0 <cube>",
		Short: "Integrate a spectral cube to an integrated intensity map",
		Long: `moment0 sums the channels of a cube, in K, times the channel width to
give an integrated intensity map in K km/s.  With --noise-chans the noise
per pixel is the standard deviation of those leading channels, channels
below --clip times the noise are left out, and an uncertainty map is
written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := p.ctx(cmd)
			c, err := p.readCube(ctx, args[0])
			if err != nil {
				return err
			}
			if dv == 0 {
				// CDELT3 in m/s
				cd, ok := cube.Float(c.Header, "CDELT3")
				if !ok {
					return errors.New("no --dv and no CDELT3 in cube header")
				}
				dv = cd / 1e3
			}
			m0, e0 := cube.Moment0(c, dv, noiseChans, clip)
			bunit := fitsio.Card{Name: "BUNIT", Value: "K km/s"}
			if err := p.writeFile(ctx, outM0, func(w io.Writer) error {
				return cube.WriteImage(w, m0, bunit)
			}); err != nil {
				return err
			}
			if outErr == "" || noiseChans < 2 {
				return nil
			}
			return p.writeFile(ctx, outErr, func(w io.Writer) error {
				return cube.WriteImage(w, e0, bunit)
			})
		},
	}
	fl := cmd.Flags()
	fl.Float64Var(&dv, "dv", 0, "channel width, km/s; default from CDELT3 in m/s")
	fl.IntVar(&noiseChans, "noise-chans", 0, "leading line free channels for the noise estimate")
	fl.Float64Var(&clip, "clip", 3, "clip threshold in units of the noise")
	fl.StringVar(&outM0, "out", "moment0.fits", "integrated intensity output")
	fl.StringVar(&outErr, "out-error", "", "uncertainty map output")
	return cmd
}
