// Public domain.

package fitprog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	gunit "gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/api"
	"github.com/soniakeys/w51fit/internal/cube"
	"github.com/soniakeys/w51fit/internal/lines"
	"github.com/soniakeys/w51fit/internal/phys"
	"github.com/soniakeys/w51fit/internal/synth"
)

func (p *program) synthCommand() *cobra.Command {
	var (
		catalog, molecule, prefix string
		nx, ny                    int
		t0, t1, column, noise     float64
		seed                      uint64
		blank                     []int
	)
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate synthetic integrated intensity maps for testing",
		Long: `synth writes one integrated intensity map and one uncertainty map per
catalog transition, for a source with excitation temperature varying
linearly across the map from --t0 to --t1 and uniform column density.
Maps are named <prefix>m0_<GHz>.fits and, with --noise, <prefix>err_<GHz>.fits.
The --map and --error arguments for texmap are printed.

--blank i,j puts a NaN at pixel i,j of one map; it may be repeated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := p.ctx(cmd)
			cat, err := p.readCatalog(ctx, catalog)
			if err != nil {
				return err
			}
			if len(blank)%2 != 0 {
				return errors.New("--blank takes pixel pairs i,j")
			}
			spec := synth.CubeSpec{
				NX: nx, NY: ny,
				T0:       gunit.Temperature(t0),
				T1:       gunit.Temperature(t1),
				Column:   phys.ColumnDensity(column),
				Molecule: molecule,
				Noise:    noise,
				Seed:     seed,
			}
			for i := 0; i < len(blank); i += 2 {
				spec.Blank = append(spec.Blank, [2]int{blank[i], blank[i+1]})
			}
			q, err := p.cfg.Lookup()
			if err != nil {
				return err
			}
			in, errs, err := synth.Cube(ctx, cat, spec, q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for k, t := range cat {
				ghz := fmt.Sprintf("%.5f", phys.InGHz(t.Frequency))
				m0 := prefix + "m0_" + ghz + ".fits"
				e0 := prefix + "err_" + ghz + ".fits"
				if err := p.writeFile(ctx, m0, func(w io.Writer) error {
					return cube.WriteImage(w, in.Plane(k))
				}); err != nil {
					return err
				}
				if noise == 0 {
					fmt.Fprintf(out, "--map %s=%s\n", ghz, m0)
					continue
				}
				if err := p.writeFile(ctx, e0, func(w io.Writer) error {
					return cube.WriteImage(w, errs.Plane(k))
				}); err != nil {
					return err
				}
				fmt.Fprintf(out, "--map %s=%s --error %s=%s\n", ghz, m0, ghz, e0)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&catalog, "catalog", "", "line catalog (required)")
	fl.StringVar(&molecule, "molecule", "", "molecule for the partition function (required)")
	fl.StringVar(&prefix, "prefix", "", "output name prefix, a directory or s3://bucket/path/")
	fl.IntVar(&nx, "nx", 16, "map width, pixels")
	fl.IntVar(&ny, "ny", 16, "map height, pixels")
	fl.Float64Var(&t0, "t0", 50, "excitation temperature at the first column, K")
	fl.Float64Var(&t1, "t1", 250, "excitation temperature at the last column, K")
	fl.Float64Var(&column, "column", 1e16, "column density, cm-2")
	fl.Float64Var(&noise, "noise", 0, "Gaussian noise, K km/s")
	fl.Uint64Var(&seed, "seed", 1, "random seed")
	fl.IntSliceVar(&blank, "blank", nil, "pixel i,j to blank (repeatable)")
	cmd.MarkFlagRequired("catalog")
	cmd.MarkFlagRequired("molecule")
	return cmd
}

func (p *program) profileCommand() *cobra.Command {
	var (
		center    string
		x, y, bin float64
	)
	cmd := &cobra.Command{
		Use:   "profile <image>",
		Short: "Radial profile of a map",
		Long: `profile averages an image in annuli about a center given as --center
"RA Dec", or as pixel --x and --y counted from zero.  NaN pixels are
ignored.  Radii are printed in pixels and, when the image has celestial
coordinates, arc seconds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := p.ctx(cmd)
			im, err := p.readImage(ctx, args[0])
			if err != nil {
				return err
			}
			wcs, wcsErr := cube.HeaderWCS(im.Header)
			if center != "" {
				if wcsErr != nil {
					return fmt.Errorf("--center: %w", wcsErr)
				}
				eq, err := cube.ParsePosition(center)
				if err != nil {
					return err
				}
				x, y = wcs.Pixel(eq)
			}
			radii, means, counts := cube.RadialProfile(im, x, y, bin)
			if radii == nil {
				return errors.New("--bin must be positive")
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "r pix\tr arcsec\tmean\tn\t")
			for i, r := range radii {
				as := "-"
				if wcsErr == nil {
					as = fmt.Sprintf("%.3f", r*wcs.PixelScale().Sec())
				}
				fmt.Fprintf(tw, "%.2f\t%s\t%.4g\t%d\t\n", r, as, means[i], counts[i])
			}
			return tw.Flush()
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&center, "center", "", "center, \"RA Dec\"")
	fl.Float64Var(&x, "x", 0, "center pixel x")
	fl.Float64Var(&y, "y", 0, "center pixel y")
	fl.Float64Var(&bin, "bin", 1, "annulus width, pixels")
	cmd.MarkFlagsMutuallyExclusive("center", "x")
	cmd.MarkFlagsMutuallyExclusive("center", "y")
	return cmd
}

func (p *program) fetchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <url> <file>",
		Short: "Download a line catalog",
		Long: `fetch downloads a line catalog, checks that it parses, and reports
the number of transitions.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := p.ctx(cmd)
			if err := lines.Fetch(ctx, args[0], args[1]); err != nil {
				return err
			}
			c, err := lines.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d transitions\n", len(c))
			return nil
		},
	}
}

func (p *program) serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve fits and partition functions over HTTP",
		Long: `serve runs an HTTP API with partition function lookup, rotational
diagram fits and free-free fits.  The OpenAPI document is at
/openapi.json.  SIGINT or SIGTERM shuts the server down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := p.ctx(cmd)
			q, err := p.cfg.Lookup()
			if err != nil {
				return err
			}
			s := &api.Service{
				Lookup:          q,
				RotDiag:         p.cfg.RotDiagOptions(""),
				UpperLimitSigma: p.cfg.RotDiag.UplimSigma,
				FreeFree:        p.cfg.FreeFreeOptions(),
				Region:          p.cfg.RegionOptions(false),
			}
			if !cmd.Flags().Changed("addr") {
				addr = p.cfg.Server.Addr
			}
			srv := &http.Server{
				Addr:    addr,
				Handler: api.NewRouter(s, p.cfg.Server.AllowedOrigins),
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, srv)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address; default server.addr")
	return cmd
}

// serve runs srv until ctx is done, then shuts it down.
func serve(ctx context.Context, srv *http.Server) error {
	logger := log.Ctx(ctx)
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting w51fit API server")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down server")
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("server forced to shut down: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Msg("server exited")
	return nil
}
