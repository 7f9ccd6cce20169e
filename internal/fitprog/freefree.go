// Public domain.

package fitprog

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	gunit "gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/freefree"
	"github.com/soniakeys/w51fit/internal/phys"
	"github.com/soniakeys/w51fit/internal/tables"
)

func (p *program) freefreeCommand() *cobra.Command {
	var (
		te, emGuess  float64
		dust         string
		resolved     bool
		beamAs2, kpc float64
	)
	cmd := &cobra.Command{
		Use:   "freefree <sed>",
		Short: "Fit a free-free spectrum and derive HII region properties",
		Long: `freefree fits the emission measure and normalization of a free-free
spectrum at fixed electron temperature.  The SED file has columns

  frequency-GHz  flux-mJy  [uncertainty-mJy]

With --dust a power law (powerlaw) or graybody (graybody) dust term is fit
as well.  From the fit, the region size, electron density, ionized mass and
Lyman continuum photon rate are derived.  A --resolved source takes its
size from the beam area, otherwise from the lowest frequency flux taken as
optically thick.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := p.ctx(cmd)
			r, err := p.opener.Open(ctx, args[0])
			if err != nil {
				return err
			}
			sed, err := tables.ReadSED(r)
			r.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			opt := p.cfg.FreeFreeOptions()
			fl := cmd.Flags()
			if fl.Changed("te") {
				opt.Te = gunit.Temperature(te)
			}
			if fl.Changed("em-guess") {
				opt.EMGuess = phys.EmissionMeasure(emGuess)
			}
			switch dust {
			case "", "none":
			case "powerlaw":
				opt.Dust = freefree.PowerLaw
			case "graybody":
				opt.Dust = freefree.Graybody
			default:
				return fmt.Errorf("unknown dust model %q", dust)
			}
			ro := p.cfg.RegionOptions(resolved)
			if fl.Changed("beam") {
				ro.BeamArea = beamAs2
			}
			if fl.Changed("dist") {
				ro.Distance = gunit.Length(kpc * 1e3 * phys.Parsec)
			}
			reg, err := freefree.NewRegion(sed, ro, opt)
			var nc *freefree.NotConvergedError
			if errors.As(err, &nc) {
				log.Ctx(ctx).Warn().Float64("chi2", nc.ChiSquare).
					Int("evaluations", nc.Evaluations).Floats64("params", nc.Params).
					Msg("not converged")
			}
			if err != nil {
				return err
			}
			writeRegion(cmd.OutOrStdout(), reg)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.Float64Var(&te, "te", 0, "electron temperature, K; default freefree.te")
	fl.Float64Var(&emGuess, "em-guess", 0, "starting emission measure, pc cm-6")
	fl.StringVar(&dust, "dust", "none", "dust term: none, powerlaw or graybody")
	fl.BoolVar(&resolved, "resolved", false, "source is resolved, size from beam area")
	fl.Float64Var(&beamAs2, "beam", 0, "beam area, arcsec2; default physprops.beam_as2")
	fl.Float64Var(&kpc, "dist", 0, "distance, kpc; default physprops.dist_kpc")
	return cmd
}

func writeRegion(w io.Writer, reg *freefree.Region) {
	f := reg.Fit
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "GHz\tmJy\terr\tmodel\t")
	var model []float64
	switch {
	case f.DustT > 0:
		model = freefree.ModelDustT(reg.SED.Nu, f.EM, f.NormFac, f.DustIndex, f.DustNorm, f.DustT, reg.Te)
	case f.DustNorm != 0:
		model = freefree.ModelDust(reg.SED.Nu, f.EM, f.NormFac, f.DustIndex, f.DustNorm, reg.Te)
	default:
		model = freefree.Model(reg.SED.Nu, f.EM, f.NormFac, reg.Te)
	}
	for i, nu := range reg.SED.Nu {
		e := "-"
		if reg.SED.Err != nil {
			e = fmt.Sprintf("%.4g", reg.SED.Err[i])
		}
		fmt.Fprintf(tw, "%.4g\t%.4g\t%s\t%.4g\t\n", nu, reg.SED.Flux[i], e, model[i])
	}
	tw.Flush()

	fmt.Fprintf(w, "Te       = %.0f K\n", float64(reg.Te))
	fmt.Fprintf(w, "EM       = %.4g pc cm-6\n", float64(f.EM))
	fmt.Fprintf(w, "nu_tau1  = %.4g GHz\n", f.NuTau1)
	fmt.Fprintf(w, "normfac  = %.4g sr\n", f.NormFac)
	if f.DustNorm != 0 {
		fmt.Fprintf(w, "dust index %.3g norm %.4g", f.DustIndex, f.DustNorm)
		if f.DustT > 0 {
			fmt.Fprintf(w, " T %.1f K", float64(f.DustT))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "chi2     = %.4g  (%d evaluations)\n", f.ChiSquare, f.Evaluations)

	pp := reg.PhysProps()
	fmt.Fprintf(w, "radius   = %.4g AU\n", float64(pp.Radius)/phys.AU)
	fmt.Fprintf(w, "n_e      = %.4g cm-3\n", pp.Density)
	fmt.Fprintf(w, "mass     = %.4g Msun\n", pp.Mass)
	fmt.Fprintf(w, "N_lyc    = %.4g s-1\n", pp.Nlyc)
}
