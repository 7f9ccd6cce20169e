// Public domain.

// Package fitprog is the w51fit command: flag parsing, configuration,
// logging and the subcommands that tie the fitting packages to files.
package fitprog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/soniakeys/exit"
	"github.com/spf13/cobra"

	"github.com/soniakeys/w51fit/internal/config"
	"github.com/soniakeys/w51fit/internal/cube"
	"github.com/soniakeys/w51fit/internal/lines"
	"github.com/soniakeys/w51fit/internal/storage"
)

const versionString = "w51fit version 0.3.0."
const copyrightString = "Public domain."

// Main runs the command with os.Args.
func Main() {
	defer exit.Handler()
	if err := NewCommand().Execute(); err != nil {
		exit.Log(err)
	}
}

// program is state shared by subcommands, set up before any of them run.
type program struct {
	cfgPath  string
	logLevel string
	logJSON  bool
	out      io.Writer

	cfg    *config.Config
	opener *storage.Opener
}

// NewCommand returns the root command with all subcommands.
func NewCommand() *cobra.Command {
	p := &program{out: os.Stdout}
	root := &cobra.Command{
		Use:   "w51fit",
		Short: "Rotational diagram and free-free fits for W51 line and continuum data",
		Long: `w51fit fits rotational (Boltzmann) diagrams to integrated line
intensities, pixel by pixel over maps, and fits free-free spectra of HII
regions.  Inputs and outputs may be local files or s3://bucket/key URIs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return p.setup(cmd)
		},
	}
	root.SetOut(p.out)
	pf := root.PersistentFlags()
	pf.StringVar(&p.cfgPath, "config", "", "config file (YAML, TOML or JSON)")
	pf.StringVar(&p.logLevel, "log-level", "", "log level, overrides log.level")
	pf.BoolVar(&p.logJSON, "log-json", false, "log JSON to stderr")

	root.AddCommand(
		p.texCommand(),
		p.texmapCommand(),
		p.moment0Command(),
		p.freefreeCommand(),
		p.synthCommand(),
		p.profileCommand(),
		p.fetchCommand(),
		p.serveCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), versionString)
				fmt.Fprintln(cmd.OutOrStdout(), copyrightString)
			},
		},
	)
	return root
}

func (p *program) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(p.cfgPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = p.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON = p.logJSON
	}
	p.cfg = cfg

	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	if cfg.Log.JSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	p.opener = &storage.Opener{}
	client, err := storage.NewS3Client(cmd.Context(), cfg.S3)
	if err != nil {
		log.Warn().Err(err).Msg("S3 unavailable")
	} else {
		p.opener.S3 = client
	}
	return nil
}

// ctx returns the command context with the global logger attached.
func (p *program) ctx(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return log.Logger.WithContext(ctx)
}

func (p *program) readCatalog(ctx context.Context, uri string) (lines.Catalog, error) {
	r, err := p.opener.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	c, err := lines.Read(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return c, nil
}

func (p *program) readImage(ctx context.Context, uri string) (*cube.Image, error) {
	r, err := p.opener.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	im, err := cube.ReadImage(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return im, nil
}

func (p *program) readCube(ctx context.Context, uri string) (*cube.Cube, error) {
	r, err := p.opener.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	c, err := cube.ReadCube(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", uri, err)
	}
	return c, nil
}

// writeFile creates uri and calls write with it, reporting errors from
// either write or the final close.
func (p *program) writeFile(ctx context.Context, uri string, write func(io.Writer) error) error {
	w, err := p.opener.Create(ctx, uri)
	if err != nil {
		return err
	}
	if err := write(w); err != nil {
		w.Close()
		return fmt.Errorf("%s: %w", uri, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%s: %w", uri, err)
	}
	log.Ctx(ctx).Info().Str("file", uri).Msg("wrote")
	return nil
}
