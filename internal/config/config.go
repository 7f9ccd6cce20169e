// Public domain.

// Package config loads program configuration with viper and converts it
// to the option structs of the fitting packages.
//
// Sources in increasing priority: built in defaults, an optional config
// file (YAML, TOML or JSON by extension), and environment variables named
// W51FIT_ followed by the key in upper case with '.' replaced by '_', for
// example W51FIT_TEXMAP_WORKERS.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/freefree"
	"github.com/soniakeys/w51fit/internal/partfunc"
	"github.com/soniakeys/w51fit/internal/phys"
	"github.com/soniakeys/w51fit/internal/rotdiag"
	"github.com/soniakeys/w51fit/internal/storage"
	"github.com/soniakeys/w51fit/internal/texmap"
)

// Config is the complete program configuration.
type Config struct {
	Log       LogConfig
	RotDiag   RotDiagConfig
	TexMap    TexMapConfig
	FreeFree  FreeFreeConfig
	PhysProps PhysPropsConfig
	PartFunc  PartFuncConfig
	S3        storage.S3Config
	Server    ServerConfig
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
	JSON  bool
}

// RotDiagConfig holds rotational diagram fit settings.
type RotDiagConfig struct {
	MinNupper        float64 // cm⁻²
	MaxUplims        string  // a count, or "half"
	UplimSigma       float64
	ErrorsFromUplims bool
}

// TexMapConfig holds map fit settings.
type TexMapConfig struct {
	Workers    int
	UpperLimit float64 // K km s⁻¹, used without error maps
}

// FreeFreeConfig holds SED fit settings.
type FreeFreeConfig struct {
	Te         float64 // K
	EMGuess    float64 // pc cm⁻⁶
	NormFac    float64 // sr, zero to derive from EMGuess
	Iterations int
}

// PhysPropsConfig holds settings for derived HII region properties.
type PhysPropsConfig struct {
	DistKpc float64
	BeamAs2 float64 // beam area, arcsec²
}

// PartFuncConfig names partition function sources.  Table and Levels are
// file paths, URL the base of a partition function service.  Molecules
// found in more than one source use the first of Table, Levels, URL.
type PartFuncConfig struct {
	Table  string
	Levels string
	URL    string
}

// ServerConfig holds HTTP service settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("rotdiag.min_nupper", 1.)
	v.SetDefault("rotdiag.max_uplims", "half")
	v.SetDefault("rotdiag.uplim_sigma", 3.)
	v.SetDefault("rotdiag.errors_from_uplims", false)
	v.SetDefault("texmap.workers", 0)
	v.SetDefault("texmap.upper_limit", 0.)
	v.SetDefault("freefree.te", 8500.)
	v.SetDefault("freefree.em_guess", 1e7)
	v.SetDefault("freefree.normfac", 0.)
	v.SetDefault("freefree.iterations", 200)
	v.SetDefault("physprops.dist_kpc", 5.1)
	v.SetDefault("physprops.beam_as2", 0.25)
	v.SetDefault("partfunc.table", "")
	v.SetDefault("partfunc.levels", "")
	v.SetDefault("partfunc.url", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", "http://localhost:3000")
}

// Load loads configuration.  path may be empty for no config file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	v.SetEnvPrefix("W51FIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	c := &Config{
		Log: LogConfig{
			Level: v.GetString("log.level"),
			JSON:  v.GetBool("log.json"),
		},
		RotDiag: RotDiagConfig{
			MinNupper:        v.GetFloat64("rotdiag.min_nupper"),
			MaxUplims:        v.GetString("rotdiag.max_uplims"),
			UplimSigma:       v.GetFloat64("rotdiag.uplim_sigma"),
			ErrorsFromUplims: v.GetBool("rotdiag.errors_from_uplims"),
		},
		TexMap: TexMapConfig{
			Workers:    v.GetInt("texmap.workers"),
			UpperLimit: v.GetFloat64("texmap.upper_limit"),
		},
		FreeFree: FreeFreeConfig{
			Te:         v.GetFloat64("freefree.te"),
			EMGuess:    v.GetFloat64("freefree.em_guess"),
			NormFac:    v.GetFloat64("freefree.normfac"),
			Iterations: v.GetInt("freefree.iterations"),
		},
		PhysProps: PhysPropsConfig{
			DistKpc: v.GetFloat64("physprops.dist_kpc"),
			BeamAs2: v.GetFloat64("physprops.beam_as2"),
		},
		PartFunc: PartFuncConfig{
			Table:  v.GetString("partfunc.table"),
			Levels: v.GetString("partfunc.levels"),
			URL:    v.GetString("partfunc.url"),
		},
		S3: storage.S3Config{
			Region:    v.GetString("s3.region"),
			Endpoint:  v.GetString("s3.endpoint"),
			AccessKey: v.GetString("s3.access_key"),
			SecretKey: v.GetString("s3.secret_key"),
		},
		Server: ServerConfig{
			Addr:           v.GetString("server.addr"),
			AllowedOrigins: origins(v.GetString("server.allowed_origins")),
		},
	}
	if _, err := c.maxUplims(); err != nil {
		return nil, err
	}
	return c, nil
}

func origins(s string) (o []string) {
	for _, x := range strings.Split(s, ",") {
		if x = strings.TrimSpace(x); x != "" {
			o = append(o, x)
		}
	}
	return
}

func (c *Config) maxUplims() (int, error) {
	s := strings.TrimSpace(c.RotDiag.MaxUplims)
	if s == "" || s == "half" {
		return -1, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("rotdiag.max_uplims %q: want a count or \"half\"", s)
	}
	return n, nil
}

// RotDiagOptions returns the rotational diagram configuration for a molecule.
func (c *Config) RotDiagOptions(molecule string) rotdiag.Config {
	n, _ := c.maxUplims()
	return rotdiag.Config{
		Molecule:              molecule,
		MinNupper:             c.RotDiag.MinNupper,
		MaxUpperLimits:        n,
		ErrorsFromUpperLimits: c.RotDiag.ErrorsFromUplims,
	}
}

// TexMapOptions returns map fit options.
func (c *Config) TexMapOptions() texmap.Options {
	return texmap.Options{
		Workers:         c.TexMap.Workers,
		UpperLimitSigma: c.RotDiag.UplimSigma,
		UpperLimit:      phys.IntegratedIntensity(c.TexMap.UpperLimit),
	}
}

// FreeFreeOptions returns SED fit options.
func (c *Config) FreeFreeOptions() freefree.Options {
	return freefree.Options{
		Te:         unit.Temperature(c.FreeFree.Te),
		EMGuess:    phys.EmissionMeasure(c.FreeFree.EMGuess),
		NormGuess:  c.FreeFree.NormFac,
		Iterations: c.FreeFree.Iterations,
	}
}

// RegionOptions returns HII region settings.
func (c *Config) RegionOptions(resolved bool) freefree.RegionOptions {
	return freefree.RegionOptions{
		BeamArea: c.PhysProps.BeamAs2,
		Distance: unit.Length(c.PhysProps.DistKpc * 1e3 * phys.Parsec),
		Resolved: resolved,
	}
}

// Lookup builds the partition function lookup named by the PartFunc
// settings.
func (c *Config) Lookup() (partfunc.Lookup, error) {
	var ch partfunc.Chain
	if p := c.PartFunc.Table; p != "" {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		tb, err := partfunc.ReadTable(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		ch = append(ch, tb)
	}
	if p := c.PartFunc.Levels; p != "" {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		s, err := partfunc.ReadLevels(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		ch = append(ch, s)
	}
	if u := c.PartFunc.URL; u != "" {
		ch = append(ch, partfunc.NewClient(strings.TrimSuffix(u, "/")))
	}
	if len(ch) == 0 {
		return nil, fmt.Errorf("no partition function source: set partfunc.table, partfunc.levels or partfunc.url")
	}
	return ch, nil
}
