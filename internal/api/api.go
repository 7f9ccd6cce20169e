// Public domain.

// Package api serves partition function lookups and single spectrum fits
// over HTTP.
//
// The partition function endpoint is the service partfunc.Client speaks
// to, so one w51fit server can supply partition functions to map fits
// run elsewhere.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/unit"

	"github.com/soniakeys/w51fit/internal/freefree"
	"github.com/soniakeys/w51fit/internal/lines"
	"github.com/soniakeys/w51fit/internal/partfunc"
	"github.com/soniakeys/w51fit/internal/phys"
	"github.com/soniakeys/w51fit/internal/rotdiag"
)

// Version is reported by the health endpoint.
const Version = "0.3.0"

// Service holds what the handlers need.
type Service struct {
	Lookup          partfunc.Lookup
	RotDiag         rotdiag.Config // Molecule is replaced per request
	UpperLimitSigma float64
	FreeFree        freefree.Options
	Region          freefree.RegionOptions
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Body struct {
		Status  string    `json:"status"`
		Version string    `json:"version"`
		Time    time.Time `json:"time"`
	}
}

// PartitionInput is a partition function request.
type PartitionInput struct {
	Molecule    string  `path:"molecule" doc:"Molecule name"`
	Temperature float64 `query:"temperature" required:"true" doc:"Temperature in K"`
}

// PartitionOutput is a partition function response.
type PartitionOutput struct {
	Body partfunc.QResponse
}

// Line is one transition and its measured integrated intensity.
type Line struct {
	Name         string  `json:"name,omitempty"`
	FrequencyGHz float64 `json:"frequency_ghz" exclusiveMinimum:"0"`
	EUpperK      float64 `json:"eu_k" minimum:"0" doc:"Upper state energy E_u/k in K"`
	Degeneracy   float64 `json:"degeneracy" exclusiveMinimum:"0"`
	EinsteinA    float64 `json:"einstein_a" exclusiveMinimum:"0" doc:"A_ul in s⁻¹"`
	Intensity    float64 `json:"intensity" doc:"Integrated intensity in K km/s"`
	Error        float64 `json:"error,omitempty" doc:"1σ uncertainty in K km/s"`
}

// BoltzmannInput is a rotational diagram fit request.
type BoltzmannInput struct {
	Body struct {
		Molecule        string  `json:"molecule"`
		Lines           []Line  `json:"lines" minItems:"2"`
		UpperLimitSigma float64 `json:"upper_limit_sigma,omitempty" doc:"Points below this many σ are upper limits; default from server config"`
	}
}

// BoltzmannResult is the body of a rotational diagram fit response.
type BoltzmannResult struct {
	Status       string  `json:"status" enum:"fitted,declined"`
	Reason       string  `json:"reason,omitempty"`
	Temperature  float64 `json:"temperature_k"`
	Column       float64 `json:"column_cm2"`
	Slope        float64 `json:"slope"`
	Intercept    float64 `json:"intercept"`
	Q            float64 `json:"q"`
	ChiSquare    float64 `json:"chi_square"`
	RSquared     float64 `json:"r_squared"`
	NUsed        int     `json:"n_used"`
	NUpperLimits int     `json:"n_upper_limits"`
}

// BoltzmannOutput is a rotational diagram fit response.
type BoltzmannOutput struct {
	Body BoltzmannResult
}

// FreeFreeInput is an SED fit request.
type FreeFreeInput struct {
	Body struct {
		NuGHz    []float64 `json:"nu_ghz" minItems:"2"`
		FluxMJy  []float64 `json:"flux_mjy" minItems:"2"`
		ErrMJy   []float64 `json:"err_mjy,omitempty"`
		Te       float64   `json:"te_k,omitempty" doc:"Electron temperature; default from server config"`
		EMGuess  float64   `json:"em_guess,omitempty"`
		Resolved bool      `json:"resolved,omitempty" doc:"Take the source size from the beam"`
	}
}

// FreeFreeResult is the body of an SED fit response.
type FreeFreeResult struct {
	EM          float64 `json:"em_pc_cm6"`
	NuTau1      float64 `json:"nu_tau1_ghz"`
	NormFac     float64 `json:"normfac"`
	ChiSquare   float64 `json:"chi_square"`
	Evaluations int     `json:"evaluations"`
	RadiusAU    float64 `json:"radius_au"`
	Density     float64 `json:"density_cm3"`
	Mass        float64 `json:"mass_msun"`
	Nlyc        float64 `json:"nlyc_s"`
}

// FreeFreeOutput is an SED fit response.
type FreeFreeOutput struct {
	Body FreeFreeResult
}

func lookupError(err error) error {
	switch {
	case errors.Is(err, partfunc.ErrUnknownMolecule):
		return huma.Error404NotFound(err.Error(), err)
	case errors.Is(err, partfunc.ErrTemperature), errors.Is(err, partfunc.ErrOutOfRange):
		return huma.Error400BadRequest(err.Error(), err)
	}
	return huma.Error502BadGateway("partition function lookup failed", err)
}

// Partition looks up a partition function.
func (s *Service) Partition(ctx context.Context, in *PartitionInput) (*PartitionOutput, error) {
	q, err := s.Lookup.Q(ctx, in.Molecule, unit.Temperature(in.Temperature))
	if err != nil {
		return nil, lookupError(err)
	}
	out := &PartitionOutput{}
	out.Body = partfunc.QResponse{Molecule: in.Molecule, Temperature: in.Temperature, Q: q}
	return out, nil
}

// Boltzmann fits a rotational diagram.
func (s *Service) Boltzmann(ctx context.Context, in *BoltzmannInput) (*BoltzmannOutput, error) {
	b := &in.Body
	n := len(b.Lines)
	trs := make([]lines.Transition, n)
	w := make([]float64, n)
	var e []float64
	for i, l := range b.Lines {
		trs[i] = lines.Transition{
			Name:       l.Name,
			Frequency:  phys.GHz(l.FrequencyGHz),
			EUpper:     unit.Temperature(l.EUpperK),
			Degeneracy: l.Degeneracy,
			EinsteinA:  unit.Frequency(l.EinsteinA),
		}
		w[i] = l.Intensity
		if l.Error > 0 {
			e = append(e, l.Error)
		}
	}
	if len(e) != 0 && len(e) != n {
		return nil, huma.Error400BadRequest("error must be given for all lines or none")
	}
	d := rotdiag.Diagram{
		EUpper:  make([]float64, n),
		NuOverG: rotdiag.NuppersOfKKms(w, trs),
	}
	for i, t := range trs {
		d.EUpper[i] = float64(t.EUpper)
	}
	if e != nil {
		sigma := b.UpperLimitSigma
		if sigma == 0 {
			sigma = s.UpperLimitSigma
		}
		d.Errors = rotdiag.NuppersOfKKms(e, trs)
		if sigma > 0 {
			d.UpperLimits = make([]float64, n)
			for i, x := range d.Errors {
				d.UpperLimits[i] = sigma * x
			}
		}
	}
	cfg := s.RotDiag
	cfg.Molecule = b.Molecule
	r, err := rotdiag.New(s.Lookup, cfg).Fit(ctx, d)
	switch {
	case errors.Is(err, rotdiag.ErrDegenerate):
		return nil, huma.Error422UnprocessableEntity(err.Error(), err)
	case err != nil:
		return nil, lookupError(err)
	}
	log.Ctx(ctx).Debug().Str("molecule", b.Molecule).Stringer("status", r.Status).
		Float64("tex", float64(r.Temperature)).Msg("rotational diagram")
	out := &BoltzmannOutput{}
	out.Body = BoltzmannResult{
		Status:       r.Status.String(),
		Reason:       r.Reason.String(),
		Temperature:  float64(r.Temperature),
		Column:       float64(r.Column),
		Slope:        r.Slope,
		Intercept:    r.Intercept,
		Q:            r.Q,
		ChiSquare:    r.ChiSquare,
		RSquared:     r.RSquared,
		NUsed:        r.NUsed,
		NUpperLimits: r.NUpperLimits,
	}
	return out, nil
}

// FitFreeFree fits a free-free SED and derives physical properties.
func (s *Service) FitFreeFree(ctx context.Context, in *FreeFreeInput) (*FreeFreeOutput, error) {
	b := &in.Body
	opt := s.FreeFree
	if b.Te > 0 {
		opt.Te = unit.Temperature(b.Te)
	}
	if b.EMGuess > 0 {
		opt.EMGuess = phys.EmissionMeasure(b.EMGuess)
	}
	sed := freefree.SED{Nu: b.NuGHz, Flux: b.FluxMJy, Err: b.ErrMJy}
	if err := sed.Validate(2); err != nil {
		return nil, huma.Error400BadRequest(err.Error(), err)
	}
	ro := s.Region
	ro.Resolved = b.Resolved
	reg, err := freefree.NewRegion(sed, ro, opt)
	if err != nil {
		var nc *freefree.NotConvergedError
		if errors.As(err, &nc) {
			return nil, huma.Error422UnprocessableEntity(err.Error(), err)
		}
		return nil, huma.Error400BadRequest(err.Error(), err)
	}
	p := reg.PhysProps()
	out := &FreeFreeOutput{}
	out.Body = FreeFreeResult{
		EM:          float64(reg.Fit.EM),
		NuTau1:      reg.Fit.NuTau1,
		NormFac:     reg.Fit.NormFac,
		ChiSquare:   reg.Fit.ChiSquare,
		Evaluations: reg.Fit.Evaluations,
		RadiusAU:    float64(p.Radius) / phys.AU,
		Density:     p.Density,
		Mass:        p.Mass,
		Nlyc:        p.Nlyc,
	}
	return out, nil
}

// Register registers the service operations on api.
func Register(api huma.API, s *Service) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, input *struct{}) (*HealthResponse, error) {
		resp := &HealthResponse{}
		resp.Body.Status = "healthy"
		resp.Body.Version = Version
		resp.Body.Time = time.Now()
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getPartitionFunction",
		Method:      http.MethodGet,
		Path:        "/partition/{molecule}",
		Summary:     "Rotational partition function",
		Description: "Returns Q(T) for a molecule.",
		Tags:        []string{"Partition function"},
	}, s.Partition)

	huma.Register(api, huma.Operation{
		OperationID: "fitBoltzmann",
		Method:      http.MethodPost,
		Path:        "/fit/boltzmann",
		Summary:     "Fit a rotational diagram",
		Description: "Converts integrated intensities to upper state column densities and fits excitation temperature and total column density.",
		Tags:        []string{"Fit"},
	}, s.Boltzmann)

	huma.Register(api, huma.Operation{
		OperationID: "fitFreeFree",
		Method:      http.MethodPost,
		Path:        "/fit/freefree",
		Summary:     "Fit a free-free SED",
		Description: "Fits emission measure and normalization at fixed electron temperature and derives HII region properties.",
		Tags:        []string{"Fit"},
	}, s.FitFreeFree)
}

// NewRouter returns the complete HTTP handler for s.
func NewRouter(s *Service, allowedOrigins []string) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(zerologLogger())
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	config := huma.DefaultConfig("w51fit API", Version)
	api := humachi.New(router, config)
	Register(api, s)
	return router
}

// zerologLogger returns a chi middleware that logs HTTP requests using
// zerolog.
func zerologLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("request_id", middleware.GetReqID(r.Context())).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Msg("HTTP request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
