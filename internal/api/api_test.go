// Public domain.

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soniakeys/w51fit/internal/api"
	"github.com/soniakeys/w51fit/internal/freefree"
	"github.com/soniakeys/w51fit/internal/partfunc"
	"github.com/soniakeys/w51fit/internal/rotdiag"
)

func service() *api.Service {
	return &api.Service{
		Lookup:          partfunc.Registry{"CH3OH": partfunc.Fixed(1185)},
		RotDiag:         rotdiag.DefaultConfig,
		UpperLimitSigma: 3,
		FreeFree:        freefree.DefaultOptions,
		Region:          freefree.RegionOptions{BeamArea: 0.25},
	}
}

func testAPI(t *testing.T) humatest.TestAPI {
	_, tapi := humatest.New(t)
	api.Register(tapi, service())
	return tapi
}

// five CH3OH lines with intensities from T = 100 K, N = 1e15 cm⁻², Q = 1185
func ch3ohLines() []api.Line {
	ls := []api.Line{
		{FrequencyGHz: 218.44005, EUpperK: 45.46, Degeneracy: 9, EinsteinA: math.Pow(10, -4.3292)},
		{FrequencyGHz: 234.68345, EUpperK: 60.92, Degeneracy: 9, EinsteinA: math.Pow(10, -4.7304)},
		{FrequencyGHz: 220.07849, EUpperK: 96.61, Degeneracy: 17, EinsteinA: math.Pow(10, -4.5994)},
		{FrequencyGHz: 234.69847, EUpperK: 122.72, Degeneracy: 11, EinsteinA: math.Pow(10, -5.1966)},
		{FrequencyGHz: 231.28115, EUpperK: 165.35, Degeneracy: 21, EinsteinA: math.Pow(10, -4.7372)},
	}
	const (
		k = 1.380649e-16
		h = 6.62607015e-27
		c = 2.99792458e10
	)
	for i := range ls {
		l := &ls[i]
		nu := l.FrequencyGHz * 1e9
		perKKms := 8 * math.Pi * nu * k / (h * l.EinsteinA * c * c) * (1e5 * nu / c) / l.Degeneracy
		l.Intensity = 1e15 / 1185 * math.Exp(-l.EUpperK/100) / perKKms
	}
	return ls
}

func TestHealth(t *testing.T) {
	resp := testAPI(t).Get("/health")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"healthy"`)
}

func TestPartition(t *testing.T) {
	tapi := testAPI(t)
	resp := tapi.Get("/partition/CH3OH?temperature=100")
	require.Equal(t, http.StatusOK, resp.Code)
	var qr partfunc.QResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &qr))
	assert.Equal(t, 1185., qr.Q)
	assert.Equal(t, "CH3OH", qr.Molecule)

	assert.Equal(t, http.StatusNotFound, tapi.Get("/partition/CO?temperature=100").Code)
	assert.Equal(t, http.StatusBadRequest, tapi.Get("/partition/CH3OH?temperature=-5").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, tapi.Get("/partition/CH3OH").Code)
}

func TestBoltzmann(t *testing.T) {
	tapi := testAPI(t)
	resp := tapi.Post("/fit/boltzmann", map[string]any{
		"molecule": "CH3OH",
		"lines":    ch3ohLines(),
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var r api.BoltzmannResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &r))
	assert.Equal(t, "fitted", r.Status)
	assert.InDelta(t, 100, r.Temperature, 1e-3)
	assert.InDelta(t, 1, r.Column/1e15, 1e-6)
	assert.Equal(t, 5, r.NUsed)

	// uncertainties so large every line is an upper limit
	ls := ch3ohLines()
	for i := range ls {
		ls[i].Error = 1e6
	}
	resp = tapi.Post("/fit/boltzmann", map[string]any{"molecule": "CH3OH", "lines": ls})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &r))
	assert.Equal(t, "declined", r.Status)
	assert.Equal(t, "too many upper limits", r.Reason)
	assert.Zero(t, r.Temperature)

	ls[0].Error = 0
	resp = tapi.Post("/fit/boltzmann", map[string]any{"molecule": "CH3OH", "lines": ls})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = tapi.Post("/fit/boltzmann", map[string]any{"molecule": "HNCO", "lines": ch3ohLines()})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestFreeFree(t *testing.T) {
	tapi := testAPI(t)
	resp := tapi.Post("/fit/freefree", map[string]any{
		"nu_ghz":   []float64{1.4, 5, 8.33},
		"flux_mjy": []float64{4.7, 9.2, 9.1},
		"err_mjy":  []float64{0.52, 0.24, 0.07},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var r api.FreeFreeResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &r))
	assert.Greater(t, r.EM, 0.)
	assert.Greater(t, r.ChiSquare, 0.)
	assert.Greater(t, r.Density, 0.)
	assert.Greater(t, r.RadiusAU, 0.)

	resp = tapi.Post("/fit/freefree", map[string]any{
		"nu_ghz":   []float64{1.4, 5},
		"flux_mjy": []float64{4.7, 9.2, 9.1},
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

// The partition function client talks to the served endpoint.
func TestClientAgainstRouter(t *testing.T) {
	srv := httptest.NewServer(api.NewRouter(service(), []string{"https://w51.example"}))
	defer srv.Close()
	c := partfunc.NewClient(srv.URL)
	ctx := context.Background()
	q, err := c.Q(ctx, "CH3OH", 75)
	require.NoError(t, err)
	assert.Equal(t, 1185., q)
	_, err = c.Q(ctx, "CO", 75)
	assert.True(t, errors.Is(err, partfunc.ErrUnknownMolecule))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://w51.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://w51.example", resp.Header.Get("Access-Control-Allow-Origin"))
}
