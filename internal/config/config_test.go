// Public domain.

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soniakeys/w51fit/internal/config"
	"github.com/soniakeys/w51fit/internal/phys"
)

func TestDefaults(t *testing.T) {
	c, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", c.Log.Level)
	rd := c.RotDiagOptions("HNCO")
	assert.Equal(t, "HNCO", rd.Molecule)
	assert.Equal(t, 1., rd.MinNupper)
	assert.Equal(t, -1, rd.MaxUpperLimits)
	assert.False(t, rd.ErrorsFromUpperLimits)
	assert.Equal(t, 3., c.TexMapOptions().UpperLimitSigma)
	ff := c.FreeFreeOptions()
	assert.EqualValues(t, 8500, ff.Te)
	assert.EqualValues(t, 1e7, ff.EMGuess)
	ro := c.RegionOptions(true)
	assert.InDelta(t, 5.1e3*phys.Parsec, float64(ro.Distance), 1)
	assert.True(t, ro.Resolved)
	assert.Equal(t, ":8080", c.Server.Addr)

	_, err = c.Lookup()
	assert.Error(t, err)
}

func TestFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "q.txt")
	require.NoError(t, os.WriteFile(table, []byte("HNCO 75 300\nHNCO 150 850\n"), 0o644))
	cfgPath := filepath.Join(dir, "w51fit.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
rotdiag:
  max_uplims: 2
  min_nupper: 0
texmap:
  workers: 3
partfunc:
  table: `+table+`
server:
  allowed_origins: "https://a.example, https://b.example"
`), 0o644))
	t.Setenv("W51FIT_TEXMAP_WORKERS", "8")
	t.Setenv("W51FIT_ROTDIAG_ERRORS_FROM_UPLIMS", "true")

	c, err := config.Load(cfgPath)
	require.NoError(t, err)
	rd := c.RotDiagOptions("HNCO")
	assert.Equal(t, 2, rd.MaxUpperLimits)
	assert.Equal(t, 0., rd.MinNupper)
	assert.True(t, rd.ErrorsFromUpperLimits)
	assert.Equal(t, 8, c.TexMapOptions().Workers)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.Server.AllowedOrigins)

	q, err := c.Lookup()
	require.NoError(t, err)
	v, err := q.Q(context.Background(), "HNCO", 150)
	require.NoError(t, err)
	assert.InDelta(t, 850, v, 1e-9)
}

func TestInvalid(t *testing.T) {
	t.Setenv("W51FIT_ROTDIAG_MAX_UPLIMS", "some")
	_, err := config.Load("")
	assert.Error(t, err)
	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
