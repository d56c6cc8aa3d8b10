package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ifrs9-ecl/internal/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 300.0, cfg.PD.CreditScoreMin)
	assert.Equal(t, 850.0, cfg.PD.CreditScoreMax)
	assert.Equal(t, 0.0001, cfg.PD.Floor)
	assert.Equal(t, 0.99, cfg.PD.Ceiling)
	assert.Equal(t, 0.45, cfg.LGD.UnsecuredBase)
	assert.Equal(t, 0.75, cfg.EAD.CCF)
	assert.Equal(t, 90, cfg.Staging.DaysPastDueDefault)
	assert.Equal(t, 30.0, cfg.Staging.SICR.PDIncreaseBps)
	assert.Equal(t, 0.20, cfg.LGD.CollateralHaircuts["real_estate"])
}

func TestDefaultReturnsIndependentMaps(t *testing.T) {
	a := Default()
	b := Default()
	a.LGD.CollateralHaircuts["real_estate"] = 0.9
	assert.Equal(t, 0.20, b.LGD.CollateralHaircuts["real_estate"])
}

func TestLoadCreatesTemplateWhenMissing(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default().PD, cfg.PD)

	_, err = os.Stat(filepath.Join(dir, "config.toml"))
	assert.NoError(t, err)

	// The template itself must load cleanly.
	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.LGD.CollateralHaircuts, again.LGD.CollateralHaircuts)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	content := `
[pd]
floor = 0.0005

[lgd.collateral_haircuts]
vehicles = 0.35

[ecl.sicr_thresholds]
pd_increase_bps = 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 0.0005, cfg.PD.Floor)
	assert.Equal(t, 0.99, cfg.PD.Ceiling)
	assert.Equal(t, 0.35, cfg.LGD.CollateralHaircuts["vehicles"])
	assert.Equal(t, 0.20, cfg.LGD.CollateralHaircuts["real_estate"])
	assert.Equal(t, 50.0, cfg.Staging.SICR.PDIncreaseBps)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	content := `
[pd]
flor = 0.001
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ECL_LOG_LEVEL", "debug")
	t.Setenv("ECL_DB_PATH", filepath.Join(dir, "runs.db"))
	t.Setenv("ECL_WORKERS", "8")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Store.Enabled)
	assert.Equal(t, 8, cfg.ECL.Workers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"pd floor above ceiling", func(c *Config) { c.PD.Floor = 0.5; c.PD.Ceiling = 0.4 }},
		{"lgd ceiling above one", func(c *Config) { c.LGD.Ceiling = 1.5 }},
		{"score range inverted", func(c *Config) { c.PD.CreditScoreMax = 200 }},
		{"haircut out of range", func(c *Config) { c.LGD.CollateralHaircuts["cash"] = -0.1 }},
		{"ccf above one", func(c *Config) { c.EAD.CCFByProduct["overdraft"] = 1.2 }},
		{"negative hazard", func(c *Config) { c.PD.TermStructure.Stage2MonthlyRate = -0.1 }},
		{"default below sicr", func(c *Config) { c.Staging.DaysPastDueDefault = 10 }},
		{"no workers", func(c *Config) { c.ECL.Workers = 0 }},
		{"unknown method", func(c *Config) { c.ECL.CalculationMethod = "monte_carlo" }},
		{"negative decimal places", func(c *Config) { c.Output.DecimalPlaces = -1 }},
		{"too many decimal places", func(c *Config) { c.Output.DecimalPlaces = 9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrConfigInvalid))
		})
	}
}
