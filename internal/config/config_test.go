package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestInSilicoFieldDomains(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*InSilicoConfig)
	}{
		{"nsim too small", func(c *InSilicoConfig) { c.NSim = 999 }},
		{"jump scale zero", func(c *InSilicoConfig) { c.JumpScale = 0 }},
		{"jump scale too large", func(c *InSilicoConfig) { c.JumpScale = 1.5 }},
		{"bad convert type", func(c *InSilicoConfig) { c.ConvertType = "magic" }},
		{"bad prior type", func(c *InSilicoConfig) { c.PriorType = "flat" }},
		{"empty cause column", func(c *InSilicoConfig) { c.CauseColumn = "" }},
		{"bad phmrc type", func(c *InSilicoConfig) { c.PHMRCType = "elder" }},
		{"bad platform", func(c *InSilicoConfig) { c.DockerPlatform = "windows/amd64" }},
		{"timeout too short", func(c *InSilicoConfig) { c.Timeout = 30 * time.Second }},
		{"timeout too long", func(c *InSilicoConfig) { c.Timeout = 3 * time.Hour }},
		{"truncated digest", func(c *InSilicoConfig) { c.DockerImage = "sha256:abc" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultInSilicoConfig()
			tc.mutate(&cfg)
			_, err := NewInSilicoConfig(cfg)
			var cerr *ConfigurationError
			require.Error(t, err)
			assert.True(t, errors.As(err, &cerr), "want ConfigurationError, got %T", err)
		})
	}
}

func TestXGBoostFieldDomains(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*XGBoostConfig)
	}{
		{"zero estimators", func(c *XGBoostConfig) { c.NEstimators = 0 }},
		{"depth too large", func(c *XGBoostConfig) { c.MaxDepth = 21 }},
		{"learning rate zero", func(c *XGBoostConfig) { c.LearningRate = 0 }},
		{"learning rate above one", func(c *XGBoostConfig) { c.LearningRate = 1.5 }},
		{"subsample zero", func(c *XGBoostConfig) { c.Subsample = 0 }},
		{"bad objective", func(c *XGBoostConfig) { c.Objective = "binary:logistic" }},
		{"negative lambda", func(c *XGBoostConfig) { c.RegLambda = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultXGBoostConfig()
			tc.mutate(&cfg)
			_, err := NewXGBoostConfig(cfg)
			require.Error(t, err)
		})
	}
}

func TestXGBoostPresets(t *testing.T) {
	enhanced := EnhancedXGBoostConfig()
	require.NoError(t, enhanced.Validate())
	assert.Equal(t, 4, enhanced.MaxDepth)
	assert.Equal(t, 0.05, enhanced.LearningRate)

	conservative := ConservativeXGBoostConfig()
	require.NoError(t, conservative.Validate())
	assert.Equal(t, 3, conservative.MaxDepth)
	assert.Equal(t, 1000, conservative.NEstimators)
	assert.Less(t, conservative.LearningRate, enhanced.LearningRate)
}

func TestInContextFieldDomains(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*InContextConfig)
	}{
		{"empty model", func(c *InContextConfig) { c.Model = "" }},
		{"batch size zero", func(c *InContextConfig) { c.BatchSize = 0 }},
		{"batch size too large", func(c *InContextConfig) { c.BatchSize = 65 }},
		{"softmax temperature too low", func(c *InContextConfig) { c.SoftmaxTemperature = 0.05 }},
		{"softmax temperature too high", func(c *InContextConfig) { c.SoftmaxTemperature = 2.5 }},
		{"zero request timeout", func(c *InContextConfig) { c.RequestTimeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultInContextConfig()
			tc.mutate(&cfg)
			_, err := NewInContextConfig(cfg)
			require.Error(t, err)
		})
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
xgboost:
  n_estimators: 250
  max_depth: 4
insilico:
  nsim: 5000
results_db: /tmp/results.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.XGBoost.NEstimators)
	assert.Equal(t, 4, cfg.XGBoost.MaxDepth)
	assert.Equal(t, 5000, cfg.InSilico.NSim)
	assert.Equal(t, "/tmp/results.db", cfg.ResultsDB)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.05, cfg.InSilico.JumpScale)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("xgboost:\n  max_depth: 50\n"), 0o644))

	_, err := Load(path)
	var cerr *ConfigurationError
	require.Error(t, err)
	assert.True(t, errors.As(err, &cerr))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
