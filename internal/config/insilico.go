package config

import (
	"fmt"
	"strings"
	"time"

	"vaclassify/internal/logging"
)

// InSilicoConfig configures the Docker-executed InSilicoVA backend: MCMC
// parameters handed to the R script plus the container execution settings.
type InSilicoConfig struct {
	// MCMC parameters
	NSim       int     `yaml:"nsim" validate:"gte=1000"`
	JumpScale  float64 `yaml:"jump_scale" validate:"gt=0,lte=1"`
	AutoLength bool    `yaml:"auto_length"`

	ConvertType string `yaml:"convert_type" validate:"oneof=fixed adaptive"`
	PriorType   string `yaml:"prior_type" validate:"oneof=quantile default"`

	// Data settings
	CauseColumn string `yaml:"cause_column" validate:"required"`
	PHMRCType   string `yaml:"phmrc_type" validate:"oneof=adult child neonate"`
	UseHCE      bool   `yaml:"use_hce"`

	// Container execution
	DockerImage      string        `yaml:"docker_image" validate:"required"`
	DockerPlatform   string        `yaml:"docker_platform" validate:"oneof=linux/arm64 linux/amd64"`
	Timeout          time.Duration `yaml:"timeout"`
	UseFallbackBuild bool          `yaml:"use_fallback_build"`
	FallbackContext  string        `yaml:"fallback_context"`

	RandomSeed int64 `yaml:"random_seed" validate:"gte=0"`
	Verbose    bool  `yaml:"verbose"`
}

// DefaultInSilicoConfig returns the defaults used by the original openVA
// pipeline.
func DefaultInSilicoConfig() InSilicoConfig {
	return InSilicoConfig{
		NSim:            10000,
		JumpScale:       0.05,
		ConvertType:     "fixed",
		PriorType:       "quantile",
		CauseColumn:     "va34",
		PHMRCType:       "adult",
		UseHCE:          true,
		DockerImage:     "insilicova-arm64:latest",
		DockerPlatform:  "linux/arm64",
		Timeout:         time.Hour,
		FallbackContext: ".",
		RandomSeed:      42,
		Verbose:         true,
	}
}

// NewInSilicoConfig validates cfg and returns it, or a ConfigurationError.
func NewInSilicoConfig(cfg InSilicoConfig) (InSilicoConfig, error) {
	if err := cfg.Validate(); err != nil {
		return InSilicoConfig{}, err
	}
	return cfg, nil
}

// Validate enforces the field domains. NSim above the documented range is a
// logged warning, not a rejection.
func (c InSilicoConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return newConfigurationError("insilico", err)
	}
	ce := &ConfigurationError{Section: "insilico"}
	if c.Timeout < time.Minute || c.Timeout > 2*time.Hour {
		ce.Reasons = append(ce.Reasons,
			fmt.Sprintf("Timeout must be between 1m and 2h, got %s", c.Timeout))
	}
	// sha256-pinned images must carry a full digest
	if strings.HasPrefix(c.DockerImage, "sha256:") && len(c.DockerImage) != 71 {
		ce.Reasons = append(ce.Reasons,
			fmt.Sprintf("invalid sha256 image digest: %s", c.DockerImage))
	}
	if len(ce.Reasons) > 0 {
		return ce
	}
	if c.NSim > 100000 {
		logging.Get(logging.CategoryConfig).Warnf(
			"nsim=%d is very high, execution will be slow", c.NSim)
	}
	return nil
}

// RScriptParams returns the parameters interpolated into the generated
// R script.
func (c InSilicoConfig) RScriptParams() map[string]string {
	autoLength := "FALSE"
	if c.AutoLength {
		autoLength = "TRUE"
	}
	return map[string]string{
		"nsim":         fmt.Sprintf("%d", c.NSim),
		"jump_scale":   fmt.Sprintf("%g", c.JumpScale),
		"auto_length":  autoLength,
		"convert_type": c.ConvertType,
		"cause_column": c.CauseColumn,
		"phmrc_type":   c.PHMRCType,
		"random_seed":  fmt.Sprintf("%d", c.RandomSeed),
	}
}
