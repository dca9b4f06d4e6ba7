// Package config holds the validated option structs for every backend.
// Constraints live on the struct fields and are enforced at construction
// time; an invalid value is a ConfigurationError, never deferred to fit.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is the shared struct validator. Field tags carry the domain of
// each option.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ConfigurationError reports option values outside their declared domain.
type ConfigurationError struct {
	Section string
	Reasons []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s configuration: %s", e.Section, strings.Join(e.Reasons, "; "))
}

// newConfigurationError converts validator output into the taxonomy error.
func newConfigurationError(section string, err error) error {
	if err == nil {
		return nil
	}
	ce := &ConfigurationError{Section: section}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			ce.Reasons = append(ce.Reasons,
				fmt.Sprintf("%s violates %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
	} else {
		ce.Reasons = append(ce.Reasons, err.Error())
	}
	return ce
}

// Config is the root configuration loaded by the CLI.
type Config struct {
	InSilico  InSilicoConfig  `yaml:"insilico"`
	XGBoost   XGBoostConfig   `yaml:"xgboost"`
	InContext InContextConfig `yaml:"incontext"`

	// ResultsDB is the path of the sqlite experiment store. Empty disables
	// persistence.
	ResultsDB string `yaml:"results_db"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		InSilico:  DefaultInSilicoConfig(),
		XGBoost:   DefaultXGBoostConfig(),
		InContext: DefaultInContextConfig(),
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.InSilico.Validate(); err != nil {
		return err
	}
	if err := c.XGBoost.Validate(); err != nil {
		return err
	}
	if err := c.InContext.Validate(); err != nil {
		return err
	}
	if err := validate.Struct(c.Logging); err != nil {
		return newConfigurationError("logging", err)
	}
	return nil
}
