package config

import "time"

// InContextConfig configures the foundation-model in-context backend. The
// model sees the training table as labeled examples in its prompt, so the
// advisory class/feature ceilings matter more than for the other backends.
type InContextConfig struct {
	Model  string `yaml:"model" validate:"required"`
	APIKey string `yaml:"api_key"`

	Temperature        float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	SoftmaxTemperature float64 `yaml:"softmax_temperature" validate:"gte=0.1,lte=2"`

	// BatchSize is the number of query rows classified per request.
	BatchSize int `yaml:"batch_size" validate:"gte=1,lte=64"`

	// Advisory ceilings: exceeding them warns, never fails.
	MaxClassesWarning  int `yaml:"max_classes_warning" validate:"gte=1"`
	MaxFeaturesWarning int `yaml:"max_features_warning" validate:"gte=1"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	RandomSeed     int64         `yaml:"random_seed" validate:"gte=0"`
}

// DefaultInContextConfig returns defaults tuned for VA class counts.
func DefaultInContextConfig() InContextConfig {
	return InContextConfig{
		Model:              "gemini-2.5-flash",
		Temperature:        0,
		SoftmaxTemperature: 0.5,
		BatchSize:          4,
		MaxClassesWarning:  50,
		MaxFeaturesWarning: 100,
		RequestTimeout:     5 * time.Minute,
		RandomSeed:         42,
	}
}

// NewInContextConfig validates cfg and returns it, or a ConfigurationError.
func NewInContextConfig(cfg InContextConfig) (InContextConfig, error) {
	if err := cfg.Validate(); err != nil {
		return InContextConfig{}, err
	}
	return cfg, nil
}

// Validate enforces the field domains.
func (c InContextConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return newConfigurationError("incontext", err)
	}
	if c.RequestTimeout <= 0 {
		return &ConfigurationError{
			Section: "incontext",
			Reasons: []string{"RequestTimeout must be positive"},
		}
	}
	return nil
}
