package config

// XGBoostConfig configures the gradient-boosted trees backend. Field
// domains follow the upstream booster's parameter documentation.
type XGBoostConfig struct {
	NEstimators  int     `yaml:"n_estimators" validate:"gte=1"`
	MaxDepth     int     `yaml:"max_depth" validate:"gte=1,lte=20"`
	LearningRate float64 `yaml:"learning_rate" validate:"gt=0,lte=1"`

	Subsample       float64 `yaml:"subsample" validate:"gt=0,lte=1"`
	ColsampleByTree float64 `yaml:"colsample_bytree" validate:"gt=0,lte=1"`

	Objective string `yaml:"objective" validate:"oneof=multi:softprob multi:softmax"`

	// Regularization
	RegAlpha       float64 `yaml:"reg_alpha" validate:"gte=0"`
	RegLambda      float64 `yaml:"reg_lambda" validate:"gte=0"`
	MinChildWeight float64 `yaml:"min_child_weight" validate:"gte=0"`
	Gamma          float64 `yaml:"gamma" validate:"gte=0"`

	RandomSeed int64 `yaml:"random_seed" validate:"gte=0"`
}

// DefaultXGBoostConfig returns the stock booster parameters.
func DefaultXGBoostConfig() XGBoostConfig {
	return XGBoostConfig{
		NEstimators:     100,
		MaxDepth:        6,
		LearningRate:    0.3,
		Subsample:       1.0,
		ColsampleByTree: 1.0,
		Objective:       "multi:softprob",
		RegLambda:       1.0,
		RandomSeed:      42,
	}
}

// EnhancedXGBoostConfig returns a configuration with stronger regularization
// for better out-of-domain generalization: shallower trees, smaller learning
// rate, aggressive subsampling.
func EnhancedXGBoostConfig() XGBoostConfig {
	cfg := DefaultXGBoostConfig()
	cfg.MaxDepth = 4
	cfg.MinChildWeight = 20
	cfg.Gamma = 1.0
	cfg.LearningRate = 0.05
	cfg.NEstimators = 500
	cfg.Subsample = 0.6
	cfg.ColsampleByTree = 0.5
	cfg.RegAlpha = 10.0
	cfg.RegLambda = 20.0
	return cfg
}

// ConservativeXGBoostConfig returns the preset for extreme overfitting cases.
func ConservativeXGBoostConfig() XGBoostConfig {
	cfg := EnhancedXGBoostConfig()
	cfg.MaxDepth = 3
	cfg.MinChildWeight = 50
	cfg.Gamma = 5.0
	cfg.LearningRate = 0.01
	cfg.NEstimators = 1000
	cfg.Subsample = 0.4
	cfg.ColsampleByTree = 0.3
	cfg.RegAlpha = 50.0
	cfg.RegLambda = 100.0
	return cfg
}

// NewXGBoostConfig validates cfg and returns it, or a ConfigurationError.
func NewXGBoostConfig(cfg XGBoostConfig) (XGBoostConfig, error) {
	if err := cfg.Validate(); err != nil {
		return XGBoostConfig{}, err
	}
	return cfg, nil
}

// Validate enforces the field domains.
func (c XGBoostConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return newConfigurationError("xgboost", err)
	}
	return nil
}
