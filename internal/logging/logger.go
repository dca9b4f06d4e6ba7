// Package logging provides categorized logging for vaclassify. Each subsystem
// logs under its own named category so a cross-validation run can be traced
// per concern (validation, docker, engine, ...). Backed by zap; Initialize
// must be called once, everything before that is a no-op.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryCLI        Category = "cli"
	CategoryConfig     Category = "config"
	CategoryValidation Category = "validation"
	CategoryMetrics    Category = "metrics"
	CategoryModel      Category = "model"
	CategoryDocker     Category = "docker"
	CategoryEngine     Category = "engine"
	CategoryLLM        Category = "llm"
	CategoryCrossVal   Category = "crossval"
	CategoryStore      Category = "store"
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Initialize installs the process-wide logger. verbose enables debug level.
func Initialize(verbose bool) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	mu.Lock()
	root = l
	loggers = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()
	return nil
}

// InitializeWith installs an externally built logger. Used by tests.
func InitializeWith(l *zap.Logger) {
	mu.Lock()
	root = l
	loggers = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()
}

// Get returns the sugared logger for a category. Safe to call before
// Initialize; logging is then a no-op.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	r := root
	mu.RUnlock()

	if r == nil {
		r = zap.NewNop()
	}
	l := r.Named(string(category)).Sugar()

	mu.Lock()
	loggers[category] = l
	mu.Unlock()
	return l
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Convenience helpers, one per commonly used category.

func Validation(format string, args ...interface{}) {
	Get(CategoryValidation).Infof(format, args...)
}

func Model(format string, args ...interface{}) {
	Get(CategoryModel).Infof(format, args...)
}

func ModelWarn(format string, args ...interface{}) {
	Get(CategoryModel).Warnf(format, args...)
}

func Docker(format string, args ...interface{}) {
	Get(CategoryDocker).Infof(format, args...)
}

func DockerDebug(format string, args ...interface{}) {
	Get(CategoryDocker).Debugf(format, args...)
}

func CrossVal(format string, args ...interface{}) {
	Get(CategoryCrossVal).Infof(format, args...)
}
