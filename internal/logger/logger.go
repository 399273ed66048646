// Package logger provides structured logging with zap.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap.Logger for env at the given level. Extra cores, such as
// the live log broadcaster, are teed onto the base core.
func New(env, level string, extra ...zapcore.Core) *zap.Logger {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	base, err := cfg.Build()
	if err != nil {
		base = zap.NewNop()
	}
	if len(extra) == 0 {
		return base
	}
	cores := append([]zapcore.Core{base.Core()}, extra...)
	return base.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core {
		return zapcore.NewTee(cores...)
	}))
}
