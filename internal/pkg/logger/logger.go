package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ProductionMode  = "production"
	DevelopmentMode = "development"
)

// New builds the process-wide zap logger. Production mode emits JSON
// with ISO8601 timestamps; anything else gets the colored development
// console output.
func New(mode string) (*zap.Logger, error) {
	var cfg zap.Config
	if mode == ProductionMode {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg.Build()
}

// MustNew is New for main() wiring where a logger failure is fatal anyway.
func MustNew(mode string) *zap.Logger {
	log, err := New(mode)
	if err != nil {
		panic(err)
	}
	return log
}
