package logging

import (
	"fmt"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Root logger names. Components add their own with Named.
const (
	ServerName = "scripthost"
	RunnerName = "scriptrun"
)

// New builds the root logger called name. Development mode writes colored
// console lines at debug level; otherwise JSON at cfg.Level, sampled.
// outputs replaces stdout when given.
func New(cfg config.LogConfig, name string, outputs ...string) (*zap.Logger, error) {
	zc := production()
	if cfg.Development {
		zc = development()
	} else if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	if len(outputs) > 0 {
		zc.OutputPaths = outputs
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named(name), nil
}

// Must is New that never fails. A bad level falls back to info and is
// reported on the returned logger; a logger that cannot be built is a no-op.
func Must(cfg config.LogConfig, name string) *zap.Logger {
	logger, err := New(cfg, name)
	if err == nil {
		return logger
	}
	cfg.Level = "info"
	fallback, ferr := New(cfg, name)
	if ferr != nil {
		return zap.NewNop()
	}
	fallback.Warn("invalid log config, using info", zap.Error(err))
	return fallback
}

func production() zap.Config {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return zap.Config{
		Level:             zap.NewAtomicLevelAt(zapcore.InfoLevel),
		Sampling:          &zap.SamplingConfig{Initial: 100, Thereafter: 100},
		Encoding:          "json",
		EncoderConfig:     enc,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}
}

func development() zap.Config {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zap.Config{
		Level:            zap.NewAtomicLevelAt(zapcore.DebugLevel),
		Development:      true,
		Encoding:         "console",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}
