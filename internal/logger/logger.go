package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig enables a rotating JSON log file tee'd with console output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Option customizes NewLogger.
type Option func(*options)

type options struct {
	level string
	file  FileConfig
}

// WithLevel overrides the log level: debug, info, warn, error. Empty keeps the env default.
func WithLevel(level string) Option {
	return func(o *options) { o.level = level }
}

// WithFile adds a rotating file sink. An empty path is ignored.
func WithFile(fc FileConfig) Option {
	return func(o *options) { o.file = fc }
}

// NewLogger creates a zap logger for the given environment.
// prod uses JSON output, local/dev use colored console output.
func NewLogger(env string, opts ...Option) (*zap.Logger, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}

	if o.level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(o.level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", o.level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	buildOpts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if o.file.Path != "" {
		fileCore := newFileCore(o.file, cfg.Level)
		buildOpts = append(buildOpts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	l, err := cfg.Build(buildOpts...)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

func newFileCore(fc FileConfig, level zapcore.LevelEnabler) zapcore.Core {
	rotator := &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.MaxSizeMB,
		MaxBackups: fc.MaxBackups,
		MaxAge:     fc.MaxAgeDays,
		Compress:   true,
	}

	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(rotator), level)
}
