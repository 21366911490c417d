// Package logger wraps zap to provide leveled, optionally rotated logging that
// can be configured entirely from the application configuration.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log messages are sent and how verbose they are. It is
// expected to be decoded from the application configuration using mapstructure.
type Config struct {
	// Type is one of 'stderr', 'stdout', or 'logfile'.
	Type string `mapstructure:"type"`
	// File is the path to the log file when Type is 'logfile'. Missing parent
	// directories are created.
	File string `mapstructure:"file"`
	// Level adjusts verbosity (0=Fatal, 1=Error, 2=Warn, 3=Info, 4+5=Debug).
	Level int8 `mapstructure:"level"`
	// MaxSize is the maximum size of the log file in megabytes before rotation
	// when Type is 'logfile'.
	MaxSize int `mapstructure:"max-size"`
	// NumRotatedFiles is how many rotated log files to keep.
	NumRotatedFiles int `mapstructure:"num-rotated-files"`
	// Developer enables debug logging with stack traces, overriding Level.
	Developer bool `mapstructure:"developer"`
}

// Logger embeds a zap.Logger so callers can use the full zap API while the
// application owns setup and teardown through New and Sync.
type Logger struct {
	*zap.Logger
}

// New initializes a Logger from the provided Config. The returned logger must
// be flushed with Sync before the application exits.
func New(cfg Config) (*Logger, error) {
	if cfg.Developer {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("unable to initialize developer logging: %w", err)
		}
		return &Logger{l}, nil
	}

	var sink zapcore.WriteSyncer
	switch cfg.Type {
	case "", "stderr":
		sink = zapcore.Lock(os.Stderr)
	case "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "logfile":
		if cfg.File == "" {
			return nil, fmt.Errorf("log type 'logfile' requires a log file path")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("unable to create log directory: %w", err)
		}
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.NumRotatedFiles,
		})
	default:
		return nil, fmt.Errorf("unknown log type %q (expected 'stderr', 'stdout', or 'logfile')", cfg.Type)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, levelFromConfig(cfg.Level))
	return &Logger{zap.New(core)}, nil
}

// levelFromConfig maps the numeric config levels (0=Fatal, 1=Error, 2=Warn,
// 3=Info, 4+5=Debug) to zap levels.
func levelFromConfig(level int8) zapcore.Level {
	switch {
	case level <= 0:
		return zapcore.FatalLevel
	case level == 1:
		return zapcore.ErrorLevel
	case level == 2:
		return zapcore.WarnLevel
	case level == 3:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
