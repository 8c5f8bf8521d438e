package monitoring

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/oblivionis/oblivionis-go/internal/config"
)

// Log outputs
const (
	OutputFile    = "file"
	OutputConsole = "console"
	OutputBoth    = "both"
)

// NewLogger builds the application logger from the logging settings.
// Console output goes to stderr; stdout belongs to the interactive front end.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	return newLogger(cfg, zapcore.Lock(os.Stderr))
}

func newLogger(cfg config.LoggingConfig, console zapcore.WriteSyncer) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	sinks, err := logSinks(cfg, console)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(logEncoder(cfg.Format), zapcore.NewMultiWriteSyncer(sinks...), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func logEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	if format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func logSinks(cfg config.LoggingConfig, console zapcore.WriteSyncer) ([]zapcore.WriteSyncer, error) {
	var sinks []zapcore.WriteSyncer

	switch cfg.Output {
	case OutputFile, OutputConsole, OutputBoth:
	default:
		return nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	if cfg.Output != OutputConsole {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}))
	}

	if cfg.Output != OutputFile {
		sinks = append(sinks, console)
	}

	return sinks, nil
}

// Named tags logger with the component that owns it. A nil logger yields
// a no-op logger.
func Named(logger *zap.Logger, component string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("component", component))
}
