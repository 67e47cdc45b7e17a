package zaplogging

import (
	"fmt"

	"github.com/core-tools/hsu-ecosystem-go/pkg/logging"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// SprintfLogger adapts a zap sugared logger to printf-style level functions
type SprintfLogger struct {
	sugar *zap.SugaredLogger
}

// NewSprintfLogger builds a stderr zap logger with the given level ("debug", "info",
// "warn", "error") and encoding ("console" or "json").
func NewSprintfLogger(level string, format string) (*SprintfLogger, error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "", FormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.DisableStacktrace = true
	case FormatJSON:
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.DisableCaller = true

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	return NewSprintfLoggerFromZap(zapLogger), nil
}

func NewSprintfLoggerFromZap(zapLogger *zap.Logger) *SprintfLogger {
	return &SprintfLogger{sugar: zapLogger.Sugar()}
}

func (l *SprintfLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *SprintfLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *SprintfLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *SprintfLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// LogFuncs exposes the logger for logging.NewLogger
func (l *SprintfLogger) LogFuncs() logging.LogFuncs {
	return logging.LogFuncs{
		Debugf: l.Debugf,
		Infof:  l.Infof,
		Warnf:  l.Warnf,
		Errorf: l.Errorf,
	}
}

func (l *SprintfLogger) Sync() error {
	return l.sugar.Sync()
}
