package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// process-wide fallback logger
var defaultLog atomic.Pointer[Logger]

// ValidLogLevels enumerates the accepted config log levels.
var ValidLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// LoggingConfig is the slice of the application config the logger needs.
// Implemented by pkg/config.LoggingConfig.
type LoggingConfig interface {
	// GetComponentLevel returns the level for a component, falling back to
	// the default level when the component has no override.
	GetComponentLevel(component string) string
	// GetDefaultLevel returns the default log level.
	GetDefaultLevel() string
	// IsDevelopment reports whether development encoding is enabled.
	IsDevelopment() bool
}

// Logger wraps zap.SugaredLogger so components get both structured and
// printf-style methods through one injected value. Child loggers created
// with WithComponent share the parent's atomic level.
type Logger struct {
	*zap.SugaredLogger

	atomicLevel zap.AtomicLevel
	component   string
}

// NewLogger builds a logger at the given level ("debug", "info", "warn",
// "error"). Development mode switches to the console encoder with colored
// levels and enables stack traces.
func NewLogger(level string, development bool) (*Logger, error) {
	var cfg zap.Config

	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	atomicLevel := zap.NewAtomicLevelAt(zapLevel)
	cfg.Level = atomicLevel

	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{
		SugaredLogger: zapLogger.Sugar(),
		atomicLevel:   atomicLevel,
	}, nil
}

// NewComponentLogger builds a standalone logger tagged with a component name.
// Panics on an invalid level, so it is only for wiring paths where the level
// was already validated.
func NewComponentLogger(component, level string, development bool) *Logger {
	l, err := NewLogger(level, development)
	if err != nil {
		panic(err)
	}
	return l.WithComponent(component)
}

// NewComponentLoggerFromConfig builds a component logger using per-component
// level overrides from config. A nil config yields an info-level production
// logger.
func NewComponentLoggerFromConfig(component string, cfg LoggingConfig) *Logger {
	if cfg == nil {
		return NewComponentLogger(component, "info", false)
	}
	return NewComponentLogger(component, cfg.GetComponentLevel(component), cfg.IsDevelopment())
}

// NewNopLogger returns a logger that discards everything. Used in tests.
func NewNopLogger() *Logger {
	return &Logger{
		SugaredLogger: zap.NewNop().Sugar(),
		atomicLevel:   zap.NewAtomicLevel(),
	}
}

// WithComponent returns a child logger tagged with a component name. The
// child shares the parent's atomic level.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		SugaredLogger: l.With("component", component),
		atomicLevel:   l.atomicLevel,
		component:     component,
	}
}

// WithSource returns a child logger tagged with a scan source id.
func (l *Logger) WithSource(sourceID string) *Logger {
	return &Logger{
		SugaredLogger: l.With("source", sourceID),
		atomicLevel:   l.atomicLevel,
		component:     l.component,
	}
}

// GetComponent returns the component name, or "" for the root logger.
func (l *Logger) GetComponent() string {
	return l.component
}

// GetLevel returns the current level as a string.
func (l *Logger) GetLevel() string {
	return l.atomicLevel.Level().String()
}

// SetLevel changes the level at runtime. The level is shared with every
// child logger derived from the same root.
func (l *Logger) SetLevel(level string) error {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	l.atomicLevel.SetLevel(zapLevel)
	return nil
}

// Close flushes any buffered log entries.
func (l *Logger) Close() error {
	return l.Sync()
}

// SetDefaultLogger replaces the process-wide fallback logger.
func SetDefaultLogger(l *Logger) {
	defaultLog.Store(l)
}

// GetDefaultLogger returns the process-wide fallback logger, creating a
// development logger on first use.
func GetDefaultLogger() *Logger {
	if l := defaultLog.Load(); l != nil {
		return l
	}
	l, err := NewLogger("info", true)
	if err != nil {
		panic(err)
	}
	defaultLog.Store(l)
	return defaultLog.Load()
}
