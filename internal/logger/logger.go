package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level = zapcore.Level

const (
	DEBUG = zapcore.DebugLevel
	INFO  = zapcore.InfoLevel
	WARN  = zapcore.WarnLevel
	ERROR = zapcore.ErrorLevel
	FATAL = zapcore.FatalLevel
)

// Logger keeps the printf-style call sites used across the services while
// writing structured output through zap.
type Logger struct {
	level zap.AtomicLevel
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// New builds a JSON logger for the given level. Development environments get
// the console encoder instead.
func New(level string, environment string) *Logger {
	atomic := zap.NewAtomicLevelAt(ParseLevel(level))

	var encoder zapcore.Encoder
	if environment == "development" {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(cfg)
	} else {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), atomic)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))

	return &Logger{
		level: atomic,
		base:  base,
		sugar: base.Sugar(),
	}
}

// Nop discards everything. Used by tests and optional dependencies.
func Nop() *Logger {
	base := zap.NewNop()
	return &Logger{
		level: zap.NewAtomicLevelAt(FATAL),
		base:  base,
		sugar: base.Sugar(),
	}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	sugar := l.sugar.With(keysAndValues...)
	return &Logger{
		level: l.level,
		base:  sugar.Desugar(),
		sugar: sugar,
	}
}

func (l *Logger) Zap() *zap.Logger {
	return l.base
}

func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(ParseLevel(level))
}

func (l *Logger) Enabled(level Level) bool {
	return l.level.Enabled(level)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *Logger) Fatal(format string, args ...interface{}) {
	l.sugar.Fatalf(format, args...)
}

func (l *Logger) Sync() error {
	return l.base.Sync()
}
