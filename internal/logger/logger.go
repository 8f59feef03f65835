// Package logger provides leveled structured logging backed by zap.
package logger

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	base   = zap.NewNop()
	sugar  = base.Sugar()
	fatalf = func(s *zap.SugaredLogger, format string, args ...interface{}) {
		s.Errorf(format, args...)
		_ = s.Sync()
		os.Exit(1)
	}
)

// Init initializes the default logger with the specified level and format.
// Format is "json" or "text"; unknown levels fall back to info.
func Init(level string, format string) {
	l, err := build(level, format)
	if err != nil {
		l = zap.NewExample()
	}
	Set(l)
}

func build(level, format string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(strings.ToLower(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	zc := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.ToLower(format) == "text" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zc.Build(zap.AddCallerSkip(1))
}

// Set replaces the default logger.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugar = l.Sugar()
}

// L returns the structured logger for callers that log fields.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.WithOptions(zap.AddCallerSkip(-1))
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func Debug(format string, args ...interface{}) {
	current().Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	current().Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	current().Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	current().Errorf(format, args...)
}

func Fatal(format string, args ...interface{}) {
	fatalf(current(), format, args...)
}
