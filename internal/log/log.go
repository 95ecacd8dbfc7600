package log

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu       sync.RWMutex
	sugar    *zap.SugaredLogger
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	initOnce sync.Once
)

// Init builds the global logger for the given environment ("production",
// "development" or "test") and minimum level.
func Init(environment string, l Level) error {
	cfg, err := zapConfig(environment)
	if err != nil {
		return err
	}
	if err := SetLevel(l); err != nil {
		return err
	}
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return err
	}

	mu.Lock()
	old := sugar
	sugar = logger.Sugar()
	mu.Unlock()
	if old != nil {
		_ = old.Sync()
	}
	return nil
}

// SetLevel changes the minimum level of the global logger.
func SetLevel(l Level) error {
	var zl zapcore.Level
	if err := zl.UnmarshalText([]byte(strings.ToLower(string(l)))); err != nil {
		return fmt.Errorf("log: unknown level %q", l)
	}
	level.SetLevel(zl)
	return nil
}

// Use replaces the global logger, mainly for tests (see zaptest).
func Use(l *zap.Logger) {
	mu.Lock()
	sugar = l.WithOptions(zap.AddCallerSkip(2)).Sugar()
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	if s != nil {
		_ = s.Sync()
	}
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(LevelWarn, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

func logWithLevel(l Level, msg string, kv ...any) {
	s := logger()
	switch l {
	case LevelDebug:
		s.Debugw(msg, kv...)
	case LevelWarn:
		s.Warnw(msg, kv...)
	case LevelError:
		s.Errorw(msg, kv...)
	default:
		s.Infow(msg, kv...)
	}
}

// logger returns the global logger, creating a production logger on first
// use if Init was never called.
func logger() *zap.SugaredLogger {
	mu.RLock()
	s := sugar
	mu.RUnlock()
	if s != nil {
		return s
	}

	initOnce.Do(func() {
		if err := Init("production", LevelInfo); err != nil {
			mu.Lock()
			sugar = zap.NewNop().Sugar()
			mu.Unlock()
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

func zapConfig(environment string) (zap.Config, error) {
	switch environment {
	case "production", "test", "":
		return zap.NewProductionConfig(), nil
	case "development":
		return zap.NewDevelopmentConfig(), nil
	default:
		return zap.Config{}, fmt.Errorf("log: unsupported environment: %s", environment)
	}
}
