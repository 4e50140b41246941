// Package logger provides the process-wide structured logger. It wraps a
// zap.SugaredLogger behind a singleton so that packages which have no
// natural place to receive a logger via constructor injection (registry
// lookups, package-level helpers) can still log consistently.
package logger

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	singleton.Store(newDefault())
}

func newDefault() *zap.SugaredLogger {
	l, err := buildConfig(unstructuredLogs()).Build()
	if err != nil {
		// Fall back to zap's own panic-free default; this only happens if
		// the encoder config itself is invalid, which buildConfig never
		// produces.
		l = zap.NewNop()
	}
	return l.Sugar()
}

// unstructuredLogs mirrors the UNSTRUCTURED_LOGS toggle a developer sets
// locally to get human-readable console output instead of JSON.
func unstructuredLogs() bool {
	return unstructuredLogsFromEnv(os.Getenv("GRAVYVALET_UNSTRUCTURED_LOGS"))
}

func unstructuredLogsFromEnv(v string) bool {
	switch v {
	case "false":
		return false
	default:
		return true
	}
}

func buildConfig(unstructured bool) zap.Config {
	if unstructured {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// Initialize rebuilds the singleton logger from the current environment.
// Call it once at process startup, after config has been loaded and before
// any other package logs.
func Initialize(debug bool) {
	cfg := buildConfig(unstructuredLogs())
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return
	}
	singleton.Store(l.Sugar())
}

// Get returns the current process-wide logger.
func Get() *zap.SugaredLogger {
	return singleton.Load()
}

// Sync flushes any buffered log entries. Call it before process exit.
func Sync() error {
	return singleton.Load().Sync()
}

func Debugf(template string, args ...any) { singleton.Load().Debugf(template, args...) }
func Infof(template string, args ...any)  { singleton.Load().Infof(template, args...) }
func Warnf(template string, args ...any)  { singleton.Load().Warnf(template, args...) }
func Errorf(template string, args ...any) { singleton.Load().Errorf(template, args...) }

func Debugw(msg string, kv ...any) { singleton.Load().Debugw(msg, kv...) }
func Infow(msg string, kv ...any)  { singleton.Load().Infow(msg, kv...) }
func Warnw(msg string, kv ...any)  { singleton.Load().Warnw(msg, kv...) }
func Errorw(msg string, kv ...any) { singleton.Load().Errorw(msg, kv...) }
