package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Leveled logger shared by the API server and the batch CLI.
// Printf-style helpers sit on a zap JSON core so batch runs and the server
// emit the same structured lines.

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	base  = newZap(zapcore.Lock(os.Stdout))
)

func newZap(w zapcore.WriteSyncer) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
}

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level.SetLevel(zapcore.DebugLevel)
	case "warn", "warning":
		level.SetLevel(zapcore.WarnLevel)
	case "error":
		level.SetLevel(zapcore.ErrorLevel)
	case "fatal":
		level.SetLevel(zapcore.FatalLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

func sugar() *zap.SugaredLogger { return base.Sugar() }

func Debugf(format string, v ...interface{}) { sugar().Debugf(format, v...) }

func Infof(format string, v ...interface{}) { sugar().Infof(format, v...) }

func Warnf(format string, v ...interface{}) { sugar().Warnf(format, v...) }

func Errorf(format string, v ...interface{}) { sugar().Errorf(format, v...) }

// Fatalf logs and exits with status 1.
func Fatalf(format string, v ...interface{}) { sugar().Fatalf(format, v...) }

// With returns a structured logger carrying the given key/value pairs,
// e.g. With("run", id, "schema", "qa").Infow("record skipped", "ordinal", 3).
// Callers log through it directly, so the facade's caller skip is undone.
func With(kv ...interface{}) *zap.SugaredLogger {
	return base.WithOptions(zap.AddCallerSkip(-1)).Sugar().With(kv...)
}

// Sync flushes buffered entries; call before process exit.
func Sync() error { return base.Sync() }

// LevelString returns the current level as text.
func LevelString() string {
	return level.Level().String()
}
