// Package logger is a thin structured-logging facade over zap. All output is
// single-line JSON. The J variants attach an event name plus arbitrary fields;
// the plain variants log a bare message.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = newDefault()
)

func newDefault() *zap.Logger {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(os.Stderr), zapcore.InfoLevel)
	return zap.New(core)
}

// SetLogger swaps the backing logger. Intended for tests and for binaries
// that build their own zap config.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l != nil {
		log = l
	}
}

func get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Info(msg string)  { get().Info(msg) }
func Warn(msg string)  { get().Warn(msg) }
func Error(msg string) { get().Error(msg) }

// InfoJ logs an event with structured fields, e.g.
//
//	logger.InfoJ("state_transition", map[string]any{"from": "R1", "to": "R2"})
func InfoJ(event string, fields map[string]any)  { get().Info(event, toZap(fields)...) }
func WarnJ(event string, fields map[string]any)  { get().Warn(event, toZap(fields)...) }
func ErrorJ(event string, fields map[string]any) { get().Error(event, toZap(fields)...) }

func toZap(fields map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
