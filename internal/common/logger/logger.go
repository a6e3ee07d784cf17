package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// SetLevel changes the level of every logger created by this package.
func SetLevel(lvl string) error {
	l, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(lvl)))
	if err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

type Logger struct {
	service string
	z       *zap.Logger
}

func New(service string) *Logger { return newWithSink(service, zapcore.Lock(os.Stdout)) }

func newWithSink(service string, sink zapcore.WriteSyncer) *Logger {
	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), sink, level)
	z := zap.New(core).With(
		zap.String("service", service),
		zap.String("hostname", hostname()),
	)
	return &Logger{service: service, z: z}
}

// Nop discards everything; used by tests.
func Nop() *Logger { return &Logger{service: "nop", z: zap.NewNop()} }

func (l *Logger) Service() string { return l.service }

// WithRequestID returns a child logger stamping every entry with id.
func (l *Logger) WithRequestID(id string) *Logger {
	return &Logger{service: l.service, z: l.z.With(zap.String("request_id", id))}
}

func (l *Logger) log(lvl zapcore.Level, action string, fields map[string]any, err error) {
	ce := l.z.Check(lvl, action)
	if ce == nil {
		return
	}
	zf := make([]zap.Field, 0, len(fields)+2)
	zf = append(zf, zap.String("action", action))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	if err != nil {
		zf = append(zf, zap.Dict("error", zap.String("msg", err.Error()), zap.String("type", errType(err))))
	}
	ce.Write(zf...)
}

func (l *Logger) Info(action string, fields map[string]any)  { l.log(zapcore.InfoLevel, action, fields, nil) }
func (l *Logger) Debug(action string, fields map[string]any) { l.log(zapcore.DebugLevel, action, fields, nil) }
func (l *Logger) Warn(action string, fields map[string]any)  { l.log(zapcore.WarnLevel, action, fields, nil) }
func (l *Logger) Error(action string, err error, fields map[string]any) {
	l.log(zapcore.ErrorLevel, action, fields, err)
}

func (l *Logger) Sync() { _ = l.z.Sync() }

func errType(err error) string { return fmt.Sprintf("%T", err) }

func hostname() string { h, _ := os.Hostname(); return h }
