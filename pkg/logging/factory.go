package logging

import (
	"context"
	"sync"
)

// Logger is the logging surface used across the pipeline. Callers obtain one per
// request with NewLogger so a custom factory can attach request-scoped fields.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	WithField(key string, value any) Logger
}

type LoggerFactory interface {
	CreateLogger(ctx context.Context) Logger
}

var (
	loggerFactoryMu sync.RWMutex
	loggerFactory   LoggerFactory
)

func SetLoggerFactory(factory LoggerFactory) {
	loggerFactoryMu.Lock()
	defer loggerFactoryMu.Unlock()

	loggerFactory = factory
}

func GetLoggerFactory() LoggerFactory {
	loggerFactoryMu.RLock()
	defer loggerFactoryMu.RUnlock()

	return loggerFactory
}

type fieldsKey struct{}

// ContextWithField returns a context whose loggers carry key=value on every entry.
func ContextWithField(ctx context.Context, key string, value any) context.Context {
	existing, _ := ctx.Value(fieldsKey{}).(map[string]any)
	fields := make(map[string]any, len(existing)+1)
	for k, v := range existing {
		fields[k] = v
	}
	fields[key] = value
	return context.WithValue(ctx, fieldsKey{}, fields)
}

func fieldsFromContext(ctx context.Context) map[string]any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey{}).(map[string]any)
	return fields
}
