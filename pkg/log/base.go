package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// log skips its own frame and the exported method's frame when recording
// the caller.
func (l *BaseLogger) log(level Level, msg string, attrs []slog.Attr) {
	if l.level.get() > level {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), toSlogLevel(level), msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.slogLogger.Handler().Handle(context.Background(), r)
}

// Debug logs at DebugLevel.
func (l *BaseLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, attrsFromFieldSlice(fields))
}

// Info logs at InfoLevel.
func (l *BaseLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, attrsFromFieldSlice(fields))
}

// Warn logs at WarnLevel.
func (l *BaseLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, attrsFromFieldSlice(fields))
}

// Error logs at ErrorLevel.
func (l *BaseLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, attrsFromFieldSlice(fields))
}

// Fatal logs at FatalLevel and exits the process.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, attrsFromFieldSlice(fields))
	l.closeOutputs()
	os.Exit(1)
}

// Debugf logs with key/value pairs at DebugLevel.
func (l *BaseLogger) Debugf(msg string, args ...interface{}) {
	l.log(DebugLevel, msg, argsToAttrs(args))
}

// Infof logs with key/value pairs at InfoLevel.
func (l *BaseLogger) Infof(msg string, args ...interface{}) {
	l.log(InfoLevel, msg, argsToAttrs(args))
}

// Warnf logs with key/value pairs at WarnLevel.
func (l *BaseLogger) Warnf(msg string, args ...interface{}) {
	l.log(WarnLevel, msg, argsToAttrs(args))
}

// Errorf logs with key/value pairs at ErrorLevel.
func (l *BaseLogger) Errorf(msg string, args ...interface{}) {
	l.log(ErrorLevel, msg, argsToAttrs(args))
}

// Fatalf logs with key/value pairs at FatalLevel and exits the process.
func (l *BaseLogger) Fatalf(msg string, args ...interface{}) {
	l.log(FatalLevel, msg, argsToAttrs(args))
	l.closeOutputs()
	os.Exit(1)
}

func (l *BaseLogger) child(fields Fields, attrs []slog.Attr) *BaseLogger {
	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &BaseLogger{
		level:      l.level,
		fields:     merged,
		formatter:  l.formatter,
		outputs:    l.outputs,
		slogLogger: l.slogLogger.With(attrsToAny(attrs)...),
	}
}

// WithField returns a child logger carrying key=value.
func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	return l.child(Fields{key: value}, []slog.Attr{slog.Any(key, value)})
}

// WithFields returns a child logger carrying all fields.
func (l *BaseLogger) WithFields(fields Fields) Logger {
	return l.child(fields, attrsFromMap(fields))
}

// WithError returns a child logger carrying the error field.
func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.child(Fields{"error": err}, []slog.Attr{slog.Any("error", err)})
}

// With returns a child logger carrying fields.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	m := make(Fields, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return l.child(m, attrsFromFieldSlice(fields))
}

// WithContext returns a child logger carrying the standard context values.
func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	fields := ContextExtractor(ctx)
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields)
}

// WithComponent tags the logger with a component name.
func (l *BaseLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

// SetLevel sets the minimum level for this logger and every logger sharing
// its root.
func (l *BaseLogger) SetLevel(level Level) { l.level.set(level) }

// GetLevel returns the current minimum level.
func (l *BaseLogger) GetLevel() Level { return l.level.get() }

// Slog exposes the underlying slog.Logger for libraries that take one.
func (l *BaseLogger) Slog() *slog.Logger { return l.slogLogger }

func (l *BaseLogger) closeOutputs() {
	for _, out := range l.outputs {
		_ = out.Close()
	}
}

// ParseLevel converts a textual level into a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "DEBUG":
		return DebugLevel, nil
	case "info", "INFO", "":
		return InfoLevel, nil
	case "warn", "WARN", "warning", "WARNING":
		return WarnLevel, nil
	case "error", "ERROR":
		return ErrorLevel, nil
	case "fatal", "FATAL":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}
