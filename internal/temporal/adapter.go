package temporal

import (
	"fmt"
	"reflect"

	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// ZapAdapter adapts zap logger to Temporal's logger interface
type ZapAdapter struct {
	logger *zap.Logger
}

var (
	_ log.Logger          = (*ZapAdapter)(nil)
	_ log.WithLogger      = (*ZapAdapter)(nil)
	_ log.WithSkipCallers = (*ZapAdapter)(nil)
)

// NewZapAdapter wraps logger. SDK log lines carry the "temporal" name.
func NewZapAdapter(logger *zap.Logger) log.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAdapter{logger: logger.Named("temporal").WithOptions(zap.AddCallerSkip(1))}
}

func (z *ZapAdapter) Debug(msg string, keyvals ...interface{}) {
	z.logger.Debug(msg, fieldsFromKeyvals(keyvals)...)
}

func (z *ZapAdapter) Info(msg string, keyvals ...interface{}) {
	z.logger.Info(msg, fieldsFromKeyvals(keyvals)...)
}

func (z *ZapAdapter) Warn(msg string, keyvals ...interface{}) {
	z.logger.Warn(msg, fieldsFromKeyvals(keyvals)...)
}

func (z *ZapAdapter) Error(msg string, keyvals ...interface{}) {
	z.logger.Error(msg, fieldsFromKeyvals(keyvals)...)
}

// With returns a new logger with additional fields
func (z *ZapAdapter) With(keyvals ...interface{}) log.Logger {
	return &ZapAdapter{logger: z.logger.With(fieldsFromKeyvals(keyvals)...)}
}

// WithCallerSkip lets the SDK hide its own frames from caller info.
func (z *ZapAdapter) WithCallerSkip(depth int) log.Logger {
	return &ZapAdapter{logger: z.logger.WithOptions(zap.AddCallerSkip(depth))}
}

// fieldsFromKeyvals pairs up keyvals. A dangling key is logged as "extra";
// non-string keys are stringified.
func fieldsFromKeyvals(keyvals []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keyvals[i])
		}
		if i+1 >= len(keyvals) {
			fields = append(fields, safeZapField("extra", key))
			break
		}
		fields = append(fields, safeZapField(key, keyvals[i+1]))
	}
	return fields
}

// safeZapField creates a zap field, handling types that zap.Any() can't serialize
func safeZapField(key string, val interface{}) (field zap.Field) {
	defer func() {
		if r := recover(); r != nil {
			field = zap.String(key, fmt.Sprintf("<unserializable: %v>", r))
		}
	}()

	if val == nil {
		return zap.String(key, "<nil>")
	}
	if err, ok := val.(error); ok {
		return zap.NamedError(key, err)
	}

	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Func:
		return zap.String(key, "<func>")
	case reflect.Chan:
		return zap.String(key, "<chan>")
	case reflect.UnsafePointer:
		return zap.String(key, "<unsafe.Pointer>")
	default:
		return zap.Any(key, val)
	}
}
