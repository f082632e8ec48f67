// Package log provides logging utilities for the Momentum stream client.
// It includes a Zap logger wrapper with Kratos adapter and automatic field sanitization.
package log

import (
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"
)

// KratosAdapter adapts a Zap logger to the Kratos log.Logger interface.
// The value of a "msg" key becomes the Zap message.
type KratosAdapter struct {
	zapLogger *zap.Logger
}

// NewKratosAdapter creates a Kratos logger writing to zapLogger.
func NewKratosAdapter(zapLogger *zap.Logger) log.Logger {
	return &KratosAdapter{
		zapLogger: zapLogger,
	}
}

// Log implements log.Logger.
func (a *KratosAdapter) Log(level log.Level, keyvals ...interface{}) error {
	if len(keyvals) == 0 {
		return nil
	}

	msg := ""
	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		value := keyvals[i+1]
		if key == log.DefaultMessageKey {
			msg = fmt.Sprint(value)
			continue
		}
		fields = append(fields, field(key, value))
	}
	if len(keyvals)%2 != 0 {
		fields = append(fields, zap.Any("EXTRA_VALUE", keyvals[len(keyvals)-1]))
	}

	switch level {
	case log.LevelDebug:
		a.zapLogger.Debug(msg, fields...)
	case log.LevelWarn:
		a.zapLogger.Warn(msg, fields...)
	case log.LevelError:
		a.zapLogger.Error(msg, fields...)
	case log.LevelFatal:
		a.zapLogger.Fatal(msg, fields...)
	default:
		a.zapLogger.Info(msg, fields...)
	}
	return nil
}

// Sync flushes buffered entries.
func (a *KratosAdapter) Sync() error {
	return a.zapLogger.Sync()
}

func field(key string, value interface{}) zap.Field {
	switch v := value.(type) {
	case string:
		return zap.String(key, SanitizeField(key, v))
	case error:
		if v == nil {
			return zap.Skip()
		}
		return zap.String(key, SanitizeField(key, v.Error()))
	case time.Duration:
		return zap.Duration(key, v)
	case fmt.Stringer:
		return zap.String(key, SanitizeField(key, v.String()))
	default:
		return zap.Any(key, value)
	}
}
