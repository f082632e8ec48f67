package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"Momentum/internal/conf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewZapLogger_NilConfig(t *testing.T) {
	_, err := NewZapLogger(nil)
	assert.Error(t, err)
}

func TestNewZapLogger_InvalidLevel(t *testing.T) {
	_, err := NewZapLogger(&conf.Log{Level: "verbose"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNewZapLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		t.Run(level, func(t *testing.T) {
			logger, err := NewZapLogger(&conf.Log{Level: level, Format: "json"})
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewZapLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "momentum.log")
	logger, err := NewZapLogger(&conf.Log{Level: "info", Format: "json", Env: "production", OutputFile: path})
	require.NoError(t, err)

	logger.Info("stream opened")
	logger.Debug("filtered")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "stream opened")
	assert.Contains(t, content, `"service":"momentum"`)
	assert.Contains(t, content, `"env":"production"`)
	assert.NotContains(t, content, "filtered")
}

func TestNewZapLogger_EnvironmentVariable(t *testing.T) {
	t.Setenv("MOMENTUM_ENV", "development")
	path := filepath.Join(t.TempDir(), "dev.log")

	logger, err := NewZapLogger(&conf.Log{Level: "info", Format: "json", OutputFile: path})
	require.NoError(t, err)
	logger.Info("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(strings.TrimSpace(string(data)), "{"), "development uses the console encoder")
	assert.Contains(t, string(data), "ℹ️ hello")
}

func TestEmojiConsoleEncoder(t *testing.T) {
	enc := NewEmojiConsoleEncoder(zapcore.EncoderConfig{MessageKey: "msg"})

	tests := []struct {
		name   string
		level  zapcore.Level
		fields []zapcore.Field
		prefix string
	}{
		{"status wins", zapcore.InfoLevel, []zapcore.Field{
			{Key: "status", Type: zapcore.Int64Type, Integer: 503},
			{Key: "type", Type: zapcore.StringType, String: "request"},
		}, "🔴"},
		{"type", zapcore.InfoLevel, []zapcore.Field{{Key: "type", Type: zapcore.StringType, String: "circuit"}}, "🛡️"},
		{"unknown type falls back to level", zapcore.WarnLevel, []zapcore.Field{{Key: "type", Type: zapcore.StringType, String: "nope"}}, "⚠️"},
		{"error level", zapcore.ErrorLevel, nil, "❌"},
		{"debug level", zapcore.DebugLevel, nil, "🐛"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := enc.Clone().EncodeEntry(zapcore.Entry{Level: tt.level, Message: "m"}, tt.fields)
			require.NoError(t, err)
			defer buf.Free()
			assert.Contains(t, buf.String(), tt.prefix+" m")
		})
	}
}

func TestStatusEmoji(t *testing.T) {
	assert.Equal(t, "🟢", statusEmoji(200))
	assert.Equal(t, "🟡", statusEmoji(304))
	assert.Equal(t, "🟠", statusEmoji(404))
	assert.Equal(t, "🔴", statusEmoji(500))
}
