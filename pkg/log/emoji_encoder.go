package log

import (
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// emojiMap maps the "type" field of a record to the emoji prefixed to its message.
var emojiMap = map[string]string{
	"circuit":      "🛡️",
	"stream":       "📡",
	"heartbeat":    "💓",
	"reconnect":    "🔁",
	"webhook":      "🪝",
	"request":      "🌐",
	"success":      "✅",
	"redis":        "📦",
	"scheduler":    "🎯",
	"startup":      "🚀",
	"slow_request": "🐌",
}

// statusEmoji returns a traffic light for an HTTP status code.
func statusEmoji(status int) string {
	switch {
	case status >= 500:
		return "🔴"
	case status >= 400:
		return "🟠"
	case status >= 300:
		return "🟡"
	default:
		return "🟢"
	}
}

// EmojiConsoleEncoder wraps the console encoder and prefixes messages with an emoji
// chosen from the status field, then the type field, then the level.
type EmojiConsoleEncoder struct {
	zapcore.Encoder
}

// NewEmojiConsoleEncoder creates an EmojiConsoleEncoder.
func NewEmojiConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

// EncodeEntry implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	if emoji := pickEmoji(entry.Level, fields); emoji != "" {
		entry.Message = emoji + " " + entry.Message
	}
	return enc.Encoder.EncodeEntry(entry, fields)
}

// Clone implements zapcore.Encoder.
func (enc *EmojiConsoleEncoder) Clone() zapcore.Encoder {
	return &EmojiConsoleEncoder{Encoder: enc.Encoder.Clone()}
}

func pickEmoji(level zapcore.Level, fields []zapcore.Field) string {
	var logType string
	var status int64
	for _, f := range fields {
		switch {
		case f.Key == "type" && f.Type == zapcore.StringType:
			logType = f.String
		case f.Key == "status" && (f.Type == zapcore.Int64Type || f.Type == zapcore.Int32Type):
			status = f.Integer
		}
	}

	if status > 0 {
		return statusEmoji(int(status))
	}
	if e, ok := emojiMap[logType]; ok {
		return e
	}

	switch {
	case level >= zapcore.ErrorLevel:
		return "❌"
	case level == zapcore.WarnLevel:
		return "⚠️"
	case level == zapcore.InfoLevel:
		return "ℹ️"
	case level == zapcore.DebugLevel:
		return "🐛"
	}
	return ""
}
