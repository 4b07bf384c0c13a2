package logging

import (
	"encoding/json"
	"maps"
	"time"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

var bufferPool = buffer.NewPool()

// ScalyrEncoder is a Zap encoder that writes one flat JSON object per entry,
// the layout Scalyr parses without a custom parser. Context fields added with
// logger.With are kept in the embedded map encoder.
type ScalyrEncoder struct {
	*zapcore.MapObjectEncoder
	config zapcore.EncoderConfig
}

// NewScalyrEncoder creates a new Scalyr-compatible encoder
func NewScalyrEncoder(config zapcore.EncoderConfig) zapcore.Encoder {
	return &ScalyrEncoder{
		MapObjectEncoder: zapcore.NewMapObjectEncoder(),
		config:           config,
	}
}

// Clone creates a copy of the encoder, including accumulated context fields
func (e *ScalyrEncoder) Clone() zapcore.Encoder {
	clone := zapcore.NewMapObjectEncoder()
	maps.Copy(clone.Fields, e.Fields)
	return &ScalyrEncoder{
		MapObjectEncoder: clone,
		config:           e.config,
	}
}

// EncodeEntry encodes a log entry in Scalyr-compatible format
func (e *ScalyrEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	logObj := make(map[string]interface{}, len(e.Fields)+len(fields)+8)
	maps.Copy(logObj, e.Fields)

	fieldEnc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(fieldEnc)
	}
	maps.Copy(logObj, fieldEnc.Fields)

	// Entry metadata wins over user fields with the same key
	logObj["timestamp"] = entry.Time.UTC().Format(time.RFC3339Nano)
	logObj["level"] = entry.Level.String()
	logObj["message"] = entry.Message
	if entry.LoggerName != "" {
		logObj["logger"] = entry.LoggerName
	}
	if entry.Caller.Defined {
		logObj["file"] = entry.Caller.File
		logObj["line"] = entry.Caller.Line
		logObj["function"] = entry.Caller.Function
	}
	if entry.Stack != "" {
		logObj["stack"] = entry.Stack
	}

	buf := bufferPool.Get()
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(logObj); err != nil {
		buf.Free()
		return nil, err
	}
	return buf, nil
}
