// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// PrettyConsoleEncoder produces lines like
//
//	[INFO]	[coordinator.crypto]	status changed - from=DOWN, to=UP
//
// The timestamp is left to the process supervisor.
type PrettyConsoleEncoder struct {
	// Context fields of the common kinds are captured in fields; anything
	// else falls through to the embedded console encoder and is not printed.
	zapcore.Encoder
	cfg    zapcore.EncoderConfig
	pool   buffer.Pool
	fields []zapcore.Field
}

// NewPrettyConsoleEncoder creates a new PrettyConsoleEncoder instance.
func NewPrettyConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &PrettyConsoleEncoder{
		Encoder: zapcore.NewConsoleEncoder(cfg),
		cfg:     cfg,
		pool:    buffer.NewPool(),
	}
}

// Clone implements zapcore.Encoder.
func (e *PrettyConsoleEncoder) Clone() zapcore.Encoder {
	fields := make([]zapcore.Field, len(e.fields))
	copy(fields, e.fields)

	return &PrettyConsoleEncoder{
		Encoder: e.Encoder.Clone(),
		cfg:     e.cfg,
		pool:    e.pool,
		fields:  fields,
	}
}

// AddString keeps string context fields so EncodeEntry can print them.
func (e *PrettyConsoleEncoder) AddString(key, value string) {
	e.fields = append(e.fields, zapcore.Field{Key: key, Type: zapcore.StringType, String: value})
}

// AddInt64 keeps integer context fields.
func (e *PrettyConsoleEncoder) AddInt64(key string, value int64) {
	e.fields = append(e.fields, zapcore.Field{Key: key, Type: zapcore.Int64Type, Integer: value})
}

// AddBool keeps boolean context fields.
func (e *PrettyConsoleEncoder) AddBool(key string, value bool) {
	e.fields = append(e.fields, zap.Bool(key, value))
}

// EncodeEntry formats a log entry in a human-readable format.
func (e *PrettyConsoleEncoder) EncodeEntry(entry zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := e.pool.Get()

	line.AppendString("[")
	line.AppendString(entry.Level.CapitalString())
	line.AppendString("]\t")

	if entry.Caller.Defined {
		line.AppendString("[")
		line.AppendString(entry.Caller.TrimmedPath())
		line.AppendString("]\t")
	}

	if entry.LoggerName != "" {
		line.AppendString("[")
		line.AppendString(entry.LoggerName)
		line.AppendString("]\t")
	}

	line.AppendString(entry.Message)

	all := append(append([]zapcore.Field{}, e.fields...), fields...)
	if len(all) > 0 {
		line.AppendString(" - ")
		appendFields(line, all)
	}

	line.AppendString(e.cfg.LineEnding)

	return line, nil
}

func appendFields(line *buffer.Buffer, fields []zapcore.Field) {
	enc := zapcore.NewMapObjectEncoder()
	for i, field := range fields {
		field.AddTo(enc)

		if i > 0 {
			line.AppendString(", ")
		}

		line.AppendString(field.Key)
		line.AppendString("=")

		switch v := enc.Fields[field.Key].(type) {
		case string:
			line.AppendString(v)
		case int64:
			line.AppendString(strconv.FormatInt(v, 10))
		case bool:
			line.AppendBool(v)
		default:
			line.AppendString(toString(v))
		}
	}
}
