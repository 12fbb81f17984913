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

package sentry

import (
	"fmt"
	"math"
	"strconv"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"
)

// FingerprintKeys are the field keys that affect Sentry grouping.
// Coordinator and component names group errors per component rather than per instance id.
var FingerprintKeys = []string{"operation", "coordinator", "component", "event_type"}

// SentryHook wraps a zapcore.Core and forwards Warn and above to Sentry
// from a separate goroutine, so logging never waits on the network.
type SentryHook struct {
	zapcore.Core
	capture func(entry zapcore.Entry, fields []zapcore.Field)
}

// NewSentryHook creates a new SentryHook wrapping the given zapcore.Core.
func NewSentryHook(core zapcore.Core) *SentryHook {
	return &SentryHook{Core: core, capture: captureToSentry}
}

// With returns a new SentryHook with the given fields added to the context.
func (h *SentryHook) With(fields []zapcore.Field) zapcore.Core {
	return &SentryHook{Core: h.Core.With(fields), capture: h.capture}
}

// Check determines whether the entry should be logged.
func (h *SentryHook) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if h.Enabled(entry.Level) {
		return ce.AddCore(entry, h)
	}

	return ce
}

// Write logs the entry to the underlying core and captures Warn and above.
func (h *SentryHook) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Level >= zapcore.WarnLevel && h.capture != nil {
		go h.capture(entry, fields)
	}

	return h.Core.Write(entry, fields)
}

func captureToSentry(entry zapcore.Entry, fields []zapcore.Field) {
	tags := extractFieldsAsContext(fields)
	fingerprint := extractFingerprintKeys(fields)
	level := zapLevelToSentry(entry.Level)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetFingerprint(append([]string{"{{ default }}", "level: " + getLevelString(level)}, fingerprint...))

		for k, v := range tags {
			scope.SetTag(k, v)
		}

		if entry.LoggerName != "" {
			scope.SetTag("logger", entry.LoggerName)
		}

		sentry.CaptureMessage(entry.Message)
	})
}

// extractFieldsAsContext converts zap fields to a map of string values for Sentry tags.
func extractFieldsAsContext(fields []zapcore.Field) map[string]string {
	context := make(map[string]string, len(fields))

	for _, field := range fields {
		if value, ok := fieldString(field); ok {
			context[field.Key] = value
		}
	}

	return context
}

func fieldString(field zapcore.Field) (string, bool) {
	switch field.Type {
	case zapcore.StringType:
		return field.String, true
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type, zapcore.DurationType:
		return strconv.FormatInt(field.Integer, 10), true
	case zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return strconv.FormatUint(uint64(field.Integer), 10), true
	case zapcore.BoolType:
		return strconv.FormatBool(field.Integer == 1), true
	case zapcore.Float64Type:
		return strconv.FormatFloat(math.Float64frombits(uint64(field.Integer)), 'g', -1, 64), true
	case zapcore.Float32Type:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(field.Integer))), 'g', -1, 32), true
	default:
		if field.Interface != nil {
			return fmt.Sprintf("%v", field.Interface), true
		}

		return "", false
	}
}

// extractFingerprintKeys returns "key: value" entries for the grouping keys present in fields.
func extractFingerprintKeys(fields []zapcore.Field) []string {
	var fingerprint []string

	for _, field := range fields {
		for _, key := range FingerprintKeys {
			if field.Key != key {
				continue
			}

			if value, ok := fieldString(field); ok {
				fingerprint = append(fingerprint, fmt.Sprintf("%s: %s", key, value))
			}

			break
		}
	}

	return fingerprint
}

func zapLevelToSentry(level zapcore.Level) sentry.Level {
	switch level {
	case zapcore.DebugLevel:
		return sentry.LevelDebug
	case zapcore.InfoLevel:
		return sentry.LevelInfo
	case zapcore.WarnLevel:
		return sentry.LevelWarning
	case zapcore.ErrorLevel:
		return sentry.LevelError
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return sentry.LevelFatal
	default:
		return sentry.LevelInfo
	}
}
