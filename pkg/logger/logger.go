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
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the logging level.
type LogLevel string

// LogFormat represents the logging format.
type LogFormat string

const (
	// DebugLevel logs debug level messages.
	DebugLevel LogLevel = "DEBUG"
	// InfoLevel logs informational messages.
	InfoLevel LogLevel = "INFO"
	// WarnLevel logs warning messages.
	WarnLevel LogLevel = "WARN"
	// ErrorLevel logs error messages.
	ErrorLevel LogLevel = "ERROR"
	// ProductionLevel is an alias for InfoLevel, used for easier configuration.
	ProductionLevel LogLevel = "PRODUCTION"

	// FormatConsole indicates human-readable console format.
	FormatConsole LogFormat = "CONSOLE"
	// FormatJSON indicates structured JSON format.
	FormatJSON LogFormat = "JSON"
	// FormatPretty indicates the compact "[LEVEL] [component] message" format.
	FormatPretty LogFormat = "PRETTY"

	// EnvLogLevel selects the level of the global logger.
	EnvLogLevel = "LOGGING_LEVEL"
	// EnvLogFormat selects the format of the global logger.
	EnvLogFormat = "LOGGING_FORMAT"
)

var (
	initOnce sync.Once
	// initialized is read without the once on the hot path of For().
	initialized bool
)

// ParseLevel converts a textual level to a zapcore.Level. Unknown values map to info.
func ParseLevel(level LogLevel) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(string(level))) {
	case string(DebugLevel):
		return zapcore.DebugLevel
	case string(WarnLevel):
		return zapcore.WarnLevel
	case string(ErrorLevel):
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func formatFromEnv(defaultFormat LogFormat) LogFormat {
	format := LogFormat(strings.ToUpper(getEnv(EnvLogFormat, string(defaultFormat))))
	switch format {
	case FormatConsole, FormatJSON, FormatPretty:
		return format
	default:
		return defaultFormat
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05 MST"))
}

// New creates a zap logger writing to stdout with the given level and format.
func New(logLevel string, logFormat LogFormat) *zap.Logger {
	return NewWithCore(newCore(logLevel, logFormat, zapcore.AddSync(os.Stdout)))
}

// NewWithCore wraps an already built core, adding caller information.
func NewWithCore(core zapcore.Core) *zap.Logger {
	return zap.New(core, zap.AddCaller())
}

func newCore(logLevel string, logFormat LogFormat, sink zapcore.WriteSyncer) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder

	switch logFormat {
	case FormatPretty:
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.EncodeTime = timeEncoder
		encoder = NewPrettyConsoleEncoder(encoderConfig)
	case FormatConsole:
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeTime = timeEncoder
		encoderConfig.ConsoleSeparator = " | "
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	return zapcore.NewCore(encoder, sink, zap.NewAtomicLevelAt(ParseLevel(LogLevel(logLevel))))
}

// Initialize sets up the global logger from LOGGING_LEVEL and LOGGING_FORMAT
// and installs it with zap.ReplaceGlobals. Subsequent calls are no-ops.
func Initialize() {
	initOnce.Do(func() {
		logLevel := getEnv(EnvLogLevel, string(ProductionLevel))
		logFormat := formatFromEnv(FormatPretty)
		log := New(logLevel, logFormat)

		log.Info("Logger initialized",
			zap.String("level", logLevel),
			zap.String("format", string(logFormat)))

		zap.ReplaceGlobals(log)

		initialized = true
	})
}

// InitializeWith installs an externally built logger as the global logger.
// Used by the binary to add the sentry hook around the default core.
func InitializeWith(log *zap.Logger) {
	initOnce.Do(func() {
		zap.ReplaceGlobals(log)

		initialized = true
	})
}

// GetSugaredLogger returns the global sugared logger, initializing it if needed.
func GetSugaredLogger() *zap.SugaredLogger {
	if !initialized {
		Initialize()
	}

	return zap.S()
}

// Sync flushes any buffered log entries.
func Sync() error {
	return zap.L().Sync()
}

// For creates a named logger for a specific component.
func For(component string) *zap.SugaredLogger {
	if !initialized {
		Initialize()
	}

	return zap.S().Named(component)
}
