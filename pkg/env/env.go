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

// Package env reads process settings from environment variables.
package env

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables read by the binary.
const (
	ConfigPath          = "CONFIG_PATH"
	MetricsAddr         = "METRICS_ADDR"
	StatusAPIPort       = "STATUS_API_PORT"
	WorkerCount         = "WORKER_COUNT"
	StarvationThreshold = "STARVATION_THRESHOLD"
)

// GetAsString returns the variable key, or defaultValue if it is unset.
// A required variable that is unset is an error.
func GetAsString(key string, required bool, defaultValue string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		if required {
			return "", fmt.Errorf("required environment variable %s is not set", key)
		}

		return defaultValue, nil
	}

	return value, nil
}

// GetAsInt returns the variable key as an integer. An unparsable optional
// variable yields defaultValue.
func GetAsInt(key string, required bool, defaultValue int) (int, error) {
	value, err := GetAsString(key, required, strconv.Itoa(defaultValue))
	if err != nil {
		return 0, err
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		if required {
			return 0, fmt.Errorf("environment variable %s must be an integer: %w", key, err)
		}

		return defaultValue, nil
	}

	return intValue, nil
}

// GetAsDuration returns the variable key parsed with time.ParseDuration
// ("15s", "500ms"). An unparsable optional variable yields defaultValue.
func GetAsDuration(key string, required bool, defaultValue time.Duration) (time.Duration, error) {
	value, err := GetAsString(key, required, defaultValue.String())
	if err != nil {
		return 0, err
	}

	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		if required {
			return 0, fmt.Errorf("environment variable %s must be a non-negative duration: %q", key, value)
		}

		return defaultValue, nil
	}

	return d, nil
}
