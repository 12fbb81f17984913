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
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// debounceWindow is the minimum time between two reports of the same level.
const debounceWindow = 2 * time.Hour

type debouncer struct {
	mu       sync.Mutex
	lastSent time.Time
}

var (
	errorDebounce   debouncer
	warningDebounce debouncer
)

// allow returns true if a report may be sent now and records the send.
func (d *debouncer) allow(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if shouldDebounceErrors && !d.lastSent.IsZero() && now.Sub(d.lastSent) < debounceWindow {
		return false
	}

	d.lastSent = now

	return true
}

// reportFatal sends a fatal error to Sentry and panics after flushing.
func reportFatal(err error, log *zap.SugaredLogger, context map[string]interface{}) {
	log.Errorf("Fatal error, terminating: %s", err)
	log.Errorf("Stack trace: %s", string(debug.Stack()))

	sendSentryEvent(createSentryEventWithContext(sentry.LevelFatal, err, context))
	sentry.Flush(5 * time.Second)

	log.Panic("Fatal error")
}

func reportDebounced(err error, log *zap.SugaredLogger, context map[string]interface{}, d *debouncer) {
	level := sentry.LevelError
	if d == &warningDebounce {
		level = sentry.LevelWarning
		log.Warn(err)
	} else {
		log.Error(err)
	}

	if !d.allow(time.Now()) {
		return
	}

	sendSentryEvent(createSentryEventWithContext(level, err, context))
}
