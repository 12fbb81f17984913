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

package lifecycle

import "time"

// TimerHandle cancels one scheduled task. Cancel after the task ran is a no-op.
type TimerHandle interface {
	Cancel()
}

// TimerScheduler runs fire once after delay, on a goroutine of its choosing.
// Coordinators only ever enqueue an event from fire.
type TimerScheduler interface {
	Schedule(delay time.Duration, fire func()) TimerHandle
}

type afterFuncScheduler struct{}

type afterFuncTimer struct {
	t *time.Timer
}

func (t afterFuncTimer) Cancel() {
	t.t.Stop()
}

// NewTimerScheduler returns the default scheduler backed by the runtime timers.
func NewTimerScheduler() TimerScheduler {
	return afterFuncScheduler{}
}

func (afterFuncScheduler) Schedule(delay time.Duration, fire func()) TimerHandle {
	return afterFuncTimer{t: time.AfterFunc(delay, fire)}
}
