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

import (
	"sort"
	"sync"
	"sync/atomic"
)

type scheduledTimer struct {
	handle TimerHandle
	token  uint64
}

// StateManager owns the event queue and timer bookkeeping of one coordinator.
// PostEvent may be called from any goroutine; everything else is meant for the
// goroutine processing the coordinator, but is safe to call concurrently.
// Nothing blocks beyond a short critical section.
type StateManager struct {
	queueMu sync.Mutex
	queue   []Event

	timerMu   sync.Mutex
	timers    map[string]scheduledTimer
	nextToken uint64

	running atomic.Bool
}

// NewStateManager returns an empty, stopped StateManager.
func NewStateManager() *StateManager {
	return &StateManager{timers: make(map[string]scheduledTimer)}
}

// PostEvent appends e to the queue.
func (s *StateManager) PostEvent(e Event) {
	s.queueMu.Lock()
	s.queue = append(s.queue, e)
	s.queueMu.Unlock()
}

// NextBatch removes and returns up to maxSize events in FIFO order.
func (s *StateManager) NextBatch(maxSize int) []Event {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	n := min(maxSize, len(s.queue))
	if n <= 0 {
		return nil
	}

	batch := make([]Event, n)
	copy(batch, s.queue)

	rest := copy(s.queue, s.queue[n:])
	clear(s.queue[rest:])
	s.queue = s.queue[:rest]

	return batch
}

// QueueLen returns the number of queued events.
func (s *StateManager) QueueLen() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	return len(s.queue)
}

// IsRunning reports whether the last processed lifecycle event was a start.
func (s *StateManager) IsRunning() bool {
	return s.running.Load()
}

func (s *StateManager) setRunning(running bool) {
	s.running.Store(running)
}

// newTimerToken returns a token unique within this StateManager.
func (s *StateManager) newTimerToken() uint64 {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	s.nextToken++

	return s.nextToken
}

// SetTimer registers handle under key, cancelling the timer previously
// registered under the same key.
func (s *StateManager) SetTimer(key string, token uint64, handle TimerHandle) {
	s.timerMu.Lock()
	old, ok := s.timers[key]
	s.timers[key] = scheduledTimer{handle: handle, token: token}
	s.timerMu.Unlock()

	if ok {
		old.handle.Cancel()
	}
}

// CancelTimer cancels the timer registered under key. It reports whether
// there was one.
func (s *StateManager) CancelTimer(key string) bool {
	s.timerMu.Lock()
	old, ok := s.timers[key]
	delete(s.timers, key)
	s.timerMu.Unlock()

	if ok {
		old.handle.Cancel()
	}

	return ok
}

// CancelAllTimers cancels every registered timer and returns how many there were.
func (s *StateManager) CancelAllTimers() int {
	s.timerMu.Lock()
	timers := s.timers
	s.timers = make(map[string]scheduledTimer)
	s.timerMu.Unlock()

	for _, t := range timers {
		t.handle.Cancel()
	}

	return len(timers)
}

// IsTimerRunning reports whether a timer is registered under key.
func (s *StateManager) IsTimerRunning(key string) bool {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	_, ok := s.timers[key]

	return ok
}

// TimerKeys returns the sorted keys of all registered timers.
func (s *StateManager) TimerKeys() []string {
	s.timerMu.Lock()
	keys := make([]string, 0, len(s.timers))
	for k := range s.timers {
		keys = append(keys, k)
	}
	s.timerMu.Unlock()

	sort.Strings(keys)

	return keys
}

// takeFiredTimer removes the bookkeeping of a timer that fired. It returns
// false if key was cancelled or set again since token was handed out.
func (s *StateManager) takeFiredTimer(key string, token uint64) bool {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	t, ok := s.timers[key]
	if !ok || t.token != token {
		return false
	}

	delete(s.timers, key)

	return true
}
