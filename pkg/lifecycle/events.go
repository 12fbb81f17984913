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
	"fmt"
	"time"
)

// Event is anything that can be posted to a coordinator. The set of events is
// closed: use one of the types below, UserEvent for an opaque payload, or
// embed CustomEvent in your own type.
type Event interface {
	lifecycleEvent()
}

// StartEvent starts a coordinator. Duplicate starts are not delivered.
type StartEvent struct{}

// StopEvent stops a coordinator. Duplicate stops are not delivered.
type StopEvent struct{}

// ErrorEvent is delivered to a handler after it returned an error or
// panicked. The handler must call MarkHandled, otherwise the error counts
// as unhandled.
type ErrorEvent struct {
	Cause   error
	handled bool
}

// MarkHandled marks the error as dealt with.
func (e *ErrorEvent) MarkHandled() { e.handled = true }

// IsHandled reports whether MarkHandled was called.
func (e *ErrorEvent) IsHandled() bool { return e.handled }

// TimerEvent is delivered when a timer created with CreateTimer fires.
type TimerEvent interface {
	Event
	TimerKey() string
}

// BasicTimerEvent is the TimerEvent used when no factory is given.
type BasicTimerEvent struct {
	Key string
}

func (e BasicTimerEvent) TimerKey() string { return e.Key }

// TimerEventFactory builds the event delivered when the timer with key fires.
type TimerEventFactory func(key string) TimerEvent

// SetTimerEvent schedules a timer. Setting an existing key replaces it.
type SetTimerEvent struct {
	Key     string
	Delay   time.Duration
	Factory TimerEventFactory
}

// CancelTimerEvent cancels the timer with Key, if any.
type CancelTimerEvent struct {
	Key string
}

// NewRegistrationEvent hands a registration to its downstream coordinator.
type NewRegistrationEvent struct {
	Registration *Registration
}

// CancelRegistrationEvent tells the upstreams and the downstream of a
// registration that it was closed.
type CancelRegistrationEvent struct {
	Registration *Registration
}

// RegistrationStatusChangeEvent is delivered to the downstream handler each
// time the aggregate status of one of its registrations flips.
type RegistrationStatusChangeEvent struct {
	Registration *Registration
	Status       Status
}

// StatusChangeEvent asks a coordinator to update its own status. Use it
// from goroutines other than the one processing the coordinator.
type StatusChangeEvent struct {
	Status Status
	Reason string
}

// NewDependentEvent adds a registration to the dependents of an upstream.
type NewDependentEvent struct {
	Registration *Registration
}

// DependentStatusUpdateEvent carries the status of one upstream to the
// downstream of a registration.
type DependentStatusUpdateEvent struct {
	Registration *Registration
	Coordinator  *Coordinator
	Status       Status
}

// UserEvent carries an arbitrary payload to the handler.
type UserEvent struct {
	Payload any
}

// CustomEvent turns any struct embedding it into an Event.
type CustomEvent struct{}

// closeEvent releases timers and registrations of a closed coordinator.
type closeEvent struct{}

// firedTimer wraps the event of a scheduled timer. token identifies one
// SetTimer call so that a replaced timer never delivers.
type firedTimer struct {
	key   string
	token uint64
	event TimerEvent
}

func (StartEvent) lifecycleEvent()                    {}
func (StopEvent) lifecycleEvent()                     {}
func (*ErrorEvent) lifecycleEvent()                   {}
func (BasicTimerEvent) lifecycleEvent()               {}
func (SetTimerEvent) lifecycleEvent()                 {}
func (CancelTimerEvent) lifecycleEvent()              {}
func (NewRegistrationEvent) lifecycleEvent()          {}
func (CancelRegistrationEvent) lifecycleEvent()       {}
func (RegistrationStatusChangeEvent) lifecycleEvent() {}
func (StatusChangeEvent) lifecycleEvent()             {}
func (NewDependentEvent) lifecycleEvent()             {}
func (DependentStatusUpdateEvent) lifecycleEvent()    {}
func (UserEvent) lifecycleEvent()                     {}
func (CustomEvent) lifecycleEvent()                   {}
func (closeEvent) lifecycleEvent()                    {}
func (firedTimer) lifecycleEvent()                    {}

// EventName returns a short name of the event type for logs and metrics.
func EventName(e Event) string {
	switch ev := e.(type) {
	case StartEvent:
		return "Start"
	case StopEvent:
		return "Stop"
	case *ErrorEvent:
		return "Error"
	case SetTimerEvent:
		return "SetTimer"
	case CancelTimerEvent:
		return "CancelTimer"
	case NewRegistrationEvent:
		return "NewRegistration"
	case CancelRegistrationEvent:
		return "CancelRegistration"
	case RegistrationStatusChangeEvent:
		return "RegistrationStatusChange"
	case StatusChangeEvent:
		return "StatusChange"
	case NewDependentEvent:
		return "NewDependent"
	case DependentStatusUpdateEvent:
		return "DependentStatusUpdate"
	case UserEvent:
		return fmt.Sprintf("User(%T)", ev.Payload)
	case closeEvent:
		return "Close"
	case firedTimer:
		return EventName(ev.event)
	case TimerEvent:
		return "Timer"
	default:
		return fmt.Sprintf("%T", e)
	}
}
