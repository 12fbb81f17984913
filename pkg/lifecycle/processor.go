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

	"go.uber.org/zap"

	"github.com/corda/corda-runtime-os-sub044/pkg/metrics"
	"github.com/corda/corda-runtime-os-sub044/pkg/sentry"
)

// Handler receives the events of one coordinator, one at a time.
type Handler func(event Event, coordinator *Coordinator) error

// Processor interprets batches of events for one coordinator. Control events
// are applied to the StateManager and the RegistrationManager directly; the
// rest goes to the handler.
type Processor struct {
	state         *StateManager
	registrations *RegistrationManager
	handler       Handler
	logger        *zap.SugaredLogger
	batchSize     int
}

// NewProcessor returns a processor taking up to batchSize events per batch.
func NewProcessor(state *StateManager, registrations *RegistrationManager, handler Handler, batchSize int, log *zap.SugaredLogger) *Processor {
	return &Processor{
		state:         state,
		registrations: registrations,
		handler:       handler,
		logger:        log,
		batchSize:     batchSize,
	}
}

// ProcessEvents processes one batch. It returns false if any event in the
// batch ended in an unhandled error; the remaining events are processed
// regardless.
func (p *Processor) ProcessEvents(c *Coordinator, timers TimerScheduler) bool {
	allSucceeded := true

	for _, event := range p.state.NextBatch(p.batchSize) {
		if !p.processEvent(c, timers, event) {
			allSucceeded = false
		}
	}

	return allSucceeded
}

func (p *Processor) processEvent(c *Coordinator, timers TimerScheduler, event Event) bool {
	switch e := event.(type) {
	case StartEvent:
		if p.state.IsRunning() {
			p.logger.Debug("Ignoring start of a running coordinator")

			return p.dropped()
		}

		p.state.setRunning(true)

		return p.deliver(c, e)

	case StopEvent:
		if !p.state.IsRunning() {
			p.logger.Debug("Ignoring stop of a stopped coordinator")

			return p.dropped()
		}

		p.state.setRunning(false)

		if n := p.state.CancelAllTimers(); n > 0 {
			p.logger.Debugf("Cancelled %d timers on stop", n)
		}

		ok := p.deliver(c, e)
		c.UpdateStatus(StatusDown, "coordinator stopped")

		return ok

	case SetTimerEvent:
		if !p.state.IsRunning() {
			p.logger.Debugw("Not setting timer of a stopped coordinator", "key", e.Key)

			return p.dropped()
		}

		p.setTimer(c, timers, e)

		return true

	case CancelTimerEvent:
		p.state.CancelTimer(e.Key)

		return true

	case firedTimer:
		if !p.state.takeFiredTimer(e.key, e.token) {
			p.logger.Debugw("Dropping stale timer", "key", e.key)

			return p.dropped()
		}

		if !p.state.IsRunning() {
			return p.dropped()
		}

		return p.deliver(c, e.event)

	case NewRegistrationEvent:
		p.registrations.RegisterRegistration(e.Registration)

		return true

	case CancelRegistrationEvent:
		if e.Registration.Downstream() == c {
			p.registrations.UnregisterRegistration(e.Registration)
		}

		if e.Registration.hasUpstream(c) {
			p.registrations.UnregisterDependent(e.Registration)
		}

		return true

	case NewDependentEvent:
		p.registrations.RegisterDependent(e.Registration)

		return true

	case DependentStatusUpdateEvent:
		p.registrations.UpdateUpstream(e.Registration, e.Coordinator, e.Status)

		return true

	case StatusChangeEvent:
		c.UpdateStatus(e.Status, e.Reason)

		return true

	case closeEvent:
		p.state.CancelAllTimers()
		p.registrations.CloseAll()

		// The name may already belong to a new coordinator.
		if current, ok := c.directory.Get(c.Name()); !ok || current == c {
			metrics.RemoveCoordinator(c.Name())
		}

		return true

	case RegistrationStatusChangeEvent:
		if e.Registration.IsClosed() {
			p.logger.Debugw("Dropping status change of a closed registration", "registration", e.Registration.ID().String())

			return p.dropped()
		}

		return p.deliverIfRunning(c, e)

	case TimerEvent:
		// Posted directly rather than through CreateTimer.
		if !p.state.IsRunning() || !p.state.IsTimerRunning(e.TimerKey()) {
			p.state.CancelTimer(e.TimerKey())

			return p.dropped()
		}

		p.state.CancelTimer(e.TimerKey())

		return p.deliver(c, e)

	default:
		return p.deliverIfRunning(c, e)
	}
}

func (p *Processor) setTimer(c *Coordinator, timers TimerScheduler, e SetTimerEvent) {
	var fire TimerEvent
	if e.Factory != nil {
		fire = e.Factory(e.Key)
	}

	if fire == nil {
		fire = BasicTimerEvent{Key: e.Key}
	}

	token := p.state.newTimerToken()
	key := e.Key
	handle := timers.Schedule(e.Delay, func() {
		c.enqueue(firedTimer{key: key, token: token, event: fire})
	})

	p.state.SetTimer(key, token, handle)
}

func (p *Processor) deliverIfRunning(c *Coordinator, e Event) bool {
	if !p.state.IsRunning() {
		p.logger.Debugw("Dropping event for a stopped coordinator", "event", EventName(e))

		return p.dropped()
	}

	return p.deliver(c, e)
}

func (p *Processor) dropped() bool {
	metrics.RecordEvent(p.name(), metrics.ResultDropped)

	return true
}

func (p *Processor) name() string {
	return p.registrations.owner.Name()
}

// deliver runs the handler. On failure the handler gets a second call with an
// *ErrorEvent; if that fails too or leaves the error unhandled, the failure is
// reported and deliver returns false.
func (p *Processor) deliver(c *Coordinator, e Event) bool {
	err := p.invoke(c, e)
	if err == nil {
		metrics.RecordEvent(c.Name(), metrics.ResultHandled)

		return true
	}

	errEvent := &ErrorEvent{Cause: err}

	herr := p.invoke(c, errEvent)
	if herr == nil && errEvent.IsHandled() {
		p.logger.Debugw("Handler recovered from error", "event", EventName(e), "error", err)
		metrics.RecordEvent(c.Name(), metrics.ResultHandled)

		return true
	}

	if herr != nil {
		err = fmt.Errorf("%w (error handling failed: %w)", err, herr)
	}

	metrics.RecordEvent(c.Name(), metrics.ResultUnhandled)
	metrics.IncErrorCount(metrics.ComponentCoordinator, c.Name())
	sentry.ReportCoordinatorError(p.logger, c.Name(), EventName(e), err)

	return false
}

func (p *Processor) invoke(c *Coordinator, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	return p.handler(e, c)
}
