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

package component

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/looplab/fsm"

	"github.com/corda/corda-runtime-os-sub044/pkg/backoff"
	"github.com/corda/corda-runtime-os-sub044/pkg/config"
	"github.com/corda/corda-runtime-os-sub044/pkg/lifecycle"
	"github.com/corda/corda-runtime-os-sub044/pkg/metrics"
	"github.com/corda/corda-runtime-os-sub044/pkg/sentry"
)

const retryTimerKey = "activation-retry"

// tryAgain asks for another activation attempt. generation ties it to one
// activation cycle, so that leftovers of an earlier cycle are ignored.
type tryAgain struct {
	lifecycle.CustomEvent
	generation uint64
}

// retryTimer is the delayed form of tryAgain.
type retryTimer struct {
	tryAgain
}

func (retryTimer) TimerKey() string { return retryTimerKey }

type configChanged struct {
	lifecycle.CustomEvent
	current map[string]config.Snapshot
	changed []string
}

func (c *Component[T]) handle(event lifecycle.Event, coordinator *lifecycle.Coordinator) error {
	switch e := event.(type) {
	case lifecycle.StartEvent:
		return c.onStart(coordinator)

	case lifecycle.StopEvent:
		c.onStop()

	case lifecycle.RegistrationStatusChangeEvent:
		c.onRegistrationChange(e)

	case tryAgain:
		c.retry(e.generation)

	case retryTimer:
		c.retry(e.generation)

	case configChanged:
		c.onConfigChange(e)

	case useRequest[T]:
		if !c.hasActive {
			c.answer(e.done, ErrNotActive)

			return nil
		}

		c.answer(e.done, c.use(e.fn))

	case *lifecycle.ErrorEvent:
		c.logger.Errorw("Component event handling failed", "error", e.Cause)
		metrics.IncErrorCount(metrics.ComponentComponent, c.name)
		e.MarkHandled()
	}

	return nil
}

// use runs fn against the active implementation. A panic in fn becomes its
// error.
func (c *Component[T]) use(fn func(T) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", lifecycle.ErrHandlerPanic, r)
		}
	}()

	return fn(c.active)
}

func (c *Component[T]) retry(generation uint64) {
	if generation == c.generation && c.State() == StateActivating {
		c.attempt()
	}
}

func (c *Component[T]) onStart(coordinator *lifecycle.Coordinator) error {
	if len(c.upstream) == 0 {
		c.upstreamUp = true
	} else {
		reg, err := coordinator.FollowStatusChangesByName(c.upstream)
		if err != nil {
			coordinator.UpdateStatus(lifecycle.StatusError, "cannot follow upstream components")

			return fmt.Errorf("following upstream of %s: %w", c.name, err)
		}

		c.upstreamReg = reg
	}

	if c.feed != nil {
		sub, err := c.feed.Subscribe(func(changed []string, current map[string]config.Snapshot) {
			coordinator.PostEvent(configChanged{changed: changed, current: current})
		})
		if err != nil {
			coordinator.UpdateStatus(lifecycle.StatusError, "cannot subscribe to configuration")

			return fmt.Errorf("subscribing %s to configuration: %w", c.name, err)
		}

		c.configSub = sub
	}

	c.maybeActivate()

	return nil
}

func (c *Component[T]) onStop() {
	c.deactivate("component stopped")
	c.failPending()

	if c.upstreamReg != nil {
		_ = c.upstreamReg.Close()
		c.upstreamReg = nil
	}

	c.upstreamUp = false

	if c.configSub != nil {
		if err := c.configSub.Close(); err != nil {
			c.logger.Warnw("Failed to close configuration subscription", "error", err)
		}

		c.configSub = nil
	}

	clear(c.config)
	c.transition(EventReset)
	c.retries.Reset()
}

func (c *Component[T]) onRegistrationChange(e lifecycle.RegistrationStatusChangeEvent) {
	switch e.Registration {
	case c.upstreamReg:
		if e.Status == lifecycle.StatusUp {
			c.upstreamUp = true
			c.maybeActivate()

			return
		}

		c.upstreamUp = false
		c.deactivate("upstream dependency went down")

	case c.dependencyReg:
		c.dependsUp = e.Status == lifecycle.StatusUp
		c.refreshStatus()
	}
}

func (c *Component[T]) onConfigChange(e configChanged) {
	relevant := false

	for _, key := range e.changed {
		if _, ok := c.required[key]; !ok {
			continue
		}

		next, present := e.current[key]
		old, had := c.config[key]

		switch {
		case present && had && old.Equal(next):
			continue
		case present:
			c.config[key] = next
		case had:
			delete(c.config, key)
		default:
			continue
		}

		relevant = true
	}

	if !relevant {
		return
	}

	switch c.State() {
	case StateUp, StateActivating:
		c.deactivate("configuration changed")
		c.maybeActivate()
	case StateDown:
		c.maybeActivate()
	}
}

func (c *Component[T]) configReady() bool {
	if c.feed == nil {
		return true
	}

	for key := range c.required {
		if _, ok := c.config[key]; !ok {
			return false
		}
	}

	return true
}

func (c *Component[T]) maybeActivate() {
	if !c.coordinator.IsRunning() || !c.upstreamUp || !c.configReady() || c.State() != StateDown {
		return
	}

	c.generation++
	c.transition(EventActivate)
	c.attempt()
}

// attempt makes one activation attempt. It runs inline, so a slow factory
// only delays this component's own events.
func (c *Component[T]) attempt() {
	impl, err := c.activate(c.ctx, maps.Clone(c.config))
	metrics.RecordActivation(c.name, err == nil)

	if err != nil {
		c.onActivationFailure(err)

		return
	}

	c.retries.Reset()
	c.active = impl
	c.hasActive = true

	if declarer, ok := any(impl).(DependencyDeclarer); ok {
		if deps := declarer.Dependencies(); len(deps) > 0 {
			reg, ferr := c.coordinator.FollowStatusChangesByName(deps)
			if ferr != nil {
				c.destroy()
				c.onActivationFailure(backoff.NewPermanentError(ferr))

				return
			}

			c.dependencyReg = reg
			c.dependsUp = false
		}
	}

	c.transition(EventActivated)
	c.logger.Info("Component activated")
	c.refreshStatus()
}

func (c *Component[T]) onActivationFailure(err error) {
	err = backoff.CategorizeError(err)

	if backoff.IsIgnoredError(err) {
		c.logger.Infow("Activation aborted, waiting for the next trigger", "error", err)
		c.transition(EventDeactivate)

		return
	}

	retry, delay := c.retries.RecordFailure(err)
	if !retry {
		c.transition(EventFail)
		c.coordinator.UpdateStatus(lifecycle.StatusError, fmt.Sprintf("activation failed after %d attempts: %v", c.retries.Failures(), err))
		metrics.IncErrorCount(metrics.ComponentComponent, c.name)
		sentry.ReportComponentFailure(c.logger, c.name, c.retries.Failures(), c.retries.Err())

		return
	}

	c.logger.Warnw("Activation failed, retrying",
		"failures", c.retries.Failures(),
		"delay", delay,
		"error", err)

	next := tryAgain{generation: c.generation}
	if delay <= 0 {
		c.coordinator.PostEvent(next)

		return
	}

	c.coordinator.CreateTimer(retryTimerKey, delay, func(string) lifecycle.TimerEvent {
		return retryTimer{tryAgain: next}
	})
}

// deactivate tears down the implementation and, unless the component is in
// ERROR, reports DOWN.
func (c *Component[T]) deactivate(reason string) {
	c.generation++
	c.coordinator.CancelTimer(retryTimerKey)
	c.destroy()

	if c.State() == StateError || c.State() == StateDown {
		return
	}

	c.transition(EventDeactivate)
	c.retries.Reset()
	c.coordinator.UpdateStatus(lifecycle.StatusDown, reason)
}

func (c *Component[T]) destroy() {
	if c.dependencyReg != nil {
		_ = c.dependencyReg.Close()
		c.dependencyReg = nil
		c.dependsUp = false
	}

	if !c.hasActive {
		return
	}

	if err := c.active.Close(); err != nil {
		c.logger.Warnw("Failed to close active implementation", "error", err)
	}

	var zero T
	c.active = zero
	c.hasActive = false
}

func (c *Component[T]) refreshStatus() {
	if c.State() != StateUp {
		return
	}

	if c.dependencyReg == nil || c.dependsUp {
		c.coordinator.UpdateStatus(lifecycle.StatusUp, "active implementation ready")

		return
	}

	c.coordinator.UpdateStatus(lifecycle.StatusDown, "waiting for declared dependencies")
}

func (c *Component[T]) transition(event string) {
	// looplab drops transitions under a cancelled context, so c.ctx is not used.
	err := c.machine.Event(context.Background(), event)
	if err == nil {
		return
	}

	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}

	c.logger.Debugw("Ignoring activation event", "event", event, "state", c.State(), "error", err)
}
