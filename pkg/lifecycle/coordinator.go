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
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corda/corda-runtime-os-sub044/pkg/ctxutil"
	"github.com/corda/corda-runtime-os-sub044/pkg/metrics"
)

// Coordinator is the actor of one component. Events posted to it are
// processed one batch at a time on the shared Executor, in the order they
// were posted.
type Coordinator struct {
	id            uuid.UUID
	name          string
	state         *StateManager
	processor     *Processor
	registrations *RegistrationManager
	executor      Executor
	timers        TimerScheduler
	directory     Directory
	logger        *zap.SugaredLogger
	onClose       func(*Coordinator)

	statusMu      sync.Mutex
	statusChanged chan struct{}
	status        atomic.Int32

	scheduled atomic.Bool
	closed    atomic.Bool
}

// Name returns the name the coordinator was created with.
func (c *Coordinator) Name() string {
	return c.name
}

// ID returns the instance id of the coordinator.
func (c *Coordinator) ID() uuid.UUID {
	return c.id
}

// Status returns the current status.
func (c *Coordinator) Status() Status {
	return Status(c.status.Load())
}

// IsRunning reports whether the coordinator has processed a start and no
// stop since.
func (c *Coordinator) IsRunning() bool {
	return c.state.IsRunning()
}

// IsClosed reports whether Close was called.
func (c *Coordinator) IsClosed() bool {
	return c.closed.Load()
}

// Start posts a StartEvent.
func (c *Coordinator) Start() {
	c.PostEvent(StartEvent{})
}

// Stop posts a StopEvent.
func (c *Coordinator) Stop() {
	c.PostEvent(StopEvent{})
}

// PostEvent enqueues e. It never blocks. Events posted after Close are dropped.
func (c *Coordinator) PostEvent(e Event) {
	if c.closed.Load() {
		c.logger.Debugw("Dropping event posted to a closed coordinator", "event", EventName(e))

		return
	}

	c.enqueue(e)
}

// CreateTimer fires the event built by factory after delay, unless the timer
// is cancelled or key is set again first. A nil factory fires a BasicTimerEvent.
func (c *Coordinator) CreateTimer(key string, delay time.Duration, factory TimerEventFactory) {
	c.PostEvent(SetTimerEvent{Key: key, Delay: delay, Factory: factory})
}

// CancelTimer cancels the timer with key.
func (c *Coordinator) CancelTimer(key string) {
	c.PostEvent(CancelTimerEvent{Key: key})
}

// UpdateStatus sets the status and tells every follower. It is meant to be
// called from the handler; other goroutines post a StatusChangeEvent instead.
// UP is refused while the coordinator is not running.
func (c *Coordinator) UpdateStatus(status Status, reason string) {
	if status == StatusUp && !c.state.IsRunning() {
		c.logger.Warnw("Refusing to set status UP on a coordinator that is not running", "reason", reason)

		return
	}

	c.statusMu.Lock()
	old := Status(c.status.Swap(int32(status)))
	if old != status {
		close(c.statusChanged)
		c.statusChanged = make(chan struct{})
	}
	c.statusMu.Unlock()

	if old == status {
		return
	}

	c.logger.Infow("Status changed", "from", old.String(), "to", status.String(), "reason", reason)
	metrics.UpdateCoordinatorStatus(c.name, status.String())

	c.registrations.NotifyDependents(status)
}

// WaitForStatus blocks until the coordinator reports status or ctx is done.
func (c *Coordinator) WaitForStatus(ctx context.Context, status Status) error {
	for {
		c.statusMu.Lock()
		current := c.Status()
		changed := c.statusChanged
		c.statusMu.Unlock()

		if current == status {
			return nil
		}

		if err := ctxutil.Await(ctx, changed); err != nil {
			return fmt.Errorf("waiting for %s to become %s, still %s: %w", c.name, status, current, err)
		}
	}
}

// FollowStatusChangesByName follows the coordinators with the given names.
// The handler receives a RegistrationStatusChangeEvent each time all of them
// become UP, and each time that stops being true.
func (c *Coordinator) FollowStatusChangesByName(names []string) (*Registration, error) {
	if c.closed.Load() {
		return nil, &UsageError{Op: "follow", Name: c.name, Err: ErrCoordinatorClosed}
	}

	return follow(c, names, c.directory)
}

// Close stops the coordinator, closes its registrations and cancels its
// timers. The name becomes available again. Close is idempotent.
func (c *Coordinator) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	if c.onClose != nil {
		c.onClose(c)
	}

	c.enqueue(StopEvent{})
	c.enqueue(closeEvent{})
}

// QueueLen returns the number of events waiting to be processed.
func (c *Coordinator) QueueLen() int {
	return c.state.QueueLen()
}

// Info returns a point-in-time description of the coordinator.
func (c *Coordinator) Info() CoordinatorInfo {
	return CoordinatorInfo{
		Name:          c.name,
		ID:            c.id.String(),
		Status:        c.Status().String(),
		Running:       c.IsRunning(),
		Closed:        c.IsClosed(),
		QueuedEvents:  c.state.QueueLen(),
		Timers:        c.state.TimerKeys(),
		Registrations: c.registrations.Owned(),
		Dependents:    c.registrations.Dependents().Len(),
	}
}

// CoordinatorInfo is the JSON view of a coordinator.
type CoordinatorInfo struct {
	Name          string   `json:"name"`
	ID            string   `json:"id"`
	Status        string   `json:"status"`
	Timers        []string `json:"timers"`
	QueuedEvents  int      `json:"queuedEvents"`
	Registrations int      `json:"registrations"`
	Dependents    int      `json:"dependents"`
	Running       bool     `json:"running"`
	Closed        bool     `json:"closed"`
}

func (c *Coordinator) enqueue(e Event) {
	c.state.PostEvent(e)
	c.schedule()
}

func (c *Coordinator) schedule() {
	if c.scheduled.CompareAndSwap(false, true) {
		c.executor.Submit(c.runBatch)
	}
}

func (c *Coordinator) runBatch() {
	start := time.Now()

	defer func() {
		c.scheduled.Store(false)

		if c.state.QueueLen() > 0 {
			c.schedule()
		}
	}()

	ok := c.processor.ProcessEvents(c, c.timers)
	metrics.ObserveBatch(c.name, ok, time.Since(start))

	if !ok {
		c.logger.Debug("Batch finished with unhandled errors")
	}
}
