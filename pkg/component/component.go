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

// Package component supervises a replaceable active implementation. A
// component builds its implementation once every upstream component is UP
// (and, for configurable components, every required configuration key has
// arrived), and tears it down when that stops being true.
package component

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/corda/corda-runtime-os-sub044/pkg/backoff"
	"github.com/corda/corda-runtime-os-sub044/pkg/config"
	"github.com/corda/corda-runtime-os-sub044/pkg/ctxutil"
	"github.com/corda/corda-runtime-os-sub044/pkg/lifecycle"
	"github.com/corda/corda-runtime-os-sub044/pkg/logger"
	"github.com/corda/corda-runtime-os-sub044/pkg/metrics"
)

// ErrNotActive is returned by Use when there is no active implementation.
var ErrNotActive = errors.New("component has no active implementation")

// minUseTime is the least time a Use call needs before its deadline.
const minUseTime = 10 * time.Millisecond

// Implementation is the object a component activates. Close releases
// everything it owns.
type Implementation interface {
	Close() error
}

// DependencyDeclarer is implemented by implementations that need further
// components. The component only reports UP while all of them are UP.
type DependencyDeclarer interface {
	Dependencies() []string
}

// ActivateFunc builds the active implementation.
type ActivateFunc[T Implementation] func(ctx context.Context) (T, error)

// ConfiguredActivateFunc builds the active implementation from the current
// values of the required configuration keys.
type ConfiguredActivateFunc[T Implementation] func(ctx context.Context, cfg map[string]config.Snapshot) (T, error)

// Component supervises one active implementation through its own coordinator.
// All state below the coordinator is owned by the coordinator's processing
// goroutine.
type Component[T Implementation] struct {
	activate    ConfiguredActivateFunc[T]
	ctx         context.Context //nolint:containedctx // cancelled on Close, handed to activations
	active      T
	coordinator *lifecycle.Coordinator
	machine     *fsm.FSM
	retries     *backoff.RetryPolicy
	logger      *zap.SugaredLogger
	cancel      context.CancelFunc

	upstreamReg   *lifecycle.Registration
	dependencyReg *lifecycle.Registration

	// Use requests posted but not answered yet. Whoever removes a request
	// answers it.
	pendingMu sync.Mutex
	pending   map[chan error]struct{}

	feed      config.Feed
	configSub io.Closer
	config    map[string]config.Snapshot
	required  map[string]struct{}

	name       string
	upstream   []string
	generation uint64
	hasActive  bool
	upstreamUp bool
	dependsUp  bool
}

// New creates a component named name that activates once all upstream
// components are UP. The component is stopped until Start.
func New[T Implementation](factory *lifecycle.CoordinatorFactory, name string, upstream []string, activate ActivateFunc[T], opts ...Option) (*Component[T], error) {
	if activate == nil {
		return nil, &lifecycle.UsageError{Op: "create component", Name: name, Err: lifecycle.ErrInvalidArgument}
	}

	return newComponent(factory, name, upstream, nil, nil, func(ctx context.Context, _ map[string]config.Snapshot) (T, error) {
		return activate(ctx)
	}, opts)
}

// NewConfigurable creates a component that additionally waits for every key
// in requiredKeys to arrive through feed, and rebuilds its implementation
// whenever one of them changes.
func NewConfigurable[T Implementation](factory *lifecycle.CoordinatorFactory, name string, upstream []string, feed config.Feed, requiredKeys []string, activate ConfiguredActivateFunc[T], opts ...Option) (*Component[T], error) {
	if activate == nil || feed == nil {
		return nil, &lifecycle.UsageError{Op: "create component", Name: name, Err: lifecycle.ErrInvalidArgument}
	}

	return newComponent(factory, name, upstream, feed, requiredKeys, activate, opts)
}

func newComponent[T Implementation](factory *lifecycle.CoordinatorFactory, name string, upstream []string, feed config.Feed, requiredKeys []string, activate ConfiguredActivateFunc[T], opts []Option) (*Component[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = logger.For(logger.ComponentComponent).With("component", name)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Component[T]{
		activate: activate,
		ctx:      ctx,
		cancel:   cancel,
		machine:  newMachine(o.logger),
		retries:  backoff.NewRetryPolicy(o.retries, o.delays),
		logger:   o.logger,
		feed:     feed,
		config:   make(map[string]config.Snapshot),
		pending:  make(map[chan error]struct{}),
		required: make(map[string]struct{}, len(requiredKeys)),
		name:     name,
		upstream: append([]string(nil), upstream...),
	}

	for _, key := range requiredKeys {
		c.required[key] = struct{}{}
	}

	coordinator, err := factory.CreateCoordinator(name, c.handle)
	if err != nil {
		cancel()

		return nil, err
	}

	c.coordinator = coordinator
	metrics.InitErrorCounter(metrics.ComponentComponent, name)

	return c, nil
}

// Name returns the component name, which is also its coordinator's name.
func (c *Component[T]) Name() string {
	return c.name
}

// Coordinator returns the coordinator of the component.
func (c *Component[T]) Coordinator() *lifecycle.Coordinator {
	return c.coordinator
}

// Status returns the coordinator status.
func (c *Component[T]) Status() lifecycle.Status {
	return c.coordinator.Status()
}

// State returns the activation state.
func (c *Component[T]) State() string {
	return c.machine.Current()
}

// Start starts the component.
func (c *Component[T]) Start() {
	c.coordinator.Start()
}

// Stop tears down the implementation. A stopped component can be started again,
// which also leaves ERROR.
func (c *Component[T]) Stop() {
	c.coordinator.Stop()
}

// Close stops the component for good. Pending Use calls fail with
// ErrNotActive.
func (c *Component[T]) Close() {
	c.cancel()
	c.coordinator.Close()
	c.failPending()
}

type useRequest[T Implementation] struct {
	lifecycle.CustomEvent
	fn   func(T) error
	done chan error
}

// Use runs fn with the active implementation on the component's processing
// goroutine and returns its error. It fails with ErrNotActive if the component
// is not UP or stops before fn runs.
func (c *Component[T]) Use(ctx context.Context, fn func(T) error) error {
	if err := ctxutil.RequireTime(ctx, minUseTime); err != nil {
		return err
	}

	req := useRequest[T]{fn: fn, done: make(chan error, 1)}

	// Registered before the state check: a stop either sees the request or
	// has already left the up state.
	c.pendingMu.Lock()
	c.pending[req.done] = struct{}{}
	c.pendingMu.Unlock()

	if c.State() != StateUp || c.coordinator.IsClosed() {
		c.forget(req.done)

		return ErrNotActive
	}

	c.coordinator.PostEvent(req)

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		c.forget(req.done)

		return ctx.Err()
	}
}

// answer delivers err unless the request was answered or abandoned already.
func (c *Component[T]) answer(done chan error, err error) {
	if c.forget(done) {
		done <- err
	}
}

func (c *Component[T]) forget(done chan error) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	_, ok := c.pending[done]
	delete(c.pending, done)

	return ok
}

func (c *Component[T]) failPending() {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[chan error]struct{})
	c.pendingMu.Unlock()

	for done := range pending {
		done <- ErrNotActive
	}
}
