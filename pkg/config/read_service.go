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

package config

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/corda/corda-runtime-os-sub044/pkg/lifecycle"
	"github.com/corda/corda-runtime-os-sub044/pkg/logger"
	"github.com/corda/corda-runtime-os-sub044/pkg/metrics"
)

// ReadServiceName is the coordinator name of the read service. Components
// that need configuration follow it.
const ReadServiceName = "config.read.service"

// BootstrapKey is the key under which the bootstrap configuration is published.
const BootstrapKey = "boot"

type sourceChanged struct {
	lifecycle.CustomEvent
	changed []string
	current map[string]Snapshot
}

type subscribeRequest struct {
	lifecycle.CustomEvent
	id uint64
}

// ReadService is the single entry point for configuration inside a process.
// It is bootstrapped once, then reads its source feed while running and fans
// out every change to its subscribers. It is UP while running.
//
// ReadService is itself a Feed. Handlers are called from the service's
// processing goroutine: with the whole configuration on subscription while
// running and on every start, and with each change in between.
type ReadService struct {
	coordinator *lifecycle.Coordinator
	source      Feed
	logger      *zap.SugaredLogger

	mu          sync.Mutex
	bootstrap   *Snapshot
	names       map[string]uint64
	subscribers map[uint64]ChangeHandler
	nextID      uint64

	// Owned by the processing goroutine.
	current   map[string]Snapshot
	sourceSub io.Closer
}

// NewReadService creates the read service and its coordinator.
func NewReadService(factory *lifecycle.CoordinatorFactory, source Feed, log *zap.SugaredLogger) (*ReadService, error) {
	if log == nil {
		log = logger.For(logger.ComponentConfigReadService)
	}

	s := &ReadService{
		source:      source,
		logger:      log,
		names:       make(map[string]uint64),
		current:     make(map[string]Snapshot),
		subscribers: make(map[uint64]ChangeHandler),
	}

	coordinator, err := factory.CreateCoordinator(ReadServiceName, s.handle)
	if err != nil {
		return nil, err
	}

	s.coordinator = coordinator
	metrics.InitErrorCounter(metrics.ComponentConfigReadService, ReadServiceName)

	return s, nil
}

// Coordinator returns the coordinator of the service.
func (s *ReadService) Coordinator() *lifecycle.Coordinator {
	return s.coordinator
}

// Bootstrap sets the bootstrap configuration. It may be called once.
func (s *ReadService) Bootstrap(values map[string]any) error {
	snapshot, err := NewSnapshot(BootstrapKey, values)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.bootstrap != nil {
		s.mu.Unlock()

		return &UsageError{Op: "bootstrap", Err: ErrBootstrapAlreadySet}
	}

	s.bootstrap = &snapshot
	s.mu.Unlock()

	return nil
}

// Start starts the service. It fails if Bootstrap was not called.
func (s *ReadService) Start() error {
	s.mu.Lock()
	ok := s.bootstrap != nil
	s.mu.Unlock()

	if !ok {
		return &UsageError{Op: "start", Err: ErrNoBootstrapConfig}
	}

	s.coordinator.Start()

	return nil
}

// Stop stops reading the source. Subscriptions survive a stop.
func (s *ReadService) Stop() {
	s.coordinator.Stop()
}

// Close stops the service for good.
func (s *ReadService) Close() {
	s.coordinator.Close()
}

// Subscribe implements Feed with an anonymous subscription.
func (s *ReadService) Subscribe(handler ChangeHandler) (io.Closer, error) {
	return s.subscribe("", handler)
}

// SubscribeAs subscribes under name. A name can only be subscribed once at a
// time.
func (s *ReadService) SubscribeAs(name string, handler ChangeHandler) (io.Closer, error) {
	return s.subscribe(name, handler)
}

// Named returns a Feed subscribing under name.
func (s *ReadService) Named(name string) Feed {
	return namedFeed{service: s, name: name}
}

type namedFeed struct {
	service *ReadService
	name    string
}

func (f namedFeed) Subscribe(handler ChangeHandler) (io.Closer, error) {
	return f.service.SubscribeAs(f.name, handler)
}

func (s *ReadService) subscribe(name string, handler ChangeHandler) (io.Closer, error) {
	if handler == nil {
		return nil, &UsageError{Op: "subscribe", Err: ErrNilHandler}
	}

	s.mu.Lock()
	if name != "" {
		if _, ok := s.names[name]; ok {
			s.mu.Unlock()

			return nil, &UsageError{Op: "subscribe", Err: fmt.Errorf("%w: %s", ErrDuplicateSubscription, name)}
		}
	}

	s.nextID++
	id := s.nextID

	if name != "" {
		s.names[name] = id
	}

	s.subscribers[id] = handler
	s.mu.Unlock()

	// Delivers the current configuration if the service is running. Otherwise
	// the next start does.
	s.coordinator.PostEvent(subscribeRequest{id: id})

	return &subscription{cancel: func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if name != "" && s.names[name] == id {
			delete(s.names, name)
		}

		delete(s.subscribers, id)
	}}, nil
}

func (s *ReadService) handle(event lifecycle.Event, c *lifecycle.Coordinator) error {
	switch e := event.(type) {
	case lifecycle.StartEvent:
		s.publishBootstrap()
		s.resync()

		sub, err := s.source.Subscribe(func(changed []string, current map[string]Snapshot) {
			c.PostEvent(sourceChanged{changed: changed, current: current})
		})
		if err != nil {
			c.UpdateStatus(lifecycle.StatusError, "cannot subscribe to the configuration source")

			return fmt.Errorf("subscribing to configuration source: %w", err)
		}

		s.sourceSub = sub
		c.UpdateStatus(lifecycle.StatusUp, "reading configuration")

	case lifecycle.StopEvent:
		s.closeSource()

	case sourceChanged:
		s.applySource(e.changed, e.current)

	case subscribeRequest:
		s.mu.Lock()
		handler, ok := s.subscribers[e.id]
		s.mu.Unlock()

		if ok && len(s.current) > 0 {
			handler(sortedKeys(s.current), maps.Clone(s.current))
		}

	case *lifecycle.ErrorEvent:
		s.logger.Errorw("Configuration read service failed", "error", e.Cause)
		metrics.IncErrorCount(metrics.ComponentConfigReadService, ReadServiceName)
		e.MarkHandled()
	}

	return nil
}

func (s *ReadService) publishBootstrap() {
	s.mu.Lock()
	boot := s.bootstrap
	s.mu.Unlock()

	if boot == nil {
		return
	}

	if old, ok := s.current[BootstrapKey]; ok && old.Equal(*boot) {
		return
	}

	s.current[BootstrapKey] = *boot
}

// resync hands the whole configuration to every subscriber.
func (s *ReadService) resync() {
	if len(s.current) > 0 {
		s.publish(sortedKeys(s.current))
	}
}

func (s *ReadService) applySource(changed []string, current map[string]Snapshot) {
	var delta []string

	for _, key := range changed {
		if key == BootstrapKey {
			s.logger.Warnw("Ignoring source configuration under the bootstrap key")

			continue
		}

		next, ok := current[key]
		old, had := s.current[key]

		switch {
		case ok && had && old.Equal(next):
			continue
		case ok:
			s.current[key] = next
		case had:
			delete(s.current, key)
		default:
			continue
		}

		delta = append(delta, key)
	}

	if len(delta) > 0 {
		slices.Sort(delta)
		s.publish(delta)
	}
}

func (s *ReadService) publish(changed []string) {
	s.mu.Lock()
	handlers := slices.Collect(maps.Values(s.subscribers))
	s.mu.Unlock()

	s.logger.Debugw("Publishing configuration change", "keys", changed, "subscribers", len(handlers))

	for _, handler := range handlers {
		handler(slices.Clone(changed), maps.Clone(s.current))
	}
}

func (s *ReadService) closeSource() {
	if s.sourceSub == nil {
		return
	}

	if err := s.sourceSub.Close(); err != nil {
		s.logger.Warnw("Failed to close configuration source subscription", "error", err)
	}

	s.sourceSub = nil
}
