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
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corda/corda-runtime-os-sub044/pkg/constants"
	"github.com/corda/corda-runtime-os-sub044/pkg/logger"
	"github.com/corda/corda-runtime-os-sub044/pkg/metrics"
)

// CoordinatorFactory creates coordinators sharing one registry, executor and
// timer scheduler.
type CoordinatorFactory struct {
	registry  *Registry
	executor  Executor
	timers    TimerScheduler
	logger    *zap.SugaredLogger
	batchSize int
}

// NewCoordinatorFactory returns a factory. A nil timers uses
// NewTimerScheduler and a nil logger uses the Coordinator component logger.
func NewCoordinatorFactory(registry *Registry, executor Executor, timers TimerScheduler, log *zap.SugaredLogger) *CoordinatorFactory {
	if timers == nil {
		timers = NewTimerScheduler()
	}

	if log == nil {
		log = logger.For(logger.ComponentCoordinator)
	}

	return &CoordinatorFactory{
		registry:  registry,
		executor:  executor,
		timers:    timers,
		logger:    log,
		batchSize: constants.DefaultBatchSize,
	}
}

// WithBatchSize sets how many events one batch processes at most.
func (f *CoordinatorFactory) WithBatchSize(n int) *CoordinatorFactory {
	if n > 0 {
		f.batchSize = n
	}

	return f
}

// Registry returns the registry new coordinators are added to.
func (f *CoordinatorFactory) Registry() *Registry {
	return f.registry
}

// CreateCoordinator creates a stopped coordinator named name, delivering its
// events to handler. Names are unique among open coordinators.
func (f *CoordinatorFactory) CreateCoordinator(name string, handler Handler) (*Coordinator, error) {
	if name == "" || handler == nil {
		return nil, &UsageError{Op: "create coordinator", Name: name, Err: ErrInvalidArgument}
	}

	c := &Coordinator{
		id:            uuid.New(),
		name:          name,
		state:         NewStateManager(),
		executor:      f.executor,
		timers:        f.timers,
		directory:     f.registry,
		logger:        f.logger.Named(name),
		statusChanged: make(chan struct{}),
		onClose:       f.registry.remove,
	}
	c.registrations = NewRegistrationManager(c, c.logger)
	c.processor = NewProcessor(c.state, c.registrations, handler, f.batchSize, c.logger)

	if err := f.registry.add(c); err != nil {
		return nil, err
	}

	metrics.UpdateCoordinatorStatus(name, StatusDown.String())
	metrics.InitErrorCounter(metrics.ComponentCoordinator, name)
	c.logger.Debugw("Coordinator created", "id", c.id.String())

	return c, nil
}
