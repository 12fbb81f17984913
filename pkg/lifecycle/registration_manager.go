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
	"sync"

	"go.uber.org/zap"

	"github.com/corda/corda-runtime-os-sub044/pkg/metrics"
)

// RegistrationManager keeps the registration side of one coordinator: the
// registrations it owns as a downstream and the dependents following it.
// It routes status changes between the two.
type RegistrationManager struct {
	owner      *Coordinator
	owned      map[*Registration]struct{}
	dependents *DependentCoordinatorMap
	logger     *zap.SugaredLogger
	mu         sync.Mutex
}

// NewRegistrationManager returns the manager for owner.
func NewRegistrationManager(owner *Coordinator, log *zap.SugaredLogger) *RegistrationManager {
	return &RegistrationManager{
		owner:      owner,
		owned:      make(map[*Registration]struct{}),
		dependents: NewDependentCoordinatorMap(),
		logger:     log,
	}
}

// RegisterRegistration takes ownership of r, so it is closed with the owner.
func (m *RegistrationManager) RegisterRegistration(r *Registration) {
	if r.IsClosed() {
		return
	}

	m.mu.Lock()
	m.owned[r] = struct{}{}
	m.mu.Unlock()
}

// UnregisterRegistration releases r.
func (m *RegistrationManager) UnregisterRegistration(r *Registration) {
	m.mu.Lock()
	delete(m.owned, r)
	m.mu.Unlock()
}

// RegisterDependent adds r to the dependents and tells its downstream the
// current status of the owner.
func (m *RegistrationManager) RegisterDependent(r *Registration) {
	if r.IsClosed() {
		return
	}

	m.dependents.Add(r)
	r.downstream.enqueue(DependentStatusUpdateEvent{
		Registration: r,
		Coordinator:  m.owner,
		Status:       m.owner.Status(),
	})
}

// UnregisterDependent drops one reference to r.
func (m *RegistrationManager) UnregisterDependent(r *Registration) {
	m.dependents.Remove(r)
}

// NotifyDependents posts status to the downstream of every dependent.
func (m *RegistrationManager) NotifyDependents(status Status) {
	for _, r := range m.dependents.Registrations() {
		if r.IsClosed() {
			continue
		}

		r.downstream.enqueue(DependentStatusUpdateEvent{
			Registration: r,
			Coordinator:  m.owner,
			Status:       status,
		})
	}
}

// UpdateUpstream applies the status of one upstream to r, which the owner
// follows, and posts the new aggregate to the owner if it flipped.
func (m *RegistrationManager) UpdateUpstream(r *Registration, upstream *Coordinator, status Status) {
	changed, aggregate := r.updateUpstream(upstream, status)
	if !changed {
		return
	}

	m.logger.Debugw("Registration status changed",
		"registration", r.ID().String(),
		"upstream", upstream.Name(),
		"status", aggregate.String())
	metrics.RecordRegistrationChange(m.owner.Name(), aggregate.String())

	m.owner.enqueue(RegistrationStatusChangeEvent{Registration: r, Status: aggregate})
}

// CloseAll closes every owned registration and forgets all dependents.
func (m *RegistrationManager) CloseAll() {
	m.mu.Lock()
	owned := make([]*Registration, 0, len(m.owned))
	for r := range m.owned {
		owned = append(owned, r)
	}
	clear(m.owned)
	m.mu.Unlock()

	for _, r := range owned {
		_ = r.Close()
	}

	m.dependents.Clear()
}

// Owned returns the number of registrations owned.
func (m *RegistrationManager) Owned() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.owned)
}

// Dependents returns the dependent map of the owner.
func (m *RegistrationManager) Dependents() *DependentCoordinatorMap {
	return m.dependents
}
