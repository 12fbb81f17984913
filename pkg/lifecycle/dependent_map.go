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

import "sync"

// DependentCoordinatorMap is the ref-counted set of registrations that follow
// one coordinator.
type DependentCoordinatorMap struct {
	counts map[*Registration]int
	mu     sync.RWMutex
}

// NewDependentCoordinatorMap returns an empty map.
func NewDependentCoordinatorMap() *DependentCoordinatorMap {
	return &DependentCoordinatorMap{counts: make(map[*Registration]int)}
}

// Add increments the count of r.
func (m *DependentCoordinatorMap) Add(r *Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts[r]++
}

// Remove decrements the count of r and forgets r at zero.
func (m *DependentCoordinatorMap) Remove(r *Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.counts[r]
	if !ok {
		return
	}

	if n <= 1 {
		delete(m.counts, r)

		return
	}

	m.counts[r] = n - 1
}

// Count returns the current count of r.
func (m *DependentCoordinatorMap) Count(r *Registration) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.counts[r]
}

// Len returns the number of distinct registrations.
func (m *DependentCoordinatorMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.counts)
}

// Registrations returns a snapshot of the registrations in the map.
func (m *DependentCoordinatorMap) Registrations() []*Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	regs := make([]*Registration, 0, len(m.counts))
	for r := range m.counts {
		regs = append(regs, r)
	}

	return regs
}

// Clear empties the map.
func (m *DependentCoordinatorMap) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.counts)
}
