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
)

// Directory resolves coordinator names.
type Directory interface {
	Get(name string) (*Coordinator, bool)
}

// Registry is the Directory of all coordinators created by one factory.
type Registry struct {
	coordinators map[string]*Coordinator
	mu           sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{coordinators: make(map[string]*Coordinator)}
}

// Get returns the open coordinator registered under name.
func (r *Registry) Get(name string) (*Coordinator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.coordinators[name]

	return c, ok
}

// List returns all open coordinators sorted by name.
func (r *Registry) List() []*Coordinator {
	r.mu.RLock()
	list := make([]*Coordinator, 0, len(r.coordinators))
	for _, c := range r.coordinators {
		list = append(list, c)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })

	return list
}

// GetDebugInfo lists every coordinator for the debug endpoint.
func (r *Registry) GetDebugInfo() interface{} {
	coordinators := r.List()

	infos := make([]CoordinatorInfo, 0, len(coordinators))
	for _, c := range coordinators {
		infos = append(infos, c.Info())
	}

	return infos
}

func (r *Registry) add(c *Coordinator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.coordinators[c.name]; ok {
		return &UsageError{Op: "create coordinator", Name: c.name, Err: ErrCoordinatorExists}
	}

	r.coordinators[c.name] = c

	return nil
}

func (r *Registry) remove(c *Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.coordinators[c.name] == c {
		delete(r.coordinators, c.name)
	}
}
