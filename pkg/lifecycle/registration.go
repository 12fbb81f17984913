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
	"sync/atomic"

	"github.com/google/uuid"
)

// Registration binds one downstream coordinator to a fixed set of upstream
// coordinators and aggregates their statuses: UP iff every upstream is UP.
//
// The aggregate is edge-triggered. Each flip is posted to the downstream as a
// RegistrationStatusChangeEvent; the same value is never posted twice in a
// row. All updates happen on the goroutine processing the downstream.
type Registration struct {
	statuses   map[*Coordinator]Status
	downstream *Coordinator
	upstreams  []*Coordinator
	id         uuid.UUID
	mu         sync.Mutex
	aggregate  Status
	closed     atomic.Bool
}

func newRegistration(downstream *Coordinator, upstreams []*Coordinator) *Registration {
	r := &Registration{
		id:         uuid.New(),
		downstream: downstream,
		upstreams:  upstreams,
		statuses:   make(map[*Coordinator]Status, len(upstreams)),
		aggregate:  StatusDown,
	}

	for _, up := range upstreams {
		r.statuses[up] = up.Status()
	}

	return r
}

// follow resolves names through dir and registers downstream as a follower
// of each of them. No call is made into an upstream; everything is posted.
func follow(downstream *Coordinator, names []string, dir Directory) (*Registration, error) {
	names = uniqueSorted(names)

	upstreams := make([]*Coordinator, 0, len(names))
	for _, name := range names {
		up, ok := dir.Get(name)
		if !ok {
			return nil, &UsageError{Op: "follow", Name: name, Err: ErrCoordinatorNotFound}
		}

		upstreams = append(upstreams, up)
	}

	r := newRegistration(downstream, upstreams)

	downstream.enqueue(NewRegistrationEvent{Registration: r})

	r.mu.Lock()
	if r.computeLocked() == StatusUp {
		r.aggregate = StatusUp
		downstream.enqueue(RegistrationStatusChangeEvent{Registration: r, Status: StatusUp})
	}
	r.mu.Unlock()

	for _, up := range upstreams {
		up.enqueue(NewDependentEvent{Registration: r})
	}

	return r, nil
}

// updateUpstream records the status of one upstream. It reports whether the
// aggregate flipped, and the new aggregate.
func (r *Registration) updateUpstream(up *Coordinator, status Status) (bool, Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.statuses[up]; !ok || r.closed.Load() {
		return false, r.aggregate
	}

	r.statuses[up] = status

	next := r.computeLocked()
	if next == r.aggregate {
		return false, next
	}

	r.aggregate = next

	return true, next
}

func (r *Registration) computeLocked() Status {
	for _, s := range r.statuses {
		if s != StatusUp {
			return StatusDown
		}
	}

	return StatusUp
}

// Close ends the registration. Only the first call has an effect; Close
// always returns nil.
func (r *Registration) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	for _, up := range r.upstreams {
		up.enqueue(CancelRegistrationEvent{Registration: r})
	}

	r.downstream.enqueue(CancelRegistrationEvent{Registration: r})

	return nil
}

// IsClosed reports whether Close was called.
func (r *Registration) IsClosed() bool {
	return r.closed.Load()
}

// ID returns the instance id of the registration.
func (r *Registration) ID() uuid.UUID {
	return r.id
}

// Downstream returns the following coordinator.
func (r *Registration) Downstream() *Coordinator {
	return r.downstream
}

// Upstreams returns the names of the followed coordinators, sorted.
func (r *Registration) Upstreams() []string {
	names := make([]string, len(r.upstreams))
	for i, up := range r.upstreams {
		names[i] = up.Name()
	}

	return names
}

// Status returns the last aggregate emitted.
func (r *Registration) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.aggregate
}

// UpstreamStatuses returns the last known status of each upstream by name.
func (r *Registration) UpstreamStatuses() map[string]Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Status, len(r.statuses))
	for up, s := range r.statuses {
		out[up.Name()] = s
	}

	return out
}

func (r *Registration) hasUpstream(c *Coordinator) bool {
	for _, up := range r.upstreams {
		if up == c {
			return true
		}
	}

	return false
}

func uniqueSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))

	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}

		seen[n] = struct{}{}
		out = append(out, n)
	}

	sort.Strings(out)

	return out
}
