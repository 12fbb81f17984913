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
	"io"
	"maps"
	"slices"
	"sync"
)

// ChangeHandler receives the keys that changed and the configuration of all
// keys after the change. A key missing from current was removed.
type ChangeHandler func(changedKeys []string, current map[string]Snapshot)

// Feed delivers configuration changes. A subscriber first gets the current
// configuration, if there is any, then every change until the returned
// Closer is closed. MemoryFeed delivers the first call before Subscribe
// returns; ReadService delivers it from its processing goroutine.
type Feed interface {
	Subscribe(handler ChangeHandler) (io.Closer, error)
}

type subscription struct {
	cancel func()
	once   sync.Once
}

func (s *subscription) Close() error {
	s.once.Do(s.cancel)

	return nil
}

// MemoryFeed is a Feed whose configuration is set programmatically.
// Handlers are called synchronously, one change at a time, and must not call
// back into the feed.
type MemoryFeed struct {
	current  map[string]Snapshot
	handlers map[uint64]ChangeHandler
	// deliverMu keeps changes and their delivery in the same order.
	deliverMu sync.Mutex
	mu        sync.Mutex
	nextID    uint64
}

// NewMemoryFeed returns an empty feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		current:  make(map[string]Snapshot),
		handlers: make(map[uint64]ChangeHandler),
	}
}

// Subscribe implements Feed.
func (f *MemoryFeed) Subscribe(handler ChangeHandler) (io.Closer, error) {
	if handler == nil {
		return nil, &UsageError{Op: "subscribe", Err: ErrNilHandler}
	}

	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.handlers[id] = handler
	current := maps.Clone(f.current)
	f.mu.Unlock()

	if len(current) > 0 {
		handler(sortedKeys(current), current)
	}

	return &subscription{cancel: func() {
		f.mu.Lock()
		delete(f.handlers, id)
		f.mu.Unlock()
	}}, nil
}

// Set replaces the configuration under key. Setting identical values again
// is not a change.
func (f *MemoryFeed) Set(key string, values map[string]any) error {
	return f.Update(map[string]map[string]any{key: values}, nil)
}

// Delete removes key.
func (f *MemoryFeed) Delete(key string) error {
	return f.Update(nil, []string{key})
}

// Replace makes all the configuration of the feed, removing keys not in all.
func (f *MemoryFeed) Replace(all map[string]map[string]any) error {
	f.mu.Lock()
	var removed []string
	for key := range f.current {
		if _, ok := all[key]; !ok {
			removed = append(removed, key)
		}
	}
	f.mu.Unlock()

	return f.Update(all, removed)
}

// Update sets and removes several keys as one change.
func (f *MemoryFeed) Update(set map[string]map[string]any, removed []string) error {
	snapshots := make(map[string]Snapshot, len(set))
	for key, values := range set {
		s, err := NewSnapshot(key, values)
		if err != nil {
			return err
		}

		snapshots[key] = s
	}

	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	f.mu.Lock()
	var changed []string
	for key, s := range snapshots {
		if old, ok := f.current[key]; ok && old.Equal(s) {
			continue
		}

		f.current[key] = s
		changed = append(changed, key)
	}

	for _, key := range removed {
		if _, ok := f.current[key]; ok {
			delete(f.current, key)
			changed = append(changed, key)
		}
	}

	current := maps.Clone(f.current)
	handlers := slices.Collect(maps.Values(f.handlers))
	f.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}

	slices.Sort(changed)

	for _, h := range handlers {
		h(slices.Clone(changed), maps.Clone(current))
	}

	return nil
}

// Current returns the configuration of all keys.
func (f *MemoryFeed) Current() map[string]Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	return maps.Clone(f.current)
}

func sortedKeys(m map[string]Snapshot) []string {
	return slices.Sorted(maps.Keys(m))
}
