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
	"bytes"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/tiendc/go-deepcopy"
)

// Snapshot is an immutable copy of the configuration under one key.
type Snapshot struct {
	values map[string]any
	key    string
	// canonical is the JSON encoding of values, hash its fingerprint.
	canonical []byte
	hash      uint64
}

// NewSnapshot copies values and fingerprints them.
func NewSnapshot(key string, values map[string]any) (Snapshot, error) {
	copied := map[string]any{}
	if values != nil {
		if err := deepcopy.Copy(&copied, values); err != nil {
			return Snapshot{}, fmt.Errorf("copying configuration %q: %w", key, err)
		}
	}

	// Map keys are encoded in sorted order, so equal maps encode equally.
	canonical, err := json.Marshal(copied)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encoding configuration %q: %w", key, err)
	}

	return Snapshot{key: key, values: copied, canonical: canonical, hash: xxhash.Sum64(canonical)}, nil
}

// Key returns the configuration key.
func (s Snapshot) Key() string {
	return s.key
}

// Hash returns the fingerprint of the values.
func (s Snapshot) Hash() uint64 {
	return s.hash
}

// IsZero reports whether s is the zero Snapshot.
func (s Snapshot) IsZero() bool {
	return s.key == "" && s.values == nil
}

// Equal reports whether both snapshots hold the same key and values. The
// hash only rules out equality; matching hashes are confirmed on the encoding.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.key == other.key && s.hash == other.hash && bytes.Equal(s.canonical, other.canonical)
}

// Values returns a deep copy of the values.
func (s Snapshot) Values() map[string]any {
	out := map[string]any{}
	if s.values != nil {
		_ = deepcopy.Copy(&out, s.values)
	}

	return out
}

// Get looks up a dotted path, e.g. "database.pool.size".
func (s Snapshot) Get(path string) (any, bool) {
	var current any = s.values

	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// Decode unmarshals the values into out, which must be a pointer, using the
// json struct tags of out.
func (s Snapshot) Decode(out any) error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("encoding configuration %q: %w", s.key, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding configuration %q: %w", s.key, err)
	}

	return nil
}
