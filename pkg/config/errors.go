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
	"errors"
	"fmt"
)

var (
	// ErrBootstrapAlreadySet is returned by a second Bootstrap call.
	ErrBootstrapAlreadySet = errors.New("bootstrap configuration already set")

	// ErrDuplicateSubscription is returned when a name is subscribed twice.
	ErrDuplicateSubscription = errors.New("duplicate subscription")

	// ErrNoBootstrapConfig is returned when the read service is started
	// before Bootstrap.
	ErrNoBootstrapConfig = errors.New("no bootstrap configuration")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("nil change handler")
)

// UsageError reports an illegal call into the configuration layer.
type UsageError struct {
	Op  string
	Err error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Op, e.Err)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}
