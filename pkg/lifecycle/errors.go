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
	"errors"
	"fmt"
)

var (
	// ErrCoordinatorExists is returned when a name is already taken.
	ErrCoordinatorExists = errors.New("coordinator already exists")

	// ErrCoordinatorNotFound is returned when a followed name is unknown.
	ErrCoordinatorNotFound = errors.New("coordinator not found")

	// ErrCoordinatorClosed is returned when a closed coordinator is used.
	ErrCoordinatorClosed = errors.New("coordinator is closed")

	// ErrInvalidArgument is returned for an empty name or a nil handler.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrHandlerPanic wraps a value recovered from a panicking handler.
	ErrHandlerPanic = errors.New("event handler panicked")
)

// UsageError reports an illegal call into the framework. It is always
// returned synchronously to the caller.
type UsageError struct {
	Op   string
	Name string
	Err  error
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Name, e.Err)
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// IsUsageError reports whether err is or wraps a *UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError

	return errors.As(err, &ue)
}
