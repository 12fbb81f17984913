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

package ctxutil

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInsufficientTime indicates not enough time remains before the deadline.
var ErrInsufficientTime = errors.New("insufficient time remaining before deadline")

// RequireTime fails with ErrInsufficientTime if ctx has a deadline closer
// than required. A context without deadline always has enough time.
func RequireTime(ctx context.Context, required time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}

	if remaining := time.Until(deadline); remaining < required {
		return fmt.Errorf("%w: %s left, %s required", ErrInsufficientTime, remaining, required)
	}

	return nil
}

// Await blocks until done is closed or ctx is done, whichever comes first.
// A closed done channel wins over an already cancelled context.
func Await(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	default:
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
