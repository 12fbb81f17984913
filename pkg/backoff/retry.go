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

package backoff

import (
	"errors"
	"fmt"
	"time"

	cbackoff "github.com/cenkalti/backoff"
)

// ErrRetriesExhausted wraps the last error once a RetryPolicy gives up.
var ErrRetriesExhausted = errors.New("retry budget exhausted")

// RetryPolicy counts failed attempts of one operation against a budget of
// retries and hands out the delay before the next attempt.
//
// A budget of N allows N+1 attempts in total. The policy is not safe for
// concurrent use; a component only touches it from its processing goroutine.
type RetryPolicy struct {
	maxRetries int
	delays     cbackoff.BackOff
	failures   int
	lastErr    error
	exhausted  bool
}

// NewRetryPolicy creates a policy allowing maxRetries retries after the first
// attempt. delays may be nil, in which case every retry happens immediately.
func NewRetryPolicy(maxRetries int, delays cbackoff.BackOff) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}

	if delays == nil {
		delays = &cbackoff.ZeroBackOff{}
	}

	return &RetryPolicy{maxRetries: maxRetries, delays: delays}
}

// NewExponentialDelays returns a cenkalti exponential backoff that never
// stops on elapsed time, so only the retry budget ends the retries.
func NewExponentialDelays(initial, maxInterval time.Duration) cbackoff.BackOff {
	b := cbackoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}

// RecordFailure registers a failed attempt. It returns whether another
// attempt should be made and how long to wait before it.
//
// Ignored errors do not count against the budget. Permanent errors exhaust
// the policy immediately.
func (p *RetryPolicy) RecordFailure(err error) (retry bool, delay time.Duration) {
	if p.exhausted {
		return false, 0
	}

	if IsIgnoredError(err) {
		return true, 0
	}

	p.failures++
	p.lastErr = err

	if IsPermanentError(err) || p.failures > p.maxRetries {
		p.exhausted = true

		return false, 0
	}

	next := p.delays.NextBackOff()
	if next == cbackoff.Stop {
		p.exhausted = true

		return false, 0
	}

	return true, next
}

// Reset clears the failure count after a successful attempt.
func (p *RetryPolicy) Reset() {
	p.failures = 0
	p.lastErr = nil
	p.exhausted = false
	p.delays.Reset()
}

// Failures returns the number of failures counted since the last Reset.
func (p *RetryPolicy) Failures() int {
	return p.failures
}

// Exhausted reports whether the policy has given up.
func (p *RetryPolicy) Exhausted() bool {
	return p.exhausted
}

// LastError returns the most recent counted failure.
func (p *RetryPolicy) LastError() error {
	return p.lastErr
}

// Err returns ErrRetriesExhausted wrapping the last failure, or nil while retries remain.
func (p *RetryPolicy) Err() error {
	if !p.exhausted {
		return nil
	}

	return fmt.Errorf("%w after %d failed attempts: %w", ErrRetriesExhausted, p.failures, p.lastErr)
}
