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

package component

import (
	"time"

	cbackoff "github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/corda/corda-runtime-os-sub044/pkg/backoff"
	"github.com/corda/corda-runtime-os-sub044/pkg/constants"
)

type options struct {
	delays  cbackoff.BackOff
	logger  *zap.SugaredLogger
	retries int
}

func defaultOptions() options {
	return options{retries: constants.DefaultActivationRetries}
}

// Option configures a component.
type Option func(*options)

// WithRetries sets how many times a failed activation is retried before the
// component goes to ERROR.
func WithRetries(n int) Option {
	return func(o *options) {
		o.retries = n
	}
}

// WithRetryBackoff waits between retries, starting at initial and growing
// exponentially up to maxInterval. Without it retries are immediate.
func WithRetryBackoff(initial, maxInterval time.Duration) Option {
	return func(o *options) {
		o.delays = backoff.NewExponentialDelays(initial, maxInterval)
	}
}

// WithBackOff uses b for the delays between retries.
func WithBackOff(b cbackoff.BackOff) Option {
	return func(o *options) {
		o.delays = b
	}
}

// WithLogger sets the logger of the component.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) {
		o.logger = log
	}
}
