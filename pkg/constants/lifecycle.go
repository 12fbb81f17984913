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

package constants

import "time"

const (
	// DefaultBatchSize is the maximum number of events a coordinator processes
	// in one scheduling turn before yielding its worker back to the pool.
	DefaultBatchSize = 16

	// DefaultWorkerCount bounds how many coordinator batches run at once.
	DefaultWorkerCount = 8

	// DefaultActivationRetries is the number of activation retries a component
	// gets after its first failed attempt before it is set to ERROR.
	DefaultActivationRetries = 5

	// DefaultRetryInitial and DefaultRetryMax bound the activation retry
	// delays of the demo components.
	DefaultRetryInitial = 100 * time.Millisecond
	DefaultRetryMax     = 5 * time.Second

	// StatusLogInterval is how often the binary logs component statuses.
	StatusLogInterval = 30 * time.Second

	// StarvationThreshold is how long a scheduled batch may wait for a worker
	// before the starvation checker reports it.
	StarvationThreshold = 15 * time.Second

	// StarvationCheckInterval is how often the starvation checker samples.
	StarvationCheckInterval = time.Second

	// DefaultMetricsAddr is where /metrics is served by the binary.
	DefaultMetricsAddr = ":8081"

	// DefaultStatusAPIPort is the port of the coordinator status API.
	DefaultStatusAPIPort = 8082
)
