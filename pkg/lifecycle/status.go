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

// Status is the externally visible state of a coordinator.
type Status int32

const (
	// StatusDown is the initial status and the status after a stop.
	StatusDown Status = iota
	// StatusUp means the owning component is running and usable.
	StatusUp
	// StatusError means the owning component gave up. Only a stop/start
	// cycle leaves this status.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDown:
		return "DOWN"
	case StatusUp:
		return "UP"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "DOWN":
		return StatusDown, true
	case "UP":
		return StatusUp, true
	case "ERROR":
		return StatusError, true
	default:
		return StatusDown, false
	}
}
