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
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Activation states of a component.
const (
	// StateDown means there is no active implementation.
	StateDown = "down"
	// StateActivating means the implementation is being built or a retry
	// is pending.
	StateActivating = "activating"
	// StateUp means the implementation is live.
	StateUp = "up"
	// StateError means activation failed too often. Only a stop leaves it.
	StateError = "error"
)

const (
	EventActivate   = "activate"
	EventActivated  = "activated"
	EventFail       = "fail"
	EventDeactivate = "deactivate"
	EventReset      = "reset"
)

func newMachine(log *zap.SugaredLogger) *fsm.FSM {
	return fsm.NewFSM(
		StateDown,
		fsm.Events{
			{Name: EventActivate, Src: []string{StateDown}, Dst: StateActivating},
			{Name: EventActivated, Src: []string{StateActivating}, Dst: StateUp},
			{Name: EventFail, Src: []string{StateActivating}, Dst: StateError},
			{Name: EventDeactivate, Src: []string{StateActivating, StateUp}, Dst: StateDown},
			{Name: EventReset, Src: []string{StateError}, Dst: StateDown},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debugf("Component state %s -> %s (%s)", e.Src, e.Dst, e.Event)
			},
			"enter_" + StateError: func(_ context.Context, e *fsm.Event) {
				log.Warnf("Component entered %s from %s", e.Dst, e.Src)
			},
		},
	)
}
