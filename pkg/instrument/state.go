/*
 * Copyright 2024 by the tracewire authors
 * https://tracewire.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package instrument

import "github.com/qmuntal/stateless"

// Lifecycle states, spec.md §4.1 "State machine".
const (
	StateUninstalled = "uninstalled"
	StateEnabled     = "enabled"
	StateDisabling   = "disabling"
	StateFinalized   = "finalized"
)

const (
	triggerEnable   = "enable"
	triggerDisable  = "disable"
	triggerExhaust  = "exhaust"
	triggerFinalize = "finalize"
)

// stateMachineImpl wraps *stateless.StateMachine behind the narrow
// current()/fire() surface Instrumentor actually needs, keeping the
// qmuntal/stateless import confined to this file.
type stateMachineImpl struct {
	sm *stateless.StateMachine
}

// newStateMachineHolder builds the Uninstalled -> Enabled -> Disabling ->
// Finalized chain. From Finalized no transition is permitted for the
// life of the process, matching §4.1 and §9 ("Re-initialization inside
// the same process is disallowed").
func newStateMachineHolder() *stateMachineImpl {
	sm := stateless.NewStateMachine(StateUninstalled)

	sm.Configure(StateUninstalled).
		Permit(triggerEnable, StateEnabled)

	sm.Configure(StateEnabled).
		Permit(triggerDisable, StateDisabling).
		Permit(triggerExhaust, StateDisabling)

	sm.Configure(StateDisabling).
		Permit(triggerFinalize, StateFinalized)

	sm.Configure(StateFinalized)

	return &stateMachineImpl{sm: sm}
}

func (h *stateMachineImpl) current() string {
	str, _ := h.sm.MustState().(string)
	return str
}

func (h *stateMachineImpl) fire(trigger string) error {
	return h.sm.Fire(trigger)
}
