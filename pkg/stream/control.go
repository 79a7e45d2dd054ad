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

package stream

import "encoding/json"

// controlMessage is one subscriber-to-server line, per spec.md §4.4:
// {"type":"pause"|"resume"|"get_registry"|"finalize"}. Unrecognized
// types (including malformed JSON) are ignored, never disconnect the
// subscriber.
type controlMessage struct {
	Type string `json:"type"`
}

const (
	controlPause       = "pause"
	controlResume      = "resume"
	controlGetRegistry = "get_registry"
	controlFinalize    = "finalize"
)

// parseControl attempts to decode line as a controlMessage; ok is false
// for malformed input, which callers must treat as "ignore this line".
func parseControl(line []byte) (controlMessage, bool) {
	var cm controlMessage
	if err := json.Unmarshal(line, &cm); err != nil {
		return controlMessage{}, false
	}
	return cm, cm.Type != ""
}
