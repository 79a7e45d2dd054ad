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

package trace

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// wireSchema captures the minimal wire contract from spec.md §3: a
// `type` discriminator plus well-known optional fields. It exists so
// round-trip tests can assert new fields are added additively
// (`additionalProperties` stays true — unknown fields must be ignored by
// consumers, never rejected).
const wireSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "timestamp", "session_id", "process_id", "language"],
  "properties": {
    "type": {"enum": ["call", "return", "exception", "function_registry"]},
    "timestamp": {"type": "number"},
    "session_id": {"type": "string"},
    "process_id": {"type": "integer"},
    "language": {"type": "string"}
  },
  "additionalProperties": true
}`

var schemaLoader = gojsonschema.NewStringLoader(wireSchema)

// ValidateWire checks raw (one marshaled Event line) against the wire
// schema contract. It is used by tests, not by the hot emission path,
// since schema validation is not something the wait-free fast path can
// afford.
func ValidateWire(raw []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return err
	}
	if !result.Valid() {
		return fmt.Errorf("invalid trace event: %v", result.Errors())
	}
	return nil
}
