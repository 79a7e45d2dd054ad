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

import (
	"expvar"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// panicsRecovered counts how many times the frame callback would have
// crashed its host had it not been wrapped, per spec.md §9 ("a bug in the
// Instrumentor must never crash the host process"). Grounded on the
// teacher's pkg/handle timeout/recover discipline around driver
// callbacks, generalized from a Windows HANDLE wait to an arbitrary
// frame-processing closure.
var panicsRecovered = expvar.NewInt("instrument.panics.recovered")

// safeCall runs fn, converting any panic into an error instead of letting
// it unwind into the host's call stack. It is the only place in the
// package a panic is permitted to cross a goroutine boundary without
// propagating.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			panicsRecovered.Add(1)
			log.WithField("recovered", r).Error("instrument: recovered from panic in frame callback")
			err = fmt.Errorf("instrument: recovered panic: %v", r)
		}
	}()
	return fn()
}
