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

// Package errs defines the sentinel errors the engine returns to callers
// of its public API. Internal, per-frame failures are never surfaced this
// way — they are swallowed and counted (see pkg/instrument/safe.go).
package errs

import "github.com/pkg/errors"

var (
	// ErrAlreadyEnabled is returned by Enable when the engine is already
	// in the Enabled state.
	ErrAlreadyEnabled = errors.New("instrumentor already enabled")
	// ErrNotEnabled is returned by operations that require an enabled
	// engine while it is still Uninstalled; a Finalized engine returns
	// ErrFinalized instead.
	ErrNotEnabled = errors.New("instrumentor not enabled")
	// ErrFinalized is returned by any operation attempted after the
	// session has been finalized.
	ErrFinalized = errors.New("session already finalized")
	// ErrBudgetExceeded is the sentinel for a reached hard resource cap
	// (max calls, max depth). The Instrumentor does not return it: budget
	// exhaustion moves the engine to Disabling without surfacing an error.
	ErrBudgetExceeded = errors.New("resource budget exceeded")
)

// IsBudgetExceeded reports whether err (or one of its wrapped causes) is
// ErrBudgetExceeded.
func IsBudgetExceeded(err error) bool {
	return errors.Is(err, ErrBudgetExceeded)
}

// IsAlreadyEnabled reports whether err (or one of its wrapped causes) is
// ErrAlreadyEnabled.
func IsAlreadyEnabled(err error) bool {
	return errors.Is(err, ErrAlreadyEnabled)
}
