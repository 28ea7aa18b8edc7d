// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import "errors"

var (
	// ErrVariableCountMismatch is returned when the variables (or center)
	// slice length does not equal the descriptor's declared variable
	// count. The precondition is checked before any native call is made;
	// the caller can fix the input and retry.
	ErrVariableCountMismatch = errors.New("variable count mismatch")

	// ErrInvalidScenarioCount is returned when a Monte Carlo call requests
	// a non-positive number of scenarios. Checked before any native call.
	ErrInvalidScenarioCount = errors.New("invalid scenario count")

	// ErrNativeCallFailed is returned when the engine capability itself
	// reported an internal error or panicked. The failure is opaque to
	// the bridge; the solve is considered not performed. Infeasible and
	// unbounded models are NOT this error — they are valid result states.
	ErrNativeCallFailed = errors.New("native call failed")

	// ErrBridgeClosed is returned when work is submitted after Close.
	ErrBridgeClosed = errors.New("bridge is closed")
)
