// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package descriptor

import "errors"

var (
	// ErrMalformedDescriptor is returned when decoding fails structurally:
	// a declared count does not match the bytes remaining, or an index
	// reference is out of range for the declared variable count.
	//
	// A malformed descriptor is fatal to that decode; the caller must
	// refetch the model rather than retry the same bytes.
	ErrMalformedDescriptor = errors.New("malformed descriptor")

	// ErrInvalidTopology is returned by Encode when the input descriptor
	// violates its own invariants (out-of-range index, unknown tag).
	ErrInvalidTopology = errors.New("invalid topology")
)
