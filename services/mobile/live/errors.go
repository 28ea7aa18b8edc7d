// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package live

import "errors"

var (
	// ErrReconnectExhausted indicates the bounded reconnect backoff gave
	// up. Surfaced to the caller as terminal; the client never retries
	// forever silently.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// ErrClientClosed indicates an operation after Close.
	ErrClientClosed = errors.New("live client is closed")

	// ErrUnknownGroup indicates a product group the client was not
	// configured to subscribe to.
	ErrUnknownGroup = errors.New("unknown product group")

	// ErrNotConnected indicates a send attempted while the transport is
	// down (between reconnect attempts).
	ErrNotConnected = errors.New("not connected")
)
