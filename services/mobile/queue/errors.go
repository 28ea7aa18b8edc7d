// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package queue

import "errors"

var (
	// ErrUploadFailed indicates a transient upload failure. The entry
	// stays in the queue as failed and is retried on the next flush;
	// it is never discarded automatically.
	ErrUploadFailed = errors.New("upload failed")

	// ErrEntryNotFound indicates the referenced queue entry does not
	// exist (already uploaded, discarded, or never enqueued).
	ErrEntryNotFound = errors.New("queue entry not found")

	// ErrQueueClosed indicates an operation after Close.
	ErrQueueClosed = errors.New("queue is closed")
)
