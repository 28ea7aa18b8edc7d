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

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianMobile/services/solver/bridge"
)

// SyncState is the upload lifecycle state of a queued save.
type SyncState string

const (
	// StatePending means the entry is durable locally and awaiting upload.
	StatePending SyncState = "pending"

	// StateInFlight means an upload attempt is currently running. An
	// in_flight entry found after restart is treated as pending: the
	// idempotency key makes a server-side replay of the same entry a no-op.
	StateInFlight SyncState = "in_flight"

	// StateAcked means the server acknowledged receipt. Acked entries are
	// deleted immediately; the state exists for the transition vocabulary.
	StateAcked SyncState = "acked"

	// StateFailed means the last upload attempt failed. Failed entries are
	// retried on the next flush or discarded explicitly by the caller.
	StateFailed SyncState = "failed"
)

// SavePayload is the content of a queued save: the originating descriptor
// reference plus exactly one of the two result kinds.
type SavePayload struct {
	// DescriptorHash identifies the model topology the result was solved
	// against (hex SHA-256 of the encoded descriptor).
	DescriptorHash string `json:"descriptor_hash"`

	// Variables is the variable vector the solve ran with.
	Variables []float64 `json:"variables,omitempty"`

	Solve      *bridge.SolveResult      `json:"solve,omitempty"`
	MonteCarlo *bridge.MonteCarloResult `json:"monte_carlo,omitempty"`
}

// Validate checks the payload carries a descriptor reference and exactly one
// result.
func (p *SavePayload) Validate() error {
	if p.DescriptorHash == "" {
		return fmt.Errorf("descriptor hash is required")
	}
	if (p.Solve == nil) == (p.MonteCarlo == nil) {
		return fmt.Errorf("payload must carry exactly one of solve and monte_carlo")
	}
	return nil
}

// idempotencyKey derives the upload deduplication key from descriptor
// identity and result content. Creation time is deliberately excluded:
// re-enqueuing an identical result after a retry must produce the same key,
// not a duplicate upload.
func (p *SavePayload) idempotencyKey() (string, error) {
	content, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	contentSum := sha256.Sum256(content)

	h := sha256.New()
	h.Write([]byte(p.DescriptorHash))
	h.Write(contentSum[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}

// QueuedSave is one durable entry of the offline queue.
//
// Created when a solve completes locally, mutated only by flush, and deleted
// once the server acknowledges receipt or the user discards a failed entry.
type QueuedSave struct {
	// ID is the locally-unique entry identifier.
	ID string `json:"id"`

	// Seq is the creation-order sequence number; flush processes entries
	// in ascending Seq.
	Seq uint64 `json:"seq"`

	// IdempotencyKey is carried on every upload attempt so a server-side
	// retry of the same key is a no-op.
	IdempotencyKey string `json:"idempotency_key"`

	CreatedAt time.Time   `json:"created_at"`
	State     SyncState   `json:"state"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"last_error,omitempty"`
	Payload   SavePayload `json:"payload"`
}
