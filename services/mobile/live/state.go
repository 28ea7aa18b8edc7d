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

import (
	"sync"
	"time"
)

// VariableSnapshot is the last-seen variable state for one product group.
type VariableSnapshot struct {
	ProductGroup string             `json:"product_group"`
	Version      int64              `json:"version"`
	Variables    map[string]float64 `json:"variables"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// groupState serializes mutation per product group. Groups are independent:
// each carries its own lock, so concurrent updates to different groups never
// contend.
type groupState struct {
	mu       sync.Mutex
	snapshot VariableSnapshot
	hasState bool

	// ackedAlerts suppresses re-display of acknowledged breach alerts.
	ackedAlerts map[string]struct{}
}

func newGroupState(group string) *groupState {
	return &groupState{
		snapshot:    VariableSnapshot{ProductGroup: group},
		ackedAlerts: make(map[string]struct{}),
	}
}

// applySnapshot replaces the stored snapshot wholesale, guarded by the
// monotonic version: an incoming snapshot older than the stored one is
// dropped (out-of-order delivery), never merged.
func (g *groupState) applySnapshot(ev *VariablesUpdated) (VariableSnapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.hasState && ev.Version < g.snapshot.Version {
		return VariableSnapshot{}, false
	}

	vars := make(map[string]float64, len(ev.Variables))
	for k, v := range ev.Variables {
		vars[k] = v
	}
	g.snapshot = VariableSnapshot{
		ProductGroup: ev.ProductGroup,
		Version:      ev.Version,
		Variables:    vars,
		UpdatedAt:    ev.Timestamp,
	}
	g.hasState = true
	return g.copySnapshotLocked(), true
}

// applyDelta applies a single-variable change in place, unconditionally:
// a delta is fresher by construction than whatever snapshot it races. The
// stored version only ever advances.
func (g *groupState) applyDelta(ev *VariableChanged) VariableSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.snapshot.Variables == nil {
		g.snapshot.Variables = make(map[string]float64)
	}
	g.snapshot.Variables[ev.Key] = ev.Value
	if ev.Version > g.snapshot.Version {
		g.snapshot.Version = ev.Version
	}
	if ev.Timestamp.After(g.snapshot.UpdatedAt) {
		g.snapshot.UpdatedAt = ev.Timestamp
	}
	g.hasState = true
	return g.copySnapshotLocked()
}

// shouldDeliver reports whether a breach alert is un-acked, recording
// nothing.
func (g *groupState) shouldDeliver(alertID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, acked := g.ackedAlerts[alertID]
	return !acked
}

// ack suppresses future re-display of the alert.
func (g *groupState) ack(alertID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ackedAlerts[alertID] = struct{}{}
}

// current returns a copy of the stored snapshot, if any has arrived yet.
func (g *groupState) current() (VariableSnapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.hasState {
		return VariableSnapshot{}, false
	}
	return g.copySnapshotLocked(), true
}

func (g *groupState) copySnapshotLocked() VariableSnapshot {
	out := g.snapshot
	out.Variables = make(map[string]float64, len(g.snapshot.Variables))
	for k, v := range g.snapshot.Variables {
		out.Variables[k] = v
	}
	return out
}
