// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"sync"
	"time"

	"github.com/AleutianAI/AleutianMobile/services/mobile/api"
	"github.com/AleutianAI/AleutianMobile/services/mobile/queue"
)

// ModelRecord is a published model for one product group.
type ModelRecord struct {
	ProductGroup  string
	Version       int64
	Descriptor    []byte
	VariableOrder []string
	Variables     map[string]float64
	UpdatedAt     time.Time
}

func (m *ModelRecord) toResponse() *api.ModelResponse {
	vars := make(map[string]float64, len(m.Variables))
	for k, v := range m.Variables {
		vars[k] = v
	}
	return &api.ModelResponse{
		ProductGroup:  m.ProductGroup,
		Version:       m.Version,
		Descriptor:    m.Descriptor,
		VariableOrder: append([]string(nil), m.VariableOrder...),
		Variables:     vars,
		UpdatedAt:     m.UpdatedAt,
	}
}

// Store is the dev server's in-memory state: published models, thresholds,
// and received solves deduplicated by idempotency key.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	models     map[string]*ModelRecord
	thresholds map[string]*api.ThresholdsResponse
	saves      map[string]*queue.QueuedSave
	saveOrder  []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		models:     make(map[string]*ModelRecord),
		thresholds: make(map[string]*api.ThresholdsResponse),
		saves:      make(map[string]*queue.QueuedSave),
	}
}

// PutModel publishes or replaces a model.
func (s *Store) PutModel(m *ModelRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	s.models[m.ProductGroup] = m
}

// Model returns the current model for a group.
func (s *Store) Model(productGroup string) (*api.ModelResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[productGroup]
	if !ok {
		return nil, false
	}
	return m.toResponse(), true
}

// SetVariable updates one variable, bumps the model version, and returns the
// new version.
func (s *Store) SetVariable(productGroup, key string, value float64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[productGroup]
	if !ok {
		return 0, false
	}
	m.Variables[key] = value
	m.Version++
	m.UpdatedAt = time.Now().UTC()
	return m.Version, true
}

// PutThresholds publishes the breach thresholds for a group.
func (s *Store) PutThresholds(t *api.ThresholdsResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	s.thresholds[t.ProductGroup] = t
}

// Thresholds returns the current thresholds for a group.
func (s *Store) Thresholds(productGroup string) (*api.ThresholdsResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.thresholds[productGroup]
	return t, ok
}

// RecordSave stores an uploaded save once per idempotency key. Returns false
// when the key was already recorded (duplicate upload, a no-op).
func (s *Store) RecordSave(entry *queue.QueuedSave) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.saves[entry.IdempotencyKey]; seen {
		return false
	}
	s.saves[entry.IdempotencyKey] = entry
	s.saveOrder = append(s.saveOrder, entry.IdempotencyKey)
	return true
}

// Saves returns recorded saves in arrival order.
func (s *Store) Saves() []*queue.QueuedSave {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*queue.QueuedSave, 0, len(s.saveOrder))
	for _, key := range s.saveOrder {
		out = append(out, s.saves[key])
	}
	return out
}
