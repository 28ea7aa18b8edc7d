// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import "time"

// ModelResponse is the current model for a product group: the solve-ready
// topology plus the variable values it was published with.
type ModelResponse struct {
	// ProductGroup names the commodity book, e.g. "nh3_domestic".
	ProductGroup string `json:"product_group"`

	// Version is the server's monotonic model version.
	Version int64 `json:"version"`

	// Descriptor is the encoded model topology (base64 on the wire).
	Descriptor []byte `json:"descriptor"`

	// VariableOrder maps variable keys to descriptor indices: the i-th key
	// is descriptor variable i.
	VariableOrder []string `json:"variable_order"`

	// Variables holds the current value per variable key.
	Variables map[string]float64 `json:"variables"`

	UpdatedAt time.Time `json:"updated_at"`
}

// VariableVector lays Variables out in descriptor index order, ready to hand
// to the solve bridge. Missing keys are zero.
func (m *ModelResponse) VariableVector() []float64 {
	vec := make([]float64, len(m.VariableOrder))
	for i, key := range m.VariableOrder {
		vec[i] = m.Variables[key]
	}
	return vec
}

// Threshold is one per-variable delta band: how far the variable may move
// from its baseline before the platform raises a breach alert, e.g.
// river_stage 0.5 ft or nola_buy $2/t. Baselines live on the model; the
// band is just the allowed move magnitude.
type Threshold struct {
	VariableKey string `json:"variable_key"`

	// Delta is the allowed move magnitude; |current - baseline| >= Delta
	// breaches.
	Delta float64 `json:"delta"`

	// Severity is a plain symbolic string, e.g. "warning" or "critical".
	Severity string `json:"severity"`
}

// ThresholdsResponse is the current breach thresholds for a product group.
type ThresholdsResponse struct {
	ProductGroup string      `json:"product_group"`
	Thresholds   []Threshold `json:"thresholds"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// errorResponse is the server's JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}
