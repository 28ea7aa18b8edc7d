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

import (
	"encoding/json"
	"fmt"
)

// Status is the typed solver status surfaced on results.
//
// Infeasible and unbounded are valid result states, not failures; only a
// broken native call surfaces as an error (ErrNativeCallFailed).
type Status uint8

const (
	// StatusOptimal means an optimal allocation was found.
	StatusOptimal Status = iota

	// StatusInfeasible means no allocation satisfies every constraint.
	StatusInfeasible

	// StatusUnbounded means the objective is unbounded over the feasible
	// region (usually a missing capacity or capital constraint).
	StatusUnbounded

	// StatusError means the engine reported an internal numeric failure
	// for this model while the call itself completed.
	StatusError
)

// String returns the platform's symbolic name for the status.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MarshalJSON encodes the status as its symbolic name; the platform's wire
// surfaces never carry numeric enum values.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a symbolic status name; unknown names collapse to
// StatusError, mirroring statusFromRaw.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "optimal":
		*s = StatusOptimal
	case "infeasible":
		*s = StatusInfeasible
	case "unbounded":
		*s = StatusUnbounded
	default:
		*s = StatusError
	}
	return nil
}

// statusFromRaw maps the native status code to the typed Status. Unknown
// codes collapse to StatusError rather than guessing.
func statusFromRaw(raw int32) Status {
	switch raw {
	case rawStatusOptimal:
		return StatusOptimal
	case rawStatusInfeasible:
		return StatusInfeasible
	case rawStatusUnbounded:
		return StatusUnbounded
	default:
		return StatusError
	}
}

// RouteOutcome is the solved allocation for one route.
type RouteOutcome struct {
	// Tons allocated to the route.
	Tons float64 `json:"tons"`

	// Profit contributed by the route in $.
	Profit float64 `json:"profit"`

	// Margin is the per-ton margin in $/t.
	Margin float64 `json:"margin"`
}

// ShadowPrice is the marginal value of one binding constraint at the optimum.
type ShadowPrice struct {
	// ConstraintIndex refers into the descriptor's constraint list.
	ConstraintIndex int `json:"constraint_index"`

	// Price is the objective improvement per unit of bound relaxation.
	Price float64 `json:"price"`
}

// SensitivityEntry correlates one perturbed variable with profit outcomes.
type SensitivityEntry struct {
	// VariableIndex refers into the descriptor's variable space.
	VariableIndex int `json:"variable_index"`

	// Correlation is the profit correlation in [-1, 1].
	Correlation float64 `json:"correlation"`
}

// SolveResult is the typed outcome of a single solve.
//
// Produced once per call, immutable, and owned by the caller until it is
// handed to the offline queue. Routes and ShadowPrices are bounded
// sequences: entries the engine reported beyond the native buffer capacity
// were dropped (see Bounded).
type SolveResult struct {
	Status Status `json:"status"`

	// Scalars at the optimum. Zero when Status != StatusOptimal.
	Profit float64 `json:"profit"`
	Tons   float64 `json:"tons"`
	Cost   float64 `json:"cost"`
	ROI    float64 `json:"roi"`

	Routes       Bounded[RouteOutcome] `json:"routes"`
	ShadowPrices Bounded[ShadowPrice]  `json:"shadow_prices"`
}

// DistributionStats summarizes the Monte Carlo profit distribution.
type DistributionStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P5     float64 `json:"p5"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
	P95    float64 `json:"p95"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// MonteCarloResult is the typed outcome of a scenario sweep. Same ownership
// and lifecycle as SolveResult.
type MonteCarloResult struct {
	Status Status `json:"status"`

	Scenarios  int `json:"scenarios"`
	Feasible   int `json:"feasible"`
	Infeasible int `json:"infeasible"`

	Stats DistributionStats `json:"stats"`

	Sensitivities Bounded[SensitivityEntry] `json:"sensitivities"`
}

// Signal is the trader-facing decision badge derived from a Monte Carlo
// distribution.
type Signal string

const (
	SignalStrongGo Signal = "strong_go"
	SignalGo       Signal = "go"
	SignalCautious Signal = "cautious"
	SignalWeak     Signal = "weak"
	SignalNoGo     Signal = "no_go"
)

// Signal classifies the distribution into a decision badge.
//
// Description:
//
//	The ladder mirrors the platform's badge semantics:
//	  strong_go - 5th percentile profit positive; even worst cases pay.
//	  go        - 25th percentile positive.
//	  cautious  - median positive, but downside scenarios go negative.
//	  weak      - median positive but narrow relative to the spread.
//	  no_go     - median non-positive, or most scenarios infeasible.
//
//	This is a client-side heuristic over the returned statistics; the
//	bridge marshaling layer never computes it.
func (r *MonteCarloResult) Signal() Signal {
	if r.Status == StatusError {
		return SignalNoGo
	}
	if r.Scenarios > 0 && r.Infeasible*2 > r.Scenarios {
		return SignalNoGo
	}
	if r.Stats.P50 <= 0 {
		return SignalNoGo
	}
	if r.Stats.P5 > 0 {
		return SignalStrongGo
	}
	if r.Stats.P25 > 0 {
		return SignalGo
	}
	// Median positive with a negative lower quartile: the spread decides
	// between cautious and weak.
	if r.Stats.P75-r.Stats.P25 > 4*r.Stats.P50 {
		return SignalWeak
	}
	return SignalCautious
}

// solveResultFromRaw copies the fixed-shape output block into a typed
// result, applying the truncate-on-overflow policy.
func solveResultFromRaw(raw *RawSolveOutput) *SolveResult {
	return &SolveResult{
		Status:       statusFromRaw(raw.Status),
		Profit:       raw.Profit,
		Tons:         raw.Tons,
		Cost:         raw.Cost,
		ROI:          raw.ROI,
		Routes:       boundedOf(routeOutcomesFromRaw(raw), int(raw.RouteCount)),
		ShadowPrices: boundedOf(shadowPricesFromRaw(raw), int(raw.ShadowCount)),
	}
}

func routeOutcomesFromRaw(raw *RawSolveOutput) []RouteOutcome {
	out := make([]RouteOutcome, MaxRouteOutcomes)
	for i, r := range raw.Routes {
		out[i] = RouteOutcome{Tons: r.Tons, Profit: r.Profit, Margin: r.Margin}
	}
	return out
}

func shadowPricesFromRaw(raw *RawSolveOutput) []ShadowPrice {
	out := make([]ShadowPrice, MaxShadowPrices)
	for i, s := range raw.Shadows {
		out[i] = ShadowPrice{ConstraintIndex: int(s.ConstraintIndex), Price: s.Price}
	}
	return out
}

// monteCarloResultFromRaw copies the fixed-shape output block into a typed
// result, applying the truncate-on-overflow policy.
func monteCarloResultFromRaw(raw *RawMonteCarloOutput) *MonteCarloResult {
	sens := make([]SensitivityEntry, MaxSensitivityEntries)
	for i, s := range raw.Sensitivities {
		sens[i] = SensitivityEntry{VariableIndex: int(s.VariableIndex), Correlation: s.Correlation}
	}
	return &MonteCarloResult{
		Status:     statusFromRaw(raw.Status),
		Scenarios:  int(raw.Scenarios),
		Feasible:   int(raw.Feasible),
		Infeasible: int(raw.Infeasible),
		Stats: DistributionStats{
			Mean:   raw.Mean,
			StdDev: raw.StdDev,
			P5:     raw.P5,
			P25:    raw.P25,
			P50:    raw.P50,
			P75:    raw.P75,
			P95:    raw.P95,
			Min:    raw.Min,
			Max:    raw.Max,
		},
		Sensitivities: boundedOf(sens, int(raw.SensitivityCount)),
	}
}
