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

// Fixed output-buffer capacities of the native call convention. These mirror
// the engine ABI and must not be changed independently of it.
const (
	// MaxRouteOutcomes is the route-outcome buffer capacity per solve.
	MaxRouteOutcomes = 16

	// MaxShadowPrices is the shadow-price buffer capacity per solve.
	MaxShadowPrices = 32

	// MaxSensitivityEntries is the sensitivity buffer capacity per
	// Monte Carlo run.
	MaxSensitivityEntries = 64
)

// Raw engine status codes. These are wire values of the native boundary;
// Status (result.go) is the typed view the rest of the system consumes.
const (
	rawStatusOptimal    int32 = 0
	rawStatusInfeasible int32 = 1
	rawStatusUnbounded  int32 = 2
	rawStatusError      int32 = 3
)

// RawRouteOutcome is one slot of the engine's route-outcome buffer.
type RawRouteOutcome struct {
	Tons   float64
	Profit float64
	Margin float64
}

// RawShadowPrice is one slot of the engine's shadow-price buffer.
type RawShadowPrice struct {
	ConstraintIndex int32
	Price           float64
}

// RawSensitivity is one slot of the engine's sensitivity buffer.
type RawSensitivity struct {
	VariableIndex int32
	Correlation   float64
}

// RawSolveOutput is the fixed-shape output block of a single solve.
//
// RouteCount and ShadowCount are the engine's actual occupancy counts and
// may exceed the buffer capacities; the bridge copies at most the first
// capacity entries and drops the rest (see Bounded).
type RawSolveOutput struct {
	Status int32

	Profit float64
	Tons   float64
	Cost   float64
	ROI    float64

	RouteCount int32
	Routes     [MaxRouteOutcomes]RawRouteOutcome

	ShadowCount int32
	Shadows     [MaxShadowPrices]RawShadowPrice
}

// RawMonteCarloOutput is the fixed-shape output block of a Monte Carlo run.
type RawMonteCarloOutput struct {
	Status int32

	Scenarios  int32
	Feasible   int32
	Infeasible int32

	Mean   float64
	StdDev float64
	P5     float64
	P25    float64
	P50    float64
	P75    float64
	P95    float64
	Min    float64
	Max    float64

	SensitivityCount int32
	Sensitivities    [MaxSensitivityEntries]RawSensitivity
}

// Engine is the native solver capability the bridge marshals against.
//
// # Description
//
// Implementations wrap the numeric LP/Monte-Carlo engine. Calls are
// synchronous, blocking, and CPU-bound; the bridge is responsible for
// keeping them off the caller's primary thread. The descriptor argument is
// the codec's binary wire form — implementations decode it themselves and
// never share mutable state back across the boundary.
//
// A returned error means the engine itself failed (NativeCallFailed at the
// bridge level). Infeasible and unbounded models are NOT errors: they are
// reported through the Status field of the output block.
//
// Thread Safety: implementations must tolerate concurrent calls; the bridge
// runs overlapping solves in parallel.
type Engine interface {
	// Solve runs a single solve into the fixed-shape output block.
	Solve(desc []byte, variables []float64, out *RawSolveOutput) error

	// MonteCarlo runs a perturbed scenario sweep into the fixed-shape
	// output block.
	MonteCarlo(desc []byte, center []float64, scenarios int, out *RawMonteCarloOutput) error
}
