// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package descriptor implements the binary model-descriptor codec.
//
// A descriptor is an immutable snapshot of an LP topology (variables, routes,
// constraints, objective mode, perturbation specs) encoded into a compact,
// fixed-order, little-endian binary form. The encoded bytes are what crosses
// the function-call boundary into the native solver engine.
//
// The codec is purely structural: it never interprets values and performs no
// solver math. Its single guarantee is round-trip fidelity:
//
//	Decode(Encode(d)) == d   for every well-formed d
//
// Variable indices are resolved once at encode time and never renumbered.
package descriptor

import "fmt"

// =============================================================================
// Enumerations
// =============================================================================

// ObjectiveMode selects what the solver optimizes for.
//
// The numeric values are part of the wire format and must not be reordered.
type ObjectiveMode uint8

const (
	// ObjectiveMaxProfit maximizes total gross profit across all routes.
	ObjectiveMaxProfit ObjectiveMode = iota

	// ObjectiveMinCost minimizes total capital deployed while meeting
	// delivery obligations.
	ObjectiveMinCost

	// ObjectiveMaxROI maximizes return on capital deployed.
	ObjectiveMaxROI

	// ObjectiveCVaRAdjusted maximizes expected profit while penalizing
	// tail risk. The Monte Carlo distribution informs this mode.
	ObjectiveCVaRAdjusted

	// ObjectiveMinRisk minimizes outcome variance.
	ObjectiveMinRisk

	objectiveModeCount // sentinel, keep last
)

// String returns the platform's symbolic name for the mode.
func (m ObjectiveMode) String() string {
	switch m {
	case ObjectiveMaxProfit:
		return "max_profit"
	case ObjectiveMinCost:
		return "min_cost"
	case ObjectiveMaxROI:
		return "max_roi"
	case ObjectiveCVaRAdjusted:
		return "cvar_adjusted"
	case ObjectiveMinRisk:
		return "min_risk"
	default:
		return fmt.Sprintf("objective(%d)", uint8(m))
	}
}

// Valid reports whether the mode is a known objective.
func (m ObjectiveMode) Valid() bool { return m < objectiveModeCount }

// ConstraintKind tags a constraint record on the wire.
//
// The numeric values are part of the wire format and must not be reordered.
type ConstraintKind uint8

const (
	// ConstraintSupply bounds tons drawn from a supply point.
	ConstraintSupply ConstraintKind = iota

	// ConstraintDemand bounds tons delivered to a demand point.
	ConstraintDemand

	// ConstraintFleet bounds total barge capacity committed.
	ConstraintFleet

	// ConstraintCapital bounds working capital deployed.
	ConstraintCapital

	// ConstraintCustom carries a caller-defined coefficient row.
	ConstraintCustom

	constraintKindCount // sentinel, keep last
)

// String returns the platform's symbolic name for the kind.
func (k ConstraintKind) String() string {
	switch k {
	case ConstraintSupply:
		return "supply"
	case ConstraintDemand:
		return "demand"
	case ConstraintFleet:
		return "fleet"
	case ConstraintCapital:
		return "capital"
	case ConstraintCustom:
		return "custom"
	default:
		return fmt.Sprintf("constraint(%d)", uint8(k))
	}
}

// Valid reports whether the kind is a known constraint tag.
func (k ConstraintKind) Valid() bool { return k < constraintKindCount }

// Distribution selects the perturbation distribution for Monte Carlo runs.
type Distribution uint8

const (
	// DistNormal perturbs with a normal distribution; P1 is the mean
	// offset, P2 the standard deviation.
	DistNormal Distribution = iota

	// DistUniform perturbs uniformly in [P1, P2] around the center value.
	DistUniform

	// DistTriangular perturbs with a triangular distribution; P1/P2 are
	// the lower/upper offsets, mode at the center value.
	DistTriangular

	distributionCount // sentinel, keep last
)

// Valid reports whether the distribution tag is known.
func (d Distribution) Valid() bool { return d < distributionCount }

// =============================================================================
// Topology records
// =============================================================================

// Route is one unit of the LP's structure: a buy/sell/freight variable
// triple with transit cost and unit capacity.
type Route struct {
	// SellIndex is the index of the sell-price variable.
	SellIndex int

	// BuyIndex is the index of the buy-price variable.
	BuyIndex int

	// FreightIndex is the index of the freight-rate variable.
	FreightIndex int

	// TransitCost is the fixed per-ton transit cost in $/t.
	TransitCost float64

	// UnitCapacity is the tons carried per transport unit (one barge load).
	UnitCapacity float64
}

// Constraint is a tagged coefficient row with a bound.
//
// Coefficients maps variable index to coefficient. It is stored sorted by
// index so that encoding is deterministic.
type Constraint struct {
	// Kind tags the constraint record.
	Kind ConstraintKind

	// Bound is the right-hand side of the constraint.
	Bound float64

	// Coefficients are the non-zero row entries, ordered by variable index.
	Coefficients []Coefficient
}

// Coefficient is one non-zero entry of a constraint row.
type Coefficient struct {
	// Index is the variable index the coefficient applies to.
	Index int

	// Value is the coefficient value.
	Value float64
}

// PerturbationSpec describes how one variable is perturbed per Monte Carlo
// scenario. Only Monte Carlo calls read these; single solves ignore them.
type PerturbationSpec struct {
	// Index is the perturbed variable's index.
	Index int

	// Dist selects the perturbation distribution.
	Dist Distribution

	// P1 and P2 are the distribution parameters (see Distribution docs).
	P1 float64
	P2 float64
}

// ModelDescriptor is an immutable snapshot of an LP topology at encode time.
//
// Invariant: every route and constraint variable index is < VariableCount.
// Indices are resolved once when the descriptor is built and never renumbered
// afterward; decoded descriptors carry exactly the indices that were encoded.
type ModelDescriptor struct {
	// VariableCount is the number of live variables the topology is
	// defined over.
	VariableCount int

	// Routes are the transport routes, in model order.
	Routes []Route

	// Constraints are the constraint rows, in model order.
	Constraints []Constraint

	// Objective selects the optimization mode.
	Objective ObjectiveMode

	// Perturbations configure Monte Carlo scenario generation. May be
	// empty; single solves never read them.
	Perturbations []PerturbationSpec
}

// Validate checks the structural invariants of the descriptor.
//
// Outputs:
//
//	error - Non-nil if an index is out of range for VariableCount, a tag
//	        is unknown, or a count is negative.
func (d *ModelDescriptor) Validate() error {
	if d.VariableCount < 0 {
		return fmt.Errorf("variable count must be non-negative, got %d", d.VariableCount)
	}
	if !d.Objective.Valid() {
		return fmt.Errorf("unknown objective mode %d", uint8(d.Objective))
	}
	checkIndex := func(what string, idx int) error {
		if idx < 0 || idx >= d.VariableCount {
			return fmt.Errorf("%s index %d out of range for %d variables", what, idx, d.VariableCount)
		}
		return nil
	}
	for i, r := range d.Routes {
		if err := checkIndex(fmt.Sprintf("route %d sell", i), r.SellIndex); err != nil {
			return err
		}
		if err := checkIndex(fmt.Sprintf("route %d buy", i), r.BuyIndex); err != nil {
			return err
		}
		if err := checkIndex(fmt.Sprintf("route %d freight", i), r.FreightIndex); err != nil {
			return err
		}
	}
	for i, c := range d.Constraints {
		if !c.Kind.Valid() {
			return fmt.Errorf("constraint %d has unknown kind %d", i, uint8(c.Kind))
		}
		for _, coef := range c.Coefficients {
			if err := checkIndex(fmt.Sprintf("constraint %d coefficient", i), coef.Index); err != nil {
				return err
			}
		}
	}
	for i, p := range d.Perturbations {
		if !p.Dist.Valid() {
			return fmt.Errorf("perturbation %d has unknown distribution %d", i, uint8(p.Dist))
		}
		if err := checkIndex(fmt.Sprintf("perturbation %d variable", i), p.Index); err != nil {
			return err
		}
	}
	return nil
}
