// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package devsolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMobile/services/solver/bridge"
	"github.com/AleutianAI/AleutianMobile/services/solver/descriptor"
)

// bargeModel is the NH3 domestic barge scenario: 3 variables
// (nola_buy-like at 0 used as sell here for positive margins), 2 routes,
// 1 supply constraint, max_profit.
func bargeModel() *descriptor.ModelDescriptor {
	return &descriptor.ModelDescriptor{
		VariableCount: 3,
		Routes: []descriptor.Route{
			{SellIndex: 0, BuyIndex: 2, FreightIndex: 1, TransitCost: 4.5, UnitCapacity: 1500},
			{SellIndex: 0, BuyIndex: 2, FreightIndex: 1, TransitCost: 6.25, UnitCapacity: 1500},
		},
		Constraints: []descriptor.Constraint{
			{Kind: descriptor.ConstraintSupply, Bound: 12000, Coefficients: []descriptor.Coefficient{{Index: 0, Value: 1}}},
		},
		Objective: descriptor.ObjectiveMaxProfit,
	}
}

func newScenarioBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	b, err := bridge.New(New(), bridge.Options{Workers: 2})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

// TestSolveScenario is the end-to-end scenario: solve with
// variables=[100,50,30] returns optimal with non-negative tons and profit
// and at most 2 route outcomes.
func TestSolveScenario(t *testing.T) {
	b := newScenarioBridge(t)

	result, err := b.Solve(bargeModel(), []float64{100, 50, 30})
	require.NoError(t, err)

	assert.Equal(t, bridge.StatusOptimal, result.Status)
	assert.GreaterOrEqual(t, result.Tons, 0.0)
	assert.GreaterOrEqual(t, result.Profit, 0.0)
	assert.LessOrEqual(t, result.Routes.Len(), 2)
	assert.False(t, result.Routes.Truncated())
}

// TestSolveLengthMismatch verifies a 2-value variables array against the
// 3-variable descriptor is rejected before reaching the engine.
func TestSolveLengthMismatch(t *testing.T) {
	b := newScenarioBridge(t)

	_, err := b.Solve(bargeModel(), []float64{100, 50})
	require.ErrorIs(t, err, bridge.ErrVariableCountMismatch)
}

func TestSolveUnbounded(t *testing.T) {
	b := newScenarioBridge(t)

	d := bargeModel()
	d.Constraints = nil

	result, err := b.Solve(d, []float64{100, 50, 30})
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusUnbounded, result.Status)
}

func TestSolveInfeasible(t *testing.T) {
	b := newScenarioBridge(t)

	d := bargeModel()
	d.Constraints[0].Bound = -100

	result, err := b.Solve(d, []float64{100, 50, 30})
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusInfeasible, result.Status)
}

// TestMonteCarlo verifies scenario accounting, ordered percentiles, and
// deterministic reruns.
func TestMonteCarlo(t *testing.T) {
	b := newScenarioBridge(t)

	d := bargeModel()
	d.Perturbations = []descriptor.PerturbationSpec{
		{Index: 0, Dist: descriptor.DistNormal, P1: 0, P2: 10},
		{Index: 1, Dist: descriptor.DistUniform, P1: -3, P2: 3},
	}

	result, err := b.MonteCarlo(d, []float64{100, 50, 30}, 1000)
	require.NoError(t, err)

	assert.Equal(t, 1000, result.Scenarios)
	assert.Equal(t, result.Scenarios, result.Feasible+result.Infeasible)
	assert.LessOrEqual(t, result.Stats.Min, result.Stats.P5)
	assert.LessOrEqual(t, result.Stats.P5, result.Stats.P50)
	assert.LessOrEqual(t, result.Stats.P50, result.Stats.P95)
	assert.LessOrEqual(t, result.Stats.P95, result.Stats.Max)
	assert.LessOrEqual(t, result.Sensitivities.Len(), 2)
	for _, s := range result.Sensitivities.Items() {
		assert.GreaterOrEqual(t, s.Correlation, -1.0)
		assert.LessOrEqual(t, s.Correlation, 1.0)
	}

	again, err := b.MonteCarlo(d, []float64{100, 50, 30}, 1000)
	require.NoError(t, err)
	assert.Equal(t, result.Stats, again.Stats)
}

// TestMonteCarloPartialSweep verifies sensitivity accounting when only part
// of the sweep solves: unsolved scenarios must not blank the sensitivity
// list for the solved ones.
func TestMonteCarloPartialSweep(t *testing.T) {
	b := newScenarioBridge(t)

	// One unconstrained route with its margin centred near zero: scenarios
	// where the perturbed sell price turns the margin positive come back
	// unbounded, the rest solve.
	d := &descriptor.ModelDescriptor{
		VariableCount: 3,
		Routes: []descriptor.Route{
			{SellIndex: 0, BuyIndex: 1, FreightIndex: 2, TransitCost: 4.5, UnitCapacity: 1500},
		},
		Objective: descriptor.ObjectiveMaxProfit,
		Perturbations: []descriptor.PerturbationSpec{
			{Index: 0, Dist: descriptor.DistUniform, P1: -60, P2: 60},
		},
	}

	result, err := b.MonteCarlo(d, []float64{100, 70, 25}, 500)
	require.NoError(t, err)

	assert.Equal(t, 500, result.Scenarios)
	assert.Positive(t, result.Feasible)
	assert.Positive(t, result.Infeasible)
	assert.Equal(t, result.Scenarios, result.Feasible+result.Infeasible)

	require.Equal(t, 1, result.Sensitivities.Len(),
		"the perturbed variable keeps its sensitivity entry")
	s := result.Sensitivities.Items()[0]
	assert.Equal(t, 0, s.VariableIndex)
	assert.GreaterOrEqual(t, s.Correlation, -1.0)
	assert.LessOrEqual(t, s.Correlation, 1.0)
}
