// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package devsolver is a development stand-in for the native solver engine.
//
// It exists so the bridge, queue, and live client can be exercised
// end-to-end without the production engine. It fills routes greedily by
// margin and scales the allocation back inside the constraint bounds — plain
// feasibility bookkeeping, NOT linear programming. It finds *a* feasible
// allocation, not the optimal one, and its shadow prices are rough binding
// indicators. Never ship it as the solving capability.
package devsolver

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/AleutianAI/AleutianMobile/services/solver/bridge"
	"github.com/AleutianAI/AleutianMobile/services/solver/descriptor"
)

// Solver implements bridge.Engine with deterministic stand-in arithmetic.
//
// Thread Safety: stateless; safe for concurrent use.
type Solver struct{}

// New returns a development solver.
func New() *Solver { return &Solver{} }

var _ bridge.Engine = (*Solver)(nil)

// Solve fills the output block with a greedy feasible allocation.
func (s *Solver) Solve(desc []byte, variables []float64, out *bridge.RawSolveOutput) error {
	d, err := descriptor.Decode(desc)
	if err != nil {
		return fmt.Errorf("decode descriptor: %w", err)
	}
	fillSolve(d, variables, out)
	return nil
}

// MonteCarlo perturbs the center per the descriptor's perturbation specs and
// re-runs the stand-in allocation per scenario. The RNG is seeded from the
// scenario count so runs are reproducible.
func (s *Solver) MonteCarlo(desc []byte, center []float64, scenarios int, out *bridge.RawMonteCarloOutput) error {
	d, err := descriptor.Decode(desc)
	if err != nil {
		return fmt.Errorf("decode descriptor: %w", err)
	}
	if scenarios <= 0 {
		return fmt.Errorf("scenario count must be positive, got %d", scenarios)
	}

	rng := rand.New(rand.NewPCG(0x416c65757469616e, uint64(scenarios)))
	profits := make([]float64, 0, scenarios)
	// Per perturbed variable: the sampled values, for correlation.
	samples := make(map[int][]float64, len(d.Perturbations))
	feasible, infeasible := 0, 0

	vars := make([]float64, len(center))
	for i := 0; i < scenarios; i++ {
		copy(vars, center)
		for _, p := range d.Perturbations {
			vars[p.Index] = perturb(rng, center[p.Index], p)
		}
		var scen bridge.RawSolveOutput
		fillSolve(d, vars, &scen)
		if scen.Status != 0 { // infeasible or unbounded: no usable allocation
			infeasible++
			continue
		}
		feasible++
		profits = append(profits, scen.Profit)
		// Sample only solved scenarios so every series stays aligned with
		// the profit series.
		for _, p := range d.Perturbations {
			samples[p.Index] = append(samples[p.Index], vars[p.Index])
		}
	}

	out.Scenarios = int32(scenarios)
	out.Feasible = int32(feasible)
	out.Infeasible = int32(infeasible)
	if feasible == 0 {
		out.Status = 1 // infeasible
		return nil
	}
	out.Status = 0 // optimal

	sort.Float64s(profits)
	out.Min = profits[0]
	out.Max = profits[len(profits)-1]
	out.P5 = percentile(profits, 0.05)
	out.P25 = percentile(profits, 0.25)
	out.P50 = percentile(profits, 0.50)
	out.P75 = percentile(profits, 0.75)
	out.P95 = percentile(profits, 0.95)
	out.Mean, out.StdDev = meanStddev(profits)

	// Sensitivity: profit correlation per perturbed variable, strongest
	// first. Counts beyond the buffer capacity are reported truthfully
	// and truncated by the bridge.
	type corr struct {
		index int
		value float64
	}
	correlations := make([]corr, 0, len(samples))
	for idx, vals := range samples {
		// Duplicate perturbation specs on one index sample it twice per
		// scenario; skip the misaligned series rather than correlate it.
		if len(vals) == len(profits) {
			correlations = append(correlations, corr{index: idx, value: pearson(vals, profits)})
		}
	}
	sort.Slice(correlations, func(i, j int) bool {
		if math.Abs(correlations[i].value) != math.Abs(correlations[j].value) {
			return math.Abs(correlations[i].value) > math.Abs(correlations[j].value)
		}
		return correlations[i].index < correlations[j].index
	})
	out.SensitivityCount = int32(len(correlations))
	for i, c := range correlations {
		if i >= bridge.MaxSensitivityEntries {
			break
		}
		out.Sensitivities[i] = bridge.RawSensitivity{
			VariableIndex: int32(c.index),
			Correlation:   c.value,
		}
	}
	return nil
}

// fillSolve computes the greedy allocation into the output block.
func fillSolve(d *descriptor.ModelDescriptor, vars []float64, out *bridge.RawSolveOutput) {
	for _, c := range d.Constraints {
		if c.Bound < 0 && c.Kind != descriptor.ConstraintCustom {
			out.Status = 1 // infeasible
			return
		}
	}

	// Start every profitable route at one unit of capacity.
	tons := make([]float64, len(d.Routes))
	margins := make([]float64, len(d.Routes))
	anyProfitable := false
	for i, r := range d.Routes {
		margins[i] = vars[r.SellIndex] - vars[r.BuyIndex] - vars[r.FreightIndex] - r.TransitCost
		if margins[i] > 0 {
			tons[i] = r.UnitCapacity
			anyProfitable = true
		}
	}
	if anyProfitable && len(d.Constraints) == 0 {
		out.Status = 2 // unbounded: nothing caps a profitable route
		return
	}

	// Scale the whole allocation back inside the tightest constraint.
	scale := 1.0
	for _, c := range d.Constraints {
		var load float64
		for _, coef := range c.Coefficients {
			for i, r := range d.Routes {
				if r.SellIndex == coef.Index || r.BuyIndex == coef.Index || r.FreightIndex == coef.Index {
					load += coef.Value * tons[i]
				}
			}
		}
		if load > c.Bound && load > 0 {
			if s := c.Bound / load; s < scale {
				scale = s
			}
		}
	}
	if scale < 0 {
		scale = 0
	}

	var totalTons, totalProfit, totalCost float64
	for i, r := range d.Routes {
		tons[i] *= scale
		totalTons += tons[i]
		routeProfit := tons[i] * margins[i]
		totalProfit += routeProfit
		totalCost += tons[i] * (vars[r.BuyIndex] + vars[r.FreightIndex] + r.TransitCost)
		if i < bridge.MaxRouteOutcomes {
			out.Routes[i] = bridge.RawRouteOutcome{Tons: tons[i], Profit: routeProfit, Margin: margins[i]}
		}
	}
	out.RouteCount = int32(len(d.Routes))

	// Constraints scaled against are binding; report a rough shadow price.
	shadow := 0
	for ci, c := range d.Constraints {
		var load float64
		for _, coef := range c.Coefficients {
			for i, r := range d.Routes {
				if r.SellIndex == coef.Index || r.BuyIndex == coef.Index || r.FreightIndex == coef.Index {
					load += coef.Value * tons[i]
				}
			}
		}
		if c.Bound > 0 && load >= c.Bound*0.999 {
			best := 0.0
			for _, m := range margins {
				if m > best {
					best = m
				}
			}
			if shadow < bridge.MaxShadowPrices {
				out.Shadows[shadow] = bridge.RawShadowPrice{ConstraintIndex: int32(ci), Price: best}
			}
			shadow++
		}
	}
	out.ShadowCount = int32(shadow)

	out.Status = 0 // optimal (of the stand-in heuristic)
	out.Profit = totalProfit
	out.Tons = totalTons
	out.Cost = totalCost
	if totalCost > 0 {
		out.ROI = totalProfit / totalCost
	}
}

func perturb(rng *rand.Rand, center float64, p descriptor.PerturbationSpec) float64 {
	switch p.Dist {
	case descriptor.DistNormal:
		return center + p.P1 + rng.NormFloat64()*p.P2
	case descriptor.DistUniform:
		return center + p.P1 + rng.Float64()*(p.P2-p.P1)
	case descriptor.DistTriangular:
		// Sum of two uniforms peaks at the midpoint.
		u := (rng.Float64() + rng.Float64()) / 2
		return center + p.P1 + u*(p.P2-p.P1)
	default:
		return center
	}
}

// percentile interpolates over a sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func meanStddev(vals []float64) (mean, stddev float64) {
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	if len(vals) < 2 {
		return mean, 0
	}
	var ss float64
	for _, v := range vals {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(vals)-1))
}

func pearson(xs, ys []float64) float64 {
	mx, _ := meanStddev(xs)
	my, _ := meanStddev(ys)
	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0
	}
	return cov / math.Sqrt(vx*vy)
}
