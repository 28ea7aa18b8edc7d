// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bridge marshals solve and Monte-Carlo requests across the
// function-call boundary into the native solver engine.
//
// The engine is consumed as an opaque capability (the Engine interface);
// this package owns the request/response marshaling contract around it:
// precondition checks, the fixed-capacity output buffers with their
// truncate-on-overflow policy, the failure taxonomy, and the asynchronous
// task layer that keeps blocking CPU-bound calls off the caller's primary
// thread.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/AleutianAI/AleutianMobile/services/solver/descriptor"
)

// Outcome is the result-or-failure sum a task resolves to. Exactly one of
// Result and Err is set.
type Outcome[T any] struct {
	Result *T
	Err    error
}

// Task is a cancellation-free completion handle for an asynchronous solver
// call.
//
// The completion signal fires exactly once, carrying either a typed result
// or a typed failure — never both, never neither. There is no mid-call
// cancellation: once dispatched, a signal is always eventually delivered.
type Task[T any] struct {
	done chan Outcome[T]
}

func newTask[T any]() *Task[T] {
	// Buffered so the worker never blocks on a caller that hasn't
	// started waiting yet.
	return &Task[T]{done: make(chan Outcome[T], 1)}
}

// Done returns the single-fire completion channel.
func (t *Task[T]) Done() <-chan Outcome[T] { return t.done }

// Wait blocks until the call completes and returns its outcome.
func (t *Task[T]) Wait() Outcome[T] { return <-t.done }

func (t *Task[T]) complete(result *T, err error) {
	t.done <- Outcome[T]{Result: result, Err: err}
	close(t.done)
}

// Options configures a Bridge.
type Options struct {
	// Workers is the size of the dedicated solve pool. Engine calls are
	// blocking and CPU-bound; the pool keeps them off the caller's event
	// loop. Default: max(2, NumCPU).
	Workers int

	// Logger for bridge operations. Default: slog.Default().
	Logger *slog.Logger
}

// Bridge issues solve and Monte-Carlo requests against the native engine.
//
// Concurrent calls are permitted and run in parallel on the worker pool; no
// cross-call ordering is guaranteed between overlapping solves.
//
// Thread Safety: safe for concurrent use.
type Bridge struct {
	engine Engine
	logger *slog.Logger

	jobs chan func()

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a Bridge over the given engine capability and starts its
// worker pool.
//
// Outputs:
//
//	*Bridge - Ready for use. Call Close when done.
//	error - Non-nil if engine is nil.
func New(engine Engine, opts Options) (*Bridge, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine must not be nil")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers < 2 {
			workers = 2
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		engine: engine,
		logger: logger.With(slog.String("component", "solver_bridge")),
		jobs:   make(chan func()),
	}
	b.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go b.worker()
	}
	b.logger.Debug("bridge started", slog.Int("workers", workers))
	return b, nil
}

func (b *Bridge) worker() {
	defer b.wg.Done()
	for job := range b.jobs {
		job()
	}
}

// Close stops the worker pool after in-flight calls complete. Tasks already
// dispatched still deliver their completion signal; new submissions fail
// with ErrBridgeClosed.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.jobs)
	b.mu.Unlock()
	b.wg.Wait()
}

// dispatch hands a job to the pool, failing fast if the bridge is closed.
func (b *Bridge) dispatch(job func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBridgeClosed
	}
	b.jobs <- job
	return nil
}

// =============================================================================
// Synchronous calls
// =============================================================================

// Solve runs a single solve against the engine.
//
// Description:
//
//	Checks that len(variables) equals the descriptor's declared variable
//	count (ErrVariableCountMismatch, no native call made), encodes the
//	topology, invokes the engine, and copies the fixed-capacity output
//	buffers into a typed result. Occupancy counts beyond buffer capacity
//	truncate silently (see Bounded).
//
//	Blocking and CPU-bound; use SubmitSolve from event-loop code.
//
// Outputs:
//
//	*SolveResult - Status optimal/infeasible/unbounded/error plus scalars
//	               and bounded route/shadow-price lists.
//	error - ErrVariableCountMismatch or ErrNativeCallFailed (wrapped).
func (b *Bridge) Solve(d *descriptor.ModelDescriptor, variables []float64) (*SolveResult, error) {
	if len(variables) != d.VariableCount {
		return nil, fmt.Errorf("%w: descriptor declares %d variables, got %d values",
			ErrVariableCountMismatch, d.VariableCount, len(variables))
	}
	raw, err := descriptor.Encode(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNativeCallFailed, err)
	}

	var out RawSolveOutput
	if err := b.callEngine(func() error {
		return b.engine.Solve(raw, variables, &out)
	}); err != nil {
		return nil, err
	}

	result := solveResultFromRaw(&out)
	if result.Routes.Truncated() || result.ShadowPrices.Truncated() {
		b.logger.Warn("solve output truncated to buffer capacity",
			slog.Int("routes_reported", result.Routes.Reported()),
			slog.Int("routes_kept", result.Routes.Len()),
			slog.Int("shadow_reported", result.ShadowPrices.Reported()),
			slog.Int("shadow_kept", result.ShadowPrices.Len()))
	}
	return result, nil
}

// MonteCarlo runs a perturbed scenario sweep against the engine.
//
// Description:
//
//	Same contract as Solve, plus: scenarioCount must be positive, and the
//	sensitivity list is capped at MaxSensitivityEntries with the same
//	truncate-on-overflow policy.
//
// Outputs:
//
//	*MonteCarloResult - Status, scenario counts, distribution statistics,
//	                    bounded sensitivity list.
//	error - ErrVariableCountMismatch, ErrInvalidScenarioCount, or
//	        ErrNativeCallFailed (wrapped).
func (b *Bridge) MonteCarlo(d *descriptor.ModelDescriptor, center []float64, scenarioCount int) (*MonteCarloResult, error) {
	if len(center) != d.VariableCount {
		return nil, fmt.Errorf("%w: descriptor declares %d variables, got %d center values",
			ErrVariableCountMismatch, d.VariableCount, len(center))
	}
	if scenarioCount <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %d",
			ErrInvalidScenarioCount, scenarioCount)
	}
	raw, err := descriptor.Encode(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNativeCallFailed, err)
	}

	var out RawMonteCarloOutput
	if err := b.callEngine(func() error {
		return b.engine.MonteCarlo(raw, center, scenarioCount, &out)
	}); err != nil {
		return nil, err
	}

	result := monteCarloResultFromRaw(&out)
	if result.Sensitivities.Truncated() {
		b.logger.Warn("monte carlo sensitivity output truncated to buffer capacity",
			slog.Int("reported", result.Sensitivities.Reported()),
			slog.Int("kept", result.Sensitivities.Len()))
	}
	return result, nil
}

// callEngine invokes the engine with panic containment. A panic or returned
// error at the native boundary becomes ErrNativeCallFailed; it never crashes
// the caller.
func (b *Bridge) callEngine(call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("engine panicked", slog.Any("panic", r))
			err = fmt.Errorf("%w: engine panic: %v", ErrNativeCallFailed, r)
		}
	}()
	if callErr := call(); callErr != nil {
		return fmt.Errorf("%w: %w", ErrNativeCallFailed, callErr)
	}
	return nil
}

// =============================================================================
// Asynchronous calls
// =============================================================================

// SubmitSolve schedules a solve on the worker pool and returns its
// completion handle.
//
// The context is honored only before dispatch (a cancelled context fails the
// task without a native call); there is no mid-call cancellation.
func (b *Bridge) SubmitSolve(ctx context.Context, d *descriptor.ModelDescriptor, variables []float64) *Task[SolveResult] {
	task := newTask[SolveResult]()
	if err := ctx.Err(); err != nil {
		task.complete(nil, err)
		return task
	}
	if err := b.dispatch(func() {
		task.complete(b.Solve(d, variables))
	}); err != nil {
		task.complete(nil, err)
	}
	return task
}

// SubmitMonteCarlo schedules a Monte Carlo run on the worker pool and
// returns its completion handle. Same dispatch semantics as SubmitSolve.
func (b *Bridge) SubmitMonteCarlo(ctx context.Context, d *descriptor.ModelDescriptor, center []float64, scenarioCount int) *Task[MonteCarloResult] {
	task := newTask[MonteCarloResult]()
	if err := ctx.Err(); err != nil {
		task.complete(nil, err)
		return task
	}
	if err := b.dispatch(func() {
		task.complete(b.MonteCarlo(d, center, scenarioCount))
	}); err != nil {
		task.complete(nil, err)
	}
	return task
}
