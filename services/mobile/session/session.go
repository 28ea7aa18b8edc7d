// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session coordinates the mobile solve loop: fetch a model, overlay
// live variable updates, run solves through the bridge, and park results in
// the offline queue until they reach the server.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianMobile/services/mobile/api"
	"github.com/AleutianAI/AleutianMobile/services/mobile/live"
	"github.com/AleutianAI/AleutianMobile/services/mobile/queue"
	"github.com/AleutianAI/AleutianMobile/services/solver/bridge"
	"github.com/AleutianAI/AleutianMobile/services/solver/descriptor"
)

// ErrModelNotLoaded indicates a solve was requested for a product group
// whose model has not been fetched yet.
var ErrModelNotLoaded = errors.New("model not loaded")

// PlatformAPI is the slice of the REST client the session needs.
type PlatformAPI interface {
	GetModel(ctx context.Context, productGroup string) (*api.ModelResponse, error)
	GetThresholds(ctx context.Context, productGroup string) (*api.ThresholdsResponse, error)
}

// Model is a loaded, decode-validated model for one product group.
type Model struct {
	ProductGroup string
	Version      int64

	// Descriptor is the decoded topology; Hash identifies its encoding.
	Descriptor *descriptor.ModelDescriptor
	Hash       string

	// VariableOrder maps descriptor indices to variable keys.
	VariableOrder []string

	// Baseline is the variable vector the model was published with,
	// keyed by variable key.
	Baseline map[string]float64
}

// groupSession is the per-group mutable state.
type groupSession struct {
	mu       sync.Mutex
	model    *Model
	liveVars map[string]float64
}

// Options configures a Session.
type Options struct {
	API    PlatformAPI
	Bridge *bridge.Bridge
	Queue  *queue.Queue

	// Scenarios is the Monte Carlo scenario count. Default 1000.
	Scenarios int

	Logger *slog.Logger
}

// Session is the mobile solve coordinator.
//
// Thread Safety: safe for concurrent use; per-group state is locked
// independently.
type Session struct {
	apiClient PlatformAPI
	bridge    *bridge.Bridge
	queue     *queue.Queue
	scenarios int
	logger    *slog.Logger

	mu     sync.Mutex
	groups map[string]*groupSession
}

// New validates options and builds a session with no models loaded.
func New(opts Options) (*Session, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("api client must not be nil")
	}
	if opts.Bridge == nil {
		return nil, fmt.Errorf("bridge must not be nil")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("queue must not be nil")
	}
	if opts.Scenarios <= 0 {
		opts.Scenarios = 1000
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		apiClient: opts.API,
		bridge:    opts.Bridge,
		queue:     opts.Queue,
		scenarios: opts.Scenarios,
		logger:    logger.With(slog.String("component", "mobile_session")),
		groups:    make(map[string]*groupSession),
	}, nil
}

func (s *Session) group(productGroup string) *groupSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[productGroup]
	if !ok {
		g = &groupSession{liveVars: make(map[string]float64)}
		s.groups[productGroup] = g
	}
	return g
}

// LoadModel fetches and decodes the current model for a product group. The
// decoded topology replaces any previously loaded one; live variable
// overlays survive the reload.
//
// Outputs:
//
//	*Model - The loaded model.
//	error - API failure, or ErrMalformedDescriptor (wrapped) when the
//	        server's descriptor fails structural decode; the caller should
//	        refetch.
func (s *Session) LoadModel(ctx context.Context, productGroup string) (*Model, error) {
	resp, err := s.apiClient.GetModel(ctx, productGroup)
	if err != nil {
		return nil, err
	}

	d, err := descriptor.Decode(resp.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("model for %s: %w", productGroup, err)
	}
	if len(resp.VariableOrder) != d.VariableCount {
		return nil, fmt.Errorf("model for %s: %w: variable order lists %d keys, descriptor declares %d",
			productGroup, descriptor.ErrMalformedDescriptor, len(resp.VariableOrder), d.VariableCount)
	}

	hash, err := descriptor.Hash(d)
	if err != nil {
		return nil, fmt.Errorf("model for %s: %w", productGroup, err)
	}

	baseline := make(map[string]float64, len(resp.Variables))
	for k, v := range resp.Variables {
		baseline[k] = v
	}
	model := &Model{
		ProductGroup:  productGroup,
		Version:       resp.Version,
		Descriptor:    d,
		Hash:          hash,
		VariableOrder: resp.VariableOrder,
		Baseline:      baseline,
	}

	g := s.group(productGroup)
	g.mu.Lock()
	g.model = model
	g.mu.Unlock()

	s.logger.Info("model loaded",
		slog.String("group", productGroup),
		slog.Int64("version", resp.Version),
		slog.Int("variables", d.VariableCount))
	return model, nil
}

// Variables assembles the current solve vector for a group: the model
// baseline with live updates overlaid, in descriptor index order.
func (s *Session) Variables(productGroup string) ([]float64, error) {
	g := s.group(productGroup)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.model == nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, productGroup)
	}

	vec := make([]float64, len(g.model.VariableOrder))
	for i, key := range g.model.VariableOrder {
		v, ok := g.liveVars[key]
		if !ok {
			v = g.model.Baseline[key]
		}
		vec[i] = v
	}
	return vec, nil
}

// Solve runs a single solve on the current variables and durably enqueues
// the result for upload.
func (s *Session) Solve(ctx context.Context, productGroup string) (*bridge.SolveResult, *queue.QueuedSave, error) {
	model, vec, err := s.solveInputs(productGroup)
	if err != nil {
		return nil, nil, err
	}

	outcome := s.bridge.SubmitSolve(ctx, model.Descriptor, vec).Wait()
	if outcome.Err != nil {
		return nil, nil, outcome.Err
	}

	entry, err := s.queue.Enqueue(queue.SavePayload{
		DescriptorHash: model.Hash,
		Variables:      vec,
		Solve:          outcome.Result,
	})
	if err != nil {
		return outcome.Result, nil, fmt.Errorf("solve completed but enqueue failed: %w", err)
	}
	return outcome.Result, entry, nil
}

// MonteCarlo runs a scenario sweep on the current variables and durably
// enqueues the result for upload.
func (s *Session) MonteCarlo(ctx context.Context, productGroup string) (*bridge.MonteCarloResult, *queue.QueuedSave, error) {
	model, vec, err := s.solveInputs(productGroup)
	if err != nil {
		return nil, nil, err
	}

	outcome := s.bridge.SubmitMonteCarlo(ctx, model.Descriptor, vec, s.scenarios).Wait()
	if outcome.Err != nil {
		return nil, nil, outcome.Err
	}

	entry, err := s.queue.Enqueue(queue.SavePayload{
		DescriptorHash: model.Hash,
		Variables:      vec,
		MonteCarlo:     outcome.Result,
	})
	if err != nil {
		return outcome.Result, nil, fmt.Errorf("monte carlo completed but enqueue failed: %w", err)
	}
	return outcome.Result, entry, nil
}

func (s *Session) solveInputs(productGroup string) (*Model, []float64, error) {
	g := s.group(productGroup)
	g.mu.Lock()
	model := g.model
	g.mu.Unlock()
	if model == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, productGroup)
	}
	vec, err := s.Variables(productGroup)
	if err != nil {
		return nil, nil, err
	}
	return model, vec, nil
}

// Flush uploads queued results now. Safe to call concurrently with the
// reconnect-triggered flush; both coalesce.
func (s *Session) Flush(ctx context.Context) error {
	return s.queue.Flush(ctx)
}

// Handlers returns live-client handlers wired into this session: snapshots
// and deltas feed the variable overlay, reconnects flush the queue.
// Compose additional callbacks around them as needed.
func (s *Session) Handlers() live.Handlers {
	return live.Handlers{
		OnSnapshot: func(snapshot live.VariableSnapshot) {
			g := s.group(snapshot.ProductGroup)
			g.mu.Lock()
			g.liveVars = make(map[string]float64, len(snapshot.Variables))
			for k, v := range snapshot.Variables {
				g.liveVars[k] = v
			}
			g.mu.Unlock()
		},
		OnVariableChanged: func(change live.VariableChanged, _ live.VariableSnapshot) {
			g := s.group(change.ProductGroup)
			g.mu.Lock()
			g.liveVars[change.Key] = change.Value
			g.mu.Unlock()
		},
		OnReconnect: func(attempt int) {
			s.logger.Info("connection restored, flushing offline queue", slog.Int("attempt", attempt))
			if err := s.queue.Flush(context.Background()); err != nil {
				s.logger.Warn("reconnect flush failed", slog.String("error", err.Error()))
			}
		},
		OnTerminal: func(err error) {
			s.logger.Error("live channel gave up", slog.String("error", err.Error()))
		},
	}
}
