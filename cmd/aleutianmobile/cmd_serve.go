// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMobile/services/mobile/api"
	"github.com/AleutianAI/AleutianMobile/services/mobile/auth"
	"github.com/AleutianAI/AleutianMobile/services/mobile/live"
	"github.com/AleutianAI/AleutianMobile/services/mobile/server"
	"github.com/AleutianAI/AleutianMobile/services/solver/descriptor"
)

// runServe starts the local development server, seeded with a demo model
// per configured product group. With --feed it also random-walks the river
// stage to drive websocket subscribers.
func runServe(cmd *cobra.Command, args []string) error {
	srv, err := server.New(server.Options{
		Validator:        auth.NewDevValidator(cfg.Development()),
		SnapshotDebounce: cfg.Server.SnapshotDebounce,
		Logger:           logger,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	for _, group := range cfg.Live.ProductGroups {
		if err := seedDemoModel(srv, group); err != nil {
			return fmt.Errorf("seeding model for %s: %w", group, err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if feedInterval != "" {
		interval, err := time.ParseDuration(feedInterval)
		if err != nil || interval <= 0 {
			return fmt.Errorf("invalid --feed interval %q", feedInterval)
		}
		go runFeed(ctx, srv, interval)
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpSrv := &http.Server{Addr: addr, Handler: srv.Router()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("development server listening",
			"addr", addr,
			"groups", cfg.Live.ProductGroups)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// seedDemoModel publishes the Donaldsonville-to-St. Louis demo topology so
// clients have something to solve against out of the box.
func seedDemoModel(srv *server.Server, group string) error {
	d := &descriptor.ModelDescriptor{
		VariableCount: 6,
		Routes: []descriptor.Route{
			// nola_buy -> sell_stl over fr_don_stl
			{SellIndex: 3, BuyIndex: 2, FreightIndex: 4, TransitCost: 6.25, UnitCapacity: 1500},
		},
		Constraints: []descriptor.Constraint{
			{Kind: descriptor.ConstraintSupply, Bound: 24000,
				Coefficients: []descriptor.Coefficient{{Index: 2, Value: 1}}},
			{Kind: descriptor.ConstraintFleet, Bound: 16,
				Coefficients: []descriptor.Coefficient{{Index: 5, Value: 1}}},
		},
		Objective: descriptor.ObjectiveMaxProfit,
		Perturbations: []descriptor.PerturbationSpec{
			{Index: 0, Dist: descriptor.DistNormal, P1: 0, P2: 1.2},
			{Index: 4, Dist: descriptor.DistTriangular, P1: -3, P2: 5},
		},
	}
	raw, err := descriptor.Encode(d)
	if err != nil {
		return err
	}
	srv.Store().PutModel(&server.ModelRecord{
		ProductGroup:  group,
		Version:       1,
		Descriptor:    raw,
		VariableOrder: []string{"river_stage", "lock_hrs", "nola_buy", "sell_stl", "fr_don_stl", "barge_count"},
		Variables: map[string]float64{
			"river_stage": 14.2,
			"lock_hrs":    6,
			"nola_buy":    285,
			"sell_stl":    342,
			"fr_don_stl":  21.5,
			"barge_count": 12,
		},
	})
	srv.Store().PutThresholds(&api.ThresholdsResponse{
		ProductGroup: group,
		Thresholds: []api.Threshold{
			{VariableKey: "river_stage", Delta: 0.5, Severity: "critical"},
			{VariableKey: "lock_hrs", Delta: 2, Severity: "warning"},
			{VariableKey: "nola_buy", Delta: 2, Severity: "warning"},
			{VariableKey: "fr_don_stl", Delta: 3, Severity: "warning"},
		},
	})
	return nil
}

// runFeed random-walks the river stage on every configured group until the
// context ends, raising a delta breach once the stage drifts more than the
// seeded 0.5 ft band away from its published baseline.
func runFeed(ctx context.Context, srv *server.Server, interval time.Duration) {
	const (
		baseline = 14.2
		band     = 0.5
	)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	stages := make(map[string]float64, len(cfg.Live.ProductGroups))
	for _, group := range cfg.Live.ProductGroups {
		stages[group] = baseline
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, group := range cfg.Live.ProductGroups {
			stages[group] += rng.NormFloat64() * 0.3
			stage := stages[group]
			if err := srv.SetVariable(group, "river_stage", stage); err != nil {
				logger.Warn("feed update failed", "error", err.Error())
				continue
			}
			if delta := stage - baseline; math.Abs(delta) >= band {
				srv.PublishBreach(live.ThresholdBreach{
					ProductGroup: group,
					AlertID:      uuid.NewString(),
					VariableKey:  "river_stage",
					Current:      stage,
					Baseline:     baseline,
					Delta:        delta,
					Threshold:    band,
					Severity:     "critical",
				})
			}
		}
	}
}
