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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMobile/services/mobile/live"
)

// runWatch subscribes to the configured product groups and prints deltas,
// snapshots, and alerts until interrupted. Session handlers stay wired
// underneath so live values feed later solves and reconnects flush the
// queue.
func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := newSession()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	terminal := make(chan error, 1)
	base := rt.session.Handlers()
	handlers := live.Handlers{
		OnSnapshot: func(sn live.VariableSnapshot) {
			base.OnSnapshot(sn)
			fmt.Printf("[%s] snapshot v%d (%d variables)\n", sn.ProductGroup, sn.Version, len(sn.Variables))
		},
		OnVariableChanged: func(change live.VariableChanged, sn live.VariableSnapshot) {
			base.OnVariableChanged(change, sn)
			fmt.Printf("[%s] %s = %g (v%d)\n", change.ProductGroup, change.Key, change.Value, change.Version)
		},
		OnBreach: func(ev live.ThresholdBreach) {
			fmt.Printf("[%s] BREACH %s: %s moved %+g from %g to %g (band %g)\n",
				ev.ProductGroup, ev.Severity, ev.VariableKey, ev.Delta, ev.Baseline, ev.Current, ev.Threshold)
		},
		OnPipeline: func(ev live.PipelineEvent) {
			fmt.Printf("[%s] pipeline %s: %s %s\n", ev.ProductGroup, ev.Stage, ev.Status, ev.Message)
		},
		OnReconnect: func(attempt int) {
			base.OnReconnect(attempt)
			fmt.Printf("reconnected after %d attempt(s)\n", attempt)
		},
		OnTerminal: func(err error) {
			base.OnTerminal(err)
			terminal <- err
		},
	}

	client, err := live.NewClient(live.Options{
		URL:           cfg.Live.URL,
		Token:         cfg.Platform.Token,
		ProductGroups: cfg.Live.ProductGroups,
		Handlers:      handlers,
		Logger:        logger,
		BackoffBase:   cfg.Live.BackoffBase,
		BackoffCap:    cfg.Live.BackoffCap,
		MaxReconnect:  cfg.Live.MaxReconnect,
	})
	if err != nil {
		return fmt.Errorf("building live client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Live.URL, err)
	}
	defer client.Close()

	logger.Info("watching live updates",
		"url", cfg.Live.URL,
		"groups", cfg.Live.ProductGroups)

	select {
	case <-ctx.Done():
		return nil
	case err := <-terminal:
		if err != nil && !isContextErr(err) {
			return fmt.Errorf("live channel terminated: %w", err)
		}
		return nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
