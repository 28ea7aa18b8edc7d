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
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// runSolve loads the model for one product group, runs a solve (or Monte
// Carlo sweep), prints the result, and attempts to flush the queue. A failed
// flush is not an error: the save stays queued for the next flush.
func runSolve(cmd *cobra.Command, args []string) error {
	group, err := resolveGroup()
	if err != nil {
		return err
	}
	rt, err := newSession()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx := cmd.Context()
	model, err := rt.session.LoadModel(ctx, group)
	if err != nil {
		return fmt.Errorf("loading model for %s: %w", group, err)
	}
	logger.Info("model loaded",
		"product_group", group,
		"version", model.Version,
		"variables", len(model.VariableOrder))

	var result interface{}
	var idemKey string
	if monteCarlo {
		mc, entry, err := rt.session.MonteCarlo(ctx, group)
		if err != nil {
			return fmt.Errorf("monte carlo: %w", err)
		}
		result, idemKey = mc, entry.IdempotencyKey
	} else {
		solve, entry, err := rt.session.Solve(ctx, group)
		if err != nil {
			return fmt.Errorf("solve: %w", err)
		}
		result, idemKey = solve, entry.IdempotencyKey
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	logger.Info("result queued", "idempotency_key", idemKey)

	if err := rt.session.Flush(ctx); err != nil {
		depth, _ := rt.queue.Depth()
		logger.Warn("flush failed, result remains queued",
			"error", err.Error(),
			"queue_depth", depth)
	}
	return nil
}
