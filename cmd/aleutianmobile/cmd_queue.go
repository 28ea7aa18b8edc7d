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
	"fmt"

	"github.com/spf13/cobra"
)

// runQueueList prints pending saves in creation order.
func runQueueList(cmd *cobra.Command, args []string) error {
	rt, err := openQueue()
	if err != nil {
		return err
	}
	defer rt.close()

	entries, err := rt.queue.Pending()
	if err != nil {
		return fmt.Errorf("reading queue: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("queue is empty")
		return nil
	}
	for _, entry := range entries {
		kind := "solve"
		if entry.Payload.MonteCarlo != nil {
			kind = "monte_carlo"
		}
		fmt.Printf("%-6d %-11s %-9s attempts=%d  %s\n",
			entry.Seq, kind, entry.State, entry.Attempts, entry.IdempotencyKey)
		if entry.LastError != "" {
			fmt.Printf("       last error: %s\n", entry.LastError)
		}
	}
	return nil
}

// runQueueFlush uploads pending saves in order, stopping at the first
// failure.
func runQueueFlush(cmd *cobra.Command, args []string) error {
	rt, err := openQueue()
	if err != nil {
		return err
	}
	defer rt.close()

	before, err := rt.queue.Depth()
	if err != nil {
		return err
	}
	if before == 0 {
		fmt.Println("queue is empty")
		return nil
	}

	flushErr := rt.queue.Flush(cmd.Context())
	after, err := rt.queue.Depth()
	if err != nil {
		return err
	}
	fmt.Printf("uploaded %d of %d queued save(s)\n", before-after, before)
	if flushErr != nil {
		return fmt.Errorf("flush stopped: %w", flushErr)
	}
	return nil
}

// runQueueDiscard drops one failed save by idempotency key.
func runQueueDiscard(cmd *cobra.Command, args []string) error {
	rt, err := openQueue()
	if err != nil {
		return err
	}
	defer rt.close()

	if err := rt.queue.Discard(args[0]); err != nil {
		return fmt.Errorf("discarding %s: %w", args[0], err)
	}
	fmt.Printf("discarded %s\n", args[0])
	return nil
}
