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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath   string
	logFile      string
	productGroup string
	monteCarlo   bool
	feedInterval string

	rootCmd = &cobra.Command{
		Use:   "aleutianmobile",
		Short: "Mobile solve bridge for the Aleutian trading platform",
		Long: `aleutianmobile runs LP solves and Monte Carlo sweeps against a
platform model descriptor, queues results durably while offline, and
follows live variable updates over a websocket.`,
	}

	// --- Dev Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the local development server (REST + websocket)",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Solves ---
	solveCmd = &cobra.Command{
		Use:   "solve",
		Short: "Load the model, run one solve, and queue the result",
		RunE:  runSolve, // Defined in cmd_solve.go
	}

	// --- Live Updates ---
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to live variable updates and alerts",
		RunE:  runWatch, // Defined in cmd_watch.go
	}

	// --- Offline Queue ---
	queueCmd = &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the offline save queue",
	}
	queueListCmd = &cobra.Command{
		Use:   "list",
		Short: "List queued saves not yet acknowledged by the platform",
		RunE:  runQueueList, // Defined in cmd_queue.go
	}
	queueFlushCmd = &cobra.Command{
		Use:   "flush",
		Short: "Upload queued saves in creation order",
		RunE:  runQueueFlush, // Defined in cmd_queue.go
	}
	queueDiscardCmd = &cobra.Command{
		Use:   "discard [idempotency_key]",
		Short: "Drop a failed save from the queue",
		Args:  cobra.ExactArgs(1),
		RunE:  runQueueDiscard, // Defined in cmd_queue.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Duplicate logs to a JSON file")

	solveCmd.Flags().StringVarP(&productGroup, "group", "g", "", "Product group (default: first configured group)")
	solveCmd.Flags().BoolVar(&monteCarlo, "monte-carlo", false, "Run a Monte Carlo sweep instead of a single solve")

	serveCmd.Flags().StringVar(&feedInterval, "feed", "", "Emit synthetic variable updates at this interval (e.g. 2s)")

	queueCmd.AddCommand(queueListCmd, queueFlushCmd, queueDiscardCmd)
	rootCmd.AddCommand(serveCmd, solveCmd, watchCmd, queueCmd)
}
