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

	"github.com/AleutianAI/AleutianMobile/services/mobile/api"
	"github.com/AleutianAI/AleutianMobile/services/mobile/queue"
	"github.com/AleutianAI/AleutianMobile/services/mobile/session"
	"github.com/AleutianAI/AleutianMobile/services/mobile/storage"
	"github.com/AleutianAI/AleutianMobile/services/solver/bridge"
	"github.com/AleutianAI/AleutianMobile/services/solver/devsolver"
)

// queueRuntime bundles the durable queue and its platform uploader.
type queueRuntime struct {
	store  *storage.Store
	client *api.Client
	queue  *queue.Queue
}

func (r *queueRuntime) close() {
	r.queue.Close()
	if err := r.store.Close(); err != nil {
		logger.Warn("closing queue store", "error", err.Error())
	}
}

// openQueue opens the badger-backed queue at the configured path with the
// platform API client as its uploader.
func openQueue() (*queueRuntime, error) {
	store, err := storage.Open(storage.Config{
		Path:       cfg.Queue.Path,
		SyncWrites: cfg.Queue.SyncWrites,
		GCInterval: cfg.Queue.GCInterval,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening queue store at %s: %w", cfg.Queue.Path, err)
	}
	client := api.NewClient(cfg.Platform.BaseURL, cfg.Platform.Token)
	q, err := queue.New(store, client, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("opening queue: %w", err)
	}
	return &queueRuntime{store: store, client: client, queue: q}, nil
}

// sessionRuntime adds the solve bridge and session on top of the queue.
type sessionRuntime struct {
	*queueRuntime
	bridge  *bridge.Bridge
	session *session.Session
}

func (r *sessionRuntime) close() {
	r.bridge.Close()
	r.queueRuntime.close()
}

// newSession wires the full solve stack. The native engine is not linked
// into this binary; outside development mode there is nothing to solve with.
func newSession() (*sessionRuntime, error) {
	if !cfg.Development() {
		return nil, fmt.Errorf("solving requires development mode: no native engine is linked")
	}
	qr, err := openQueue()
	if err != nil {
		return nil, err
	}
	b, err := bridge.New(devsolver.New(), bridge.Options{
		Workers: cfg.Solver.Workers,
		Logger:  logger,
	})
	if err != nil {
		qr.close()
		return nil, fmt.Errorf("starting solve bridge: %w", err)
	}
	sess, err := session.New(session.Options{
		API:       qr.client,
		Bridge:    b,
		Queue:     qr.queue,
		Scenarios: cfg.Solver.Scenarios,
		Logger:    logger,
	})
	if err != nil {
		b.Close()
		qr.close()
		return nil, fmt.Errorf("starting session: %w", err)
	}
	return &sessionRuntime{queueRuntime: qr, bridge: b, session: sess}, nil
}

// resolveGroup picks the product group for single-group commands.
func resolveGroup() (string, error) {
	if productGroup != "" {
		return productGroup, nil
	}
	if len(cfg.Live.ProductGroups) == 0 {
		return "", fmt.Errorf("no product group configured; pass --group")
	}
	return cfg.Live.ProductGroups[0], nil
}
