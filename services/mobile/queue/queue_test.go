// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianMobile/services/mobile/storage"
	"github.com/AleutianAI/AleutianMobile/services/solver/bridge"
)

// fakeUploader records uploads and fails on demand, keyed by idempotency key.
type fakeUploader struct {
	mu       sync.Mutex
	uploaded []string
	failKeys map[string]error
	delay    time.Duration
}

func (f *fakeUploader) Upload(_ context.Context, entry *QueuedSave) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failKeys[entry.IdempotencyKey]; ok {
		return err
	}
	f.uploaded = append(f.uploaded, entry.IdempotencyKey)
	return nil
}

func (f *fakeUploader) uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploaded...)
}

func newTestQueue(t *testing.T) (*Queue, *fakeUploader) {
	t.Helper()
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	uploader := &fakeUploader{failKeys: map[string]error{}}
	q, err := New(store, uploader, nil)
	require.NoError(t, err)
	return q, uploader
}

func solvePayload(descHash string, profit float64) SavePayload {
	return SavePayload{
		DescriptorHash: descHash,
		Variables:      []float64{100, 50, 30},
		Solve:          &bridge.SolveResult{Status: bridge.StatusOptimal, Profit: profit},
	}
}

// TestIdempotencyKeyStability verifies identical payloads map to one key and
// differing content maps to different keys.
func TestIdempotencyKeyStability(t *testing.T) {
	a := solvePayload("deadbeef", 142500)
	b := solvePayload("deadbeef", 142500)
	c := solvePayload("deadbeef", 99000)
	d := solvePayload("cafef00d", 142500)

	ka, err := a.idempotencyKey()
	require.NoError(t, err)
	kb, err := b.idempotencyKey()
	require.NoError(t, err)
	kc, err := c.idempotencyKey()
	require.NoError(t, err)
	kd, err := d.idempotencyKey()
	require.NoError(t, err)

	assert.Equal(t, ka, kb)
	assert.NotEqual(t, ka, kc)
	assert.NotEqual(t, ka, kd)
}

// TestEnqueueDuplicateSuppressed verifies re-enqueuing the same result is a
// no-op returning the existing entry.
func TestEnqueueDuplicateSuppressed(t *testing.T) {
	q, _ := newTestQueue(t)

	first, err := q.Enqueue(solvePayload("deadbeef", 142500))
	require.NoError(t, err)

	second, err := q.Enqueue(solvePayload("deadbeef", 142500))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Seq, second.Seq)

	depth, err := q.Depth()
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

// TestEnqueueRejectsInvalidPayload covers the missing-hash and
// both-results-set cases.
func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	q, _ := newTestQueue(t)

	_, err := q.Enqueue(SavePayload{Solve: &bridge.SolveResult{}})
	require.Error(t, err)

	_, err = q.Enqueue(SavePayload{
		DescriptorHash: "deadbeef",
		Solve:          &bridge.SolveResult{},
		MonteCarlo:     &bridge.MonteCarloResult{},
	})
	require.Error(t, err)
}

// TestOrderedFlushHaltsAtFirstFailure is the causal-ordering property: with A
// then B pending, a failing A means B is never attempted.
func TestOrderedFlushHaltsAtFirstFailure(t *testing.T) {
	q, uploader := newTestQueue(t)

	a, err := q.Enqueue(solvePayload("deadbeef", 100))
	require.NoError(t, err)
	b, err := q.Enqueue(solvePayload("deadbeef", 200))
	require.NoError(t, err)

	uploader.failKeys[a.IdempotencyKey] = errors.New("server unreachable")

	err = q.Flush(context.Background())
	require.ErrorIs(t, err, ErrUploadFailed)
	assert.Empty(t, uploader.uploads(), "B must not be attempted while A is failed")

	entries, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, StateFailed, entries[0].State)
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, "server unreachable", entries[0].LastError)
	assert.Equal(t, StatePending, entries[1].State)

	// Once A can upload, a retry drains the queue in order.
	delete(uploader.failKeys, a.IdempotencyKey)
	require.NoError(t, q.Flush(context.Background()))
	assert.Equal(t, []string{a.IdempotencyKey, b.IdempotencyKey}, uploader.uploads())

	depth, err := q.Depth()
	require.NoError(t, err)
	assert.Zero(t, depth)
}

// TestFlushCoalesced verifies concurrent flush calls share one in-progress
// flush instead of racing uploads.
func TestFlushCoalesced(t *testing.T) {
	q, uploader := newTestQueue(t)
	uploader.delay = 20 * time.Millisecond

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(solvePayload("deadbeef", float64(i)))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.Flush(context.Background()))
		}()
	}
	wg.Wait()

	assert.Len(t, uploader.uploads(), 3, "each entry uploads exactly once")
}

// TestQueueSurvivesRestart verifies pending entries persist across a store
// reopen and sequence numbering resumes past them.
func TestQueueSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := storage.DefaultConfig(dir)
	cfg.GCInterval = 0

	store, err := storage.Open(cfg)
	require.NoError(t, err)
	uploader := &fakeUploader{failKeys: map[string]error{}}

	q, err := New(store, uploader, nil)
	require.NoError(t, err)
	first, err := q.Enqueue(solvePayload("deadbeef", 100))
	require.NoError(t, err)
	_, err = q.Enqueue(solvePayload("deadbeef", 200))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = storage.Open(cfg)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	q, err = New(store, uploader, nil)
	require.NoError(t, err)

	entries, err := q.Pending()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.IdempotencyKey, entries[0].IdempotencyKey)

	third, err := q.Enqueue(solvePayload("deadbeef", 300))
	require.NoError(t, err)
	assert.Greater(t, third.Seq, entries[1].Seq)

	require.NoError(t, q.Flush(context.Background()))
	assert.Len(t, uploader.uploads(), 3)
}

// TestDiscard verifies only failed entries may be discarded.
func TestDiscard(t *testing.T) {
	q, uploader := newTestQueue(t)

	entry, err := q.Enqueue(solvePayload("deadbeef", 100))
	require.NoError(t, err)

	// Pending entries are not the caller's to drop.
	err = q.Discard(entry.IdempotencyKey)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrEntryNotFound)

	uploader.failKeys[entry.IdempotencyKey] = errors.New("rejected payload")
	require.Error(t, q.Flush(context.Background()))

	require.NoError(t, q.Discard(entry.IdempotencyKey))

	depth, err := q.Depth()
	require.NoError(t, err)
	assert.Zero(t, depth)

	require.ErrorIs(t, q.Discard(entry.IdempotencyKey), ErrEntryNotFound)
}

// TestFlushCancelledContext verifies cancellation between uploads stops the
// flush without corrupting entries.
func TestFlushCancelledContext(t *testing.T) {
	q, uploader := newTestQueue(t)
	_, err := q.Enqueue(solvePayload("deadbeef", 100))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, q.Flush(ctx), context.Canceled)
	assert.Empty(t, uploader.uploads())

	require.NoError(t, q.Flush(context.Background()))
	assert.Len(t, uploader.uploads(), 1)
}

// TestClosedQueue verifies operations after Close fail with ErrQueueClosed.
func TestClosedQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	q.Close()

	_, err := q.Enqueue(solvePayload("deadbeef", 100))
	require.ErrorIs(t, err, ErrQueueClosed)
	require.ErrorIs(t, q.Flush(context.Background()), ErrQueueClosed)
	require.ErrorIs(t, q.Discard("any"), ErrQueueClosed)
}
