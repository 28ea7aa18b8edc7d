// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package queue is the durable offline queue for completed solve results.
//
// Results survive connectivity loss in BadgerDB and reach the server
// at-least-once, in creation order, deduplicated server-side by idempotency
// key. Appends may run concurrently with an in-progress flush; flush itself
// is serialized and coalesced, with at most one in-flight upload at a time.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianMobile/services/mobile/storage"
)

const (
	savePrefix = "save:"
	idemPrefix = "idem:"
)

func saveKey(seq uint64) []byte {
	// Zero-padded so lexicographic key order is creation order.
	return []byte(fmt.Sprintf("%s%020d", savePrefix, seq))
}

func idemKey(key string) []byte {
	return []byte(idemPrefix + key)
}

// Uploader delivers one queued save to the server. Implementations must
// send the entry's idempotency key so server-side retries deduplicate.
type Uploader interface {
	Upload(ctx context.Context, entry *QueuedSave) error
}

// Queue is the durable offline queue.
//
// Thread Safety: safe for concurrent use. Enqueue calls serialize among
// themselves but proceed concurrently with flush; concurrent Flush calls
// coalesce into the single in-progress flush.
type Queue struct {
	store    *storage.Store
	uploader Uploader
	logger   *slog.Logger

	appendMu sync.Mutex
	nextSeq  uint64

	flights singleflight.Group

	mu     sync.Mutex
	closed bool
}

// New opens the queue over the given store and resumes sequence numbering
// from the newest surviving entry.
//
// Outputs:
//
//	*Queue - Ready for use. The caller retains ownership of the store.
//	error - Non-nil if the store scan fails.
func New(store *storage.Store, uploader Uploader, logger *slog.Logger) (*Queue, error) {
	if store == nil {
		return nil, fmt.Errorf("store must not be nil")
	}
	if uploader == nil {
		return nil, fmt.Errorf("uploader must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		store:    store,
		uploader: uploader,
		logger:   logger.With(slog.String("component", "offline_queue")),
	}

	depth := 0
	err := store.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(savePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			entry, err := decodeEntry(it.Item())
			if err != nil {
				return err
			}
			if entry.Seq >= q.nextSeq {
				q.nextSeq = entry.Seq + 1
			}
			depth++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan queue: %w", err)
	}
	queueDepth.Set(float64(depth))
	if depth > 0 {
		q.logger.Info("resuming offline queue", slog.Int("pending", depth))
	}
	return q, nil
}

func decodeEntry(item *badger.Item) (*QueuedSave, error) {
	var entry QueuedSave
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return nil, fmt.Errorf("decode queue entry %s: %w", item.Key(), err)
	}
	return &entry, nil
}

// Close rejects further operations. It does not close the underlying store.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Enqueue durably appends a completed solve result for upload.
//
// Description:
//
//	The entry is written (and fsynced) before Enqueue returns: a storage
//	failure here is surfaced synchronously, never swallowed, because a
//	silently dropped result would break the at-least-once guarantee.
//	Re-enqueuing a payload whose idempotency key already exists in a
//	non-acked state is a no-op returning the existing entry.
//
// Outputs:
//
//	*QueuedSave - The durable entry (existing one on duplicate).
//	error - Validation or storage failure.
func (q *Queue) Enqueue(payload SavePayload) (*QueuedSave, error) {
	if q.isClosed() {
		return nil, ErrQueueClosed
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	key, err := payload.idempotencyKey()
	if err != nil {
		return nil, err
	}

	q.appendMu.Lock()
	defer q.appendMu.Unlock()

	// Duplicate suppression: same descriptor + same result content maps to
	// the existing pending entry.
	var existing *QueuedSave
	err = q.store.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idemKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var ref []byte
		if err := item.Value(func(val []byte) error {
			ref = append(ref, val...)
			return nil
		}); err != nil {
			return err
		}
		saved, err := txn.Get(ref)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existing, err = decodeEntry(saved)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("check idempotency key: %w", err)
	}
	if existing != nil {
		duplicatesTotal.Inc()
		q.logger.Debug("duplicate enqueue suppressed",
			slog.String("idempotency_key", key),
			slog.Uint64("seq", existing.Seq))
		return existing, nil
	}

	entry := &QueuedSave{
		ID:             uuid.NewString(),
		Seq:            q.nextSeq,
		IdempotencyKey: key,
		CreatedAt:      time.Now().UTC(),
		State:          StatePending,
		Payload:        payload,
	}
	if err := q.writeEntry(entry, true); err != nil {
		return nil, fmt.Errorf("durable enqueue: %w", err)
	}
	q.nextSeq++

	enqueuedTotal.Inc()
	queueDepth.Inc()
	q.logger.Debug("enqueued solve result",
		slog.Uint64("seq", entry.Seq),
		slog.String("idempotency_key", key))
	return entry, nil
}

// writeEntry persists the entry, and on first write also the idempotency
// index pointing at it.
func (q *Queue) writeEntry(entry *QueuedSave, indexKey bool) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode queue entry: %w", err)
	}
	return q.store.Update(func(txn *badger.Txn) error {
		if err := txn.Set(saveKey(entry.Seq), data); err != nil {
			return err
		}
		if indexKey {
			return txn.Set(idemKey(entry.IdempotencyKey), saveKey(entry.Seq))
		}
		return nil
	})
}

// Flush uploads pending and failed entries in creation order.
//
// Description:
//
//	At most one flush runs at a time; concurrent calls (manual and
//	reconnect-triggered) coalesce into the in-progress one and share its
//	result. Uploads are strictly one-at-a-time and stop at the first
//	failure so later entries are never attempted out of order. Acked
//	entries are deleted; a failed entry stays for the next flush.
//
// Outputs:
//
//	error - Nil when the queue drained; ErrUploadFailed (wrapped) on the
//	        first failed upload; ctx.Err() if cancelled between uploads.
func (q *Queue) Flush(ctx context.Context) error {
	if q.isClosed() {
		return ErrQueueClosed
	}
	_, err, _ := q.flights.Do("flush", func() (interface{}, error) {
		start := time.Now()
		defer func() { flushDuration.Observe(time.Since(start).Seconds()) }()
		return nil, q.flush(ctx)
	})
	return err
}

func (q *Queue) flush(ctx context.Context) error {
	entries, err := q.Pending()
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		entry.State = StateInFlight
		if err := q.writeEntry(entry, false); err != nil {
			return fmt.Errorf("mark in_flight: %w", err)
		}

		if uploadErr := q.uploader.Upload(ctx, entry); uploadErr != nil {
			entry.State = StateFailed
			entry.Attempts++
			entry.LastError = uploadErr.Error()
			if err := q.writeEntry(entry, false); err != nil {
				return fmt.Errorf("mark failed: %w", err)
			}
			uploadFailuresTotal.Inc()
			q.logger.Warn("upload failed, halting flush",
				slog.Uint64("seq", entry.Seq),
				slog.Int("attempts", entry.Attempts),
				slog.String("error", uploadErr.Error()))
			return fmt.Errorf("%w: entry seq %d: %w", ErrUploadFailed, entry.Seq, uploadErr)
		}

		if err := q.remove(entry); err != nil {
			return err
		}
		uploadedTotal.Inc()
		queueDepth.Dec()
		q.logger.Debug("entry acknowledged", slog.Uint64("seq", entry.Seq))
	}
	return nil
}

func (q *Queue) remove(entry *QueuedSave) error {
	return q.store.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(saveKey(entry.Seq)); err != nil {
			return err
		}
		return txn.Delete(idemKey(entry.IdempotencyKey))
	})
}

// Pending returns all entries awaiting upload, in creation order. Entries
// left in_flight by a crash are included: the idempotency key makes
// re-uploading them safe.
func (q *Queue) Pending() ([]*QueuedSave, error) {
	var entries []*QueuedSave
	err := q.store.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(savePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			entry, err := decodeEntry(it.Item())
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	return entries, nil
}

// Depth returns the number of entries awaiting upload.
func (q *Queue) Depth() (int, error) {
	entries, err := q.Pending()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Discard removes a failed entry by idempotency key. Only failed entries
// may be discarded: pending work is not the caller's to drop.
func (q *Queue) Discard(idempotencyKey string) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	var entry *QueuedSave
	err := q.store.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idemKey(idempotencyKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		var ref []byte
		if err := item.Value(func(val []byte) error {
			ref = append(ref, val...)
			return nil
		}); err != nil {
			return err
		}
		saved, err := txn.Get(ref)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		entry, err = decodeEntry(saved)
		return err
	})
	if err != nil {
		return err
	}
	if entry.State != StateFailed {
		return fmt.Errorf("entry seq %d is %s, only failed entries may be discarded", entry.Seq, entry.State)
	}

	if err := q.remove(entry); err != nil {
		return fmt.Errorf("discard entry: %w", err)
	}
	discardedTotal.Inc()
	queueDepth.Dec()
	q.logger.Info("discarded failed entry",
		slog.Uint64("seq", entry.Seq),
		slog.Int("attempts", entry.Attempts))
	return nil
}
