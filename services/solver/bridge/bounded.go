// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bridge

import "encoding/json"

// Bounded is a sequence copied out of a fixed-capacity native output buffer.
//
// # Description
//
// The native call convention returns fixed-size arrays plus an explicit count
// of actual occupancy. When the engine reports more entries than the buffer
// can hold, the overflow is silently dropped: the bridge copies only the
// first Cap entries, in reported order. Bounded makes that lossy transform
// explicit instead of hiding it behind slicing — Reported carries the
// engine's count, Len what actually survived, and Truncated whether they
// differ.
//
// Truncation is NOT an error. Callers that need exactness must pre-size
// their topologies below the buffer capacity.
type Bounded[T any] struct {
	items    []T
	reported int
	capacity int
}

// boundedOf copies min(reported, cap(buf)) entries of buf into a Bounded.
//
// reported is clamped to zero if the engine hands back a negative count.
func boundedOf[T any](buf []T, reported int) Bounded[T] {
	if reported < 0 {
		reported = 0
	}
	n := reported
	if n > len(buf) {
		n = len(buf)
	}
	items := make([]T, n)
	copy(items, buf[:n])
	return Bounded[T]{items: items, reported: reported, capacity: len(buf)}
}

// Items returns the retained entries in reported order.
//
// The slice is owned by the Bounded; callers must not mutate it.
func (b Bounded[T]) Items() []T { return b.items }

// Len returns the number of retained entries.
func (b Bounded[T]) Len() int { return len(b.items) }

// Cap returns the native buffer capacity the sequence was copied from.
func (b Bounded[T]) Cap() int { return b.capacity }

// Reported returns the occupancy count the engine claimed, which may
// exceed Cap.
func (b Bounded[T]) Reported() int { return b.reported }

// Truncated reports whether entries beyond the buffer capacity were dropped.
func (b Bounded[T]) Truncated() bool { return b.reported > len(b.items) }

// boundedJSON is the wire shape: the truncation evidence travels with the
// items so the server sees the engine's reported count, not just what
// survived.
type boundedJSON[T any] struct {
	Items    []T `json:"items"`
	Reported int `json:"reported"`
	Capacity int `json:"capacity"`
}

// MarshalJSON implements json.Marshaler.
func (b Bounded[T]) MarshalJSON() ([]byte, error) {
	items := b.items
	if items == nil {
		items = []T{}
	}
	return json.Marshal(boundedJSON[T]{Items: items, Reported: b.reported, Capacity: b.capacity})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bounded[T]) UnmarshalJSON(data []byte) error {
	var wire boundedJSON[T]
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	b.items = wire.Items
	b.reported = wire.Reported
	b.capacity = wire.Capacity
	return nil
}
