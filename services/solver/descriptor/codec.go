// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package descriptor

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// Wire layout, all little-endian, no optional fields:
//
//	header:       u32 variables, u32 routes, u32 constraints,
//	              u32 perturbations, u8 objective mode
//	route:        u32 sell, u32 buy, u32 freight, f64 transit, f64 capacity
//	constraint:   u8 kind, f64 bound, u32 ncoef, ncoef x (u32 index, f64 value)
//	perturbation: u32 index, u8 distribution, f64 p1, f64 p2
//
// An absent perturbation list encodes as a zero count, not as a missing
// section.

const headerSize = 4*4 + 1

// Encode serializes the descriptor into its binary wire form.
//
// Description:
//
//	Pure and total over well-formed input: equal descriptors always encode
//	to equal bytes. The topology is validated first; ill-formed input
//	returns ErrInvalidTopology and no bytes.
//
// Outputs:
//
//	[]byte - The wire form. Owned by the caller.
//	error - ErrInvalidTopology (wrapped) if d violates its invariants.
func Encode(d *ModelDescriptor) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTopology, err)
	}

	var buf bytes.Buffer
	writeU32 := func(v int) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		buf.Write(b[:])
	}
	writeF64 := func(v float64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		buf.Write(b[:])
	}

	writeU32(d.VariableCount)
	writeU32(len(d.Routes))
	writeU32(len(d.Constraints))
	writeU32(len(d.Perturbations))
	buf.WriteByte(byte(d.Objective))

	for _, r := range d.Routes {
		writeU32(r.SellIndex)
		writeU32(r.BuyIndex)
		writeU32(r.FreightIndex)
		writeF64(r.TransitCost)
		writeF64(r.UnitCapacity)
	}
	for _, c := range d.Constraints {
		buf.WriteByte(byte(c.Kind))
		writeF64(c.Bound)
		writeU32(len(c.Coefficients))
		for _, coef := range c.Coefficients {
			writeU32(coef.Index)
			writeF64(coef.Value)
		}
	}
	for _, p := range d.Perturbations {
		writeU32(p.Index)
		buf.WriteByte(byte(p.Dist))
		writeF64(p.P1)
		writeF64(p.P2)
	}

	return buf.Bytes(), nil
}

// Decode parses the binary wire form back into a ModelDescriptor.
//
// Description:
//
//	The inverse of Encode: Decode(Encode(d)) == d for every well-formed d.
//	Decoding is strict. A declared count that does not match the bytes
//	remaining, trailing garbage, an unknown tag, or an index reference out
//	of range for the declared variable count all fail with
//	ErrMalformedDescriptor.
//
// Outputs:
//
//	*ModelDescriptor - The decoded topology. Owned by the caller.
//	error - ErrMalformedDescriptor (wrapped) on any structural failure.
func Decode(data []byte) (*ModelDescriptor, error) {
	r := &byteReader{data: data}

	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d-byte header", ErrMalformedDescriptor, len(data), headerSize)
	}

	varCount := r.u32()
	routeCount := r.u32()
	constraintCount := r.u32()
	perturbationCount := r.u32()
	objective := ObjectiveMode(r.u8())
	if !objective.Valid() {
		return nil, fmt.Errorf("%w: unknown objective mode %d", ErrMalformedDescriptor, uint8(objective))
	}

	d := &ModelDescriptor{
		VariableCount: int(varCount),
		Objective:     objective,
	}
	checkIndex := func(what string, idx uint32) error {
		if idx >= varCount {
			return fmt.Errorf("%w: %s index %d out of range for %d variables", ErrMalformedDescriptor, what, idx, varCount)
		}
		return nil
	}

	d.Routes = make([]Route, 0, routeCount)
	for i := uint32(0); i < routeCount; i++ {
		if !r.need(3*4 + 2*8) {
			return nil, fmt.Errorf("%w: route array truncated at record %d", ErrMalformedDescriptor, i)
		}
		sell, buy, freight := r.u32(), r.u32(), r.u32()
		if err := checkIndex("route sell", sell); err != nil {
			return nil, err
		}
		if err := checkIndex("route buy", buy); err != nil {
			return nil, err
		}
		if err := checkIndex("route freight", freight); err != nil {
			return nil, err
		}
		d.Routes = append(d.Routes, Route{
			SellIndex:    int(sell),
			BuyIndex:     int(buy),
			FreightIndex: int(freight),
			TransitCost:  r.f64(),
			UnitCapacity: r.f64(),
		})
	}

	d.Constraints = make([]Constraint, 0, constraintCount)
	for i := uint32(0); i < constraintCount; i++ {
		if !r.need(1 + 8 + 4) {
			return nil, fmt.Errorf("%w: constraint array truncated at record %d", ErrMalformedDescriptor, i)
		}
		kind := ConstraintKind(r.u8())
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: unknown constraint kind %d", ErrMalformedDescriptor, uint8(kind))
		}
		bound := r.f64()
		ncoef := r.u32()
		// 64-bit compare: int(ncoef)*12 can wrap on 32-bit targets for an
		// adversarial count before the bound is checked.
		if int64(ncoef)*(4+8) > int64(r.remaining()) {
			return nil, fmt.Errorf("%w: constraint %d declares %d coefficients but %d bytes remain", ErrMalformedDescriptor, i, ncoef, r.remaining())
		}
		coefs := make([]Coefficient, 0, ncoef)
		for j := uint32(0); j < ncoef; j++ {
			idx := r.u32()
			if err := checkIndex("constraint coefficient", idx); err != nil {
				return nil, err
			}
			coefs = append(coefs, Coefficient{Index: int(idx), Value: r.f64()})
		}
		d.Constraints = append(d.Constraints, Constraint{Kind: kind, Bound: bound, Coefficients: coefs})
	}

	d.Perturbations = make([]PerturbationSpec, 0, perturbationCount)
	for i := uint32(0); i < perturbationCount; i++ {
		if !r.need(4 + 1 + 2*8) {
			return nil, fmt.Errorf("%w: perturbation array truncated at record %d", ErrMalformedDescriptor, i)
		}
		idx := r.u32()
		if err := checkIndex("perturbation variable", idx); err != nil {
			return nil, err
		}
		dist := Distribution(r.u8())
		if !dist.Valid() {
			return nil, fmt.Errorf("%w: unknown distribution %d", ErrMalformedDescriptor, uint8(dist))
		}
		d.Perturbations = append(d.Perturbations, PerturbationSpec{
			Index: int(idx),
			Dist:  dist,
			P1:    r.f64(),
			P2:    r.f64(),
		})
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after the last declared record", ErrMalformedDescriptor, r.remaining())
	}
	return d, nil
}

// Hash returns the hex SHA-256 of the wire form, used as the descriptor's
// identity for idempotency keys. Equal topologies hash equal because Encode
// is deterministic.
func Hash(d *ModelDescriptor) (string, error) {
	raw, err := Encode(d)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// byteReader is a bounds-checked little-endian cursor over the wire bytes.
//
// Callers must call need() before a fixed-size read group; the individual
// read methods assume the bytes are present.
type byteReader struct {
	data []byte
	off  int
}

func (r *byteReader) remaining() int { return len(r.data) - r.off }

func (r *byteReader) need(n int) bool { return r.remaining() >= n }

func (r *byteReader) u8() uint8 {
	v := r.data[r.off]
	r.off++
	return v
}

func (r *byteReader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *byteReader) f64() float64 {
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.data[r.off:]))
	r.off += 8
	return v
}
