// Copyright 2025 The Starknet-Erigon Authors
// This file is part of Starknet-Erigon.
//
// Starknet-Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Starknet-Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Starknet-Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package types holds the block-indexed domain entities of the Starknet data
// model: headers, bodies, state diffs, classes, signatures. These are the
// values that flow from the sync pipeline into storage and back out through
// the read façades; the package has no dependency on storage or sync so it
// can be imported by both without a cycle.
package types

import "fmt"

// BlockNumber is a zero-based, dense, monotone block identifier.
type BlockNumber uint64

// BlockHash is a 32-byte Starknet field element identifying a block.
type BlockHash [32]byte

// Felt is a Starknet field element (~252 bits), stored as a fixed 32-byte
// big-endian value. Arithmetic on field elements is out of scope (§1); this
// type only needs to compare, serialize and hash.
type Felt [32]byte

func (f Felt) String() string { return fmt.Sprintf("0x%x", [32]byte(f)) }

// IsZero reports whether the element is the additive identity.
func (f Felt) IsZero() bool { return f == Felt{} }

// Address is a contract address, represented as a Felt.
type Address = Felt

// ClassHash content-addresses a Sierra or deprecated Cairo-0 class.
type ClassHash = Felt

// CompiledClassHash content-addresses the CASM output of compiling a Sierra
// class.
type CompiledClassHash = Felt

// TransactionHash identifies one transaction within the chain.
type TransactionHash = Felt

// StorageKey identifies one slot within a contract's storage space.
type StorageKey = Felt

// TransactionIndex locates a transaction within a committed block: its block
// number and its zero-based offset within that block's body.
type TransactionIndex struct {
	BlockNumber BlockNumber
	Offset      uint32
}

// EventIndex locates an event within a committed block: the transaction that
// emitted it, and the event's offset within that transaction's output.
type EventIndex struct {
	Transaction    TransactionIndex
	OffsetInTxn    uint32
}

// MarkerKind names one of the five independent progress dimensions (§4.3).
type MarkerKind uint8

const (
	MarkerHeader MarkerKind = iota
	MarkerBody
	MarkerState
	MarkerClass
	MarkerBaseLayer
	markerKindLen
)

func (k MarkerKind) String() string {
	switch k {
	case MarkerHeader:
		return "header"
	case MarkerBody:
		return "body"
	case MarkerState:
		return "state"
	case MarkerClass:
		return "class"
	case MarkerBaseLayer:
		return "base_layer"
	default:
		return "unknown_marker"
	}
}

// AllMarkerKinds enumerates every marker dimension, in MarkerKind order.
var AllMarkerKinds = []MarkerKind{MarkerHeader, MarkerBody, MarkerState, MarkerClass, MarkerBaseLayer}
