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

package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/erigontech/starknet-erigon/core/types"
	"github.com/erigontech/starknet-erigon/kv"
)

// MarkerMismatchError is returned when a writer's precondition "marker ==
// block_number" fails (§4.3). The enclosing write transaction is always
// aborted by the caller when this is returned.
type MarkerMismatchError struct {
	Kind     types.MarkerKind
	Expected types.BlockNumber
	Found    types.BlockNumber
}

func (e *MarkerMismatchError) Error() string {
	return fmt.Sprintf("storage: %s marker mismatch: expected %d, found %d", e.Kind, e.Expected, e.Found)
}

func markerKey(kind types.MarkerKind) []byte { return []byte{byte(kind)} }

func encodeBlockNumber(n types.BlockNumber) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func decodeBlockNumber(b []byte) (types.BlockNumber, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("storage: bad block number encoding, len=%d", len(b))
	}
	return types.BlockNumber(binary.BigEndian.Uint64(b)), nil
}

// getMarker reads the current value of one marker dimension. A dimension
// with no entry yet reads as 0, matching "marker == length of that
// dimension" for an empty store.
func getMarker(tx kv.Tx, kind types.MarkerKind) (types.BlockNumber, error) {
	v, ok, err := tx.GetOne(kv.Markers, markerKey(kind))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return decodeBlockNumber(v)
}

// checkAndAdvanceMarker is the precondition+advance step every writer
// mutation performs (§4.3): read the marker, assert it equals blockNumber,
// write the new value at blockNumber+1. It does not commit; the caller's
// transaction is committed (or aborted) as a whole.
func checkAndAdvanceMarker(tx kv.RwTx, kind types.MarkerKind, blockNumber types.BlockNumber) error {
	current, err := getMarker(tx, kind)
	if err != nil {
		return err
	}
	if current != blockNumber {
		return &MarkerMismatchError{Kind: kind, Expected: current, Found: blockNumber}
	}
	return tx.Put(kv.Markers, markerKey(kind), encodeBlockNumber(blockNumber+1))
}

// setMarker force-sets a marker, used only by revert (§3.3: "Markers are
// never decremented except by revert(n), which decrements the affected
// markers to exactly n").
func setMarker(tx kv.RwTx, kind types.MarkerKind, value types.BlockNumber) error {
	return tx.Put(kv.Markers, markerKey(kind), encodeBlockNumber(value))
}

// revertPrecondition reports whether kind's marker currently equals
// blockNumber+1, the only state from which reverting blockNumber is valid
// (§4.4, §8.1's "Revert idempotence"/"Monotone markers"). A caller naming a
// blockNumber the marker hasn't reached yet, or has already reverted past,
// gets a no-op instead of the revert forcing the marker to a value that
// leaves still-present higher rows orphaned.
func revertPrecondition(tx kv.Tx, kind types.MarkerKind, blockNumber types.BlockNumber) (bool, error) {
	current, err := getMarker(tx, kind)
	if err != nil {
		return false, err
	}
	return current == blockNumber+1, nil
}
