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
	"context"

	"github.com/erigontech/starknet-erigon/core/types"
	"github.com/erigontech/starknet-erigon/kv"
)

var baseLayerMarkerKey = []byte("base_layer")

// AppendBaseLayerBlock records that the L1 state-update adapter has
// confirmed blockNumber, enforcing marker == blockNumber and advancing the
// base-layer marker (§4.3). Besides the marker it stores only the confirmed
// block's hash, under one singleton key of kv.BaseLayerMarker that each
// append overwrites; there are no per-block rows (§3.1): the base layer only ever
// agrees with data already committed by the other four dimensions, it
// never introduces new data of its own.
func (s *Storage) AppendBaseLayerBlock(ctx context.Context, blockNumber types.BlockNumber, blockHash types.BlockHash) error {
	return s.update(ctx, func(tx kv.RwTx) error {
		if err := checkAndAdvanceMarker(tx, types.MarkerBaseLayer, blockNumber); err != nil {
			return err
		}
		return tx.Put(kv.BaseLayerMarker, baseLayerMarkerKey, blockHash[:])
	})
}

// BaseLayerMarker returns the base-layer dimension's current marker value:
// one past the highest block number the L1 adapter has confirmed.
func (s *Storage) BaseLayerMarker(ctx context.Context) (types.BlockNumber, error) {
	var m types.BlockNumber
	err := s.view(ctx, func(tx kv.Tx) error {
		var err error
		m, err = getMarker(tx, types.MarkerBaseLayer)
		return err
	})
	return m, err
}

// BaseLayerHash returns the block hash last confirmed by the L1 adapter.
func (s *Storage) BaseLayerHash(ctx context.Context) (types.BlockHash, bool, error) {
	var hash types.BlockHash
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		v, ok, err := tx.GetOne(kv.BaseLayerMarker, baseLayerMarkerKey)
		if err != nil || !ok {
			return err
		}
		copy(hash[:], v)
		found = true
		return nil
	})
	return hash, found, err
}

// RevertBaseLayer sets the base-layer marker back to blockNumber (§4.4).
// There is no per-block data to remove: see AppendBaseLayerBlock.
func (s *Storage) RevertBaseLayer(ctx context.Context, blockNumber types.BlockNumber) error {
	return s.update(ctx, func(tx kv.RwTx) error {
		return setMarker(tx, types.MarkerBaseLayer, blockNumber)
	})
}
