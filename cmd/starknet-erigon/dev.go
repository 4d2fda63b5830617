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

package main

import (
	"context"
	"fmt"

	"github.com/erigontech/starknet-erigon/core/types"
)

// devChain is a deterministic, fixed-length header chain with empty bodies
// and state diffs, implementing both central.Client and l1.Adapter so --dev
// can exercise the rest of the node without a real feeder or L1 connection.
// It never reports an L1 confirmation, so the base-layer stream stays a
// no-op the same way fakeL1 does in the driver's own tests.
type devChain struct {
	headers map[types.BlockNumber]types.Header
	tip     types.BlockNumber
}

func newDevChain(length int) *devChain {
	d := &devChain{headers: make(map[types.BlockNumber]types.Header, length)}
	var parent types.BlockHash
	for n := 0; n < length; n++ {
		h := types.Header{
			BlockHash:       devHash(byte(n) + 1),
			ParentHash:      parent,
			BlockNumber:     types.BlockNumber(n),
			Timestamp:       1_700_000_000 + uint64(n),
			ProtocolVersion: "0.13.1",
		}
		d.headers[h.BlockNumber] = h
		parent = h.BlockHash
		d.tip = h.BlockNumber
	}
	return d
}

func devHash(b byte) types.BlockHash {
	var h types.BlockHash
	h[31] = b
	return h
}

func (d *devChain) GetHeader(ctx context.Context, n types.BlockNumber) (types.Header, error) {
	h, ok := d.headers[n]
	if !ok {
		return types.Header{}, fmt.Errorf("starknet-erigon: dev chain: no block %d", n)
	}
	return h, nil
}

func (d *devChain) GetSignature(ctx context.Context, n types.BlockNumber) (types.BlockSignature, error) {
	return types.BlockSignature{BlockNumber: n}, nil
}

func (d *devChain) GetBody(ctx context.Context, n types.BlockNumber) (types.Body, error) {
	return types.Body{BlockNumber: n}, nil
}

func (d *devChain) GetStateDiff(ctx context.Context, n types.BlockNumber) (types.StateDiff, error) {
	return types.StateDiff{BlockNumber: n}, nil
}

func (d *devChain) GetClass(ctx context.Context, hash types.ClassHash) (types.Class, error) {
	return types.Class{Hash: hash}, nil
}

func (d *devChain) GetCompiledClass(ctx context.Context, hash types.ClassHash) (types.CompiledClass, error) {
	return types.CompiledClass{ClassHash: hash}, nil
}

func (d *devChain) LatestBlockNumber(ctx context.Context) (types.BlockNumber, error) {
	return d.tip, nil
}

func (d *devChain) LatestConfirmed(ctx context.Context) (types.BlockNumber, types.BlockHash, bool, error) {
	return 0, types.BlockHash{}, false, nil
}
