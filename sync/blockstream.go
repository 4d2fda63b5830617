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

package sync

import (
	"context"
	"fmt"

	"github.com/erigontech/starknet-erigon/central"
	"github.com/erigontech/starknet-erigon/core/types"
)

// BlockStream polls the feeder for headers one at a time, starting from
// next, and reports a Reorg event the moment a fetched header's ParentHash
// no longer matches the locally stored parent (§3.3).
type BlockStream struct {
	client central.Client
	next   types.BlockNumber
	parent types.BlockHash // hash of the block immediately before next
}

func NewBlockStream(client central.Client, next types.BlockNumber, parent types.BlockHash) *BlockStream {
	return &BlockStream{client: client, next: next, parent: parent}
}

// Poll fetches the header at bs.next. A nil event with a nil error means
// the feeder has nothing new yet; the caller should back off and retry.
func (bs *BlockStream) Poll(ctx context.Context) (Event, error) {
	latest, err := bs.client.LatestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: block stream: latest block number: %w", err)
	}
	if bs.next > latest {
		return nil, nil
	}

	h, err := bs.client.GetHeader(ctx, bs.next)
	if err != nil {
		return nil, fmt.Errorf("sync: block stream: get header %d: %w", bs.next, err)
	}
	if bs.next > 0 && h.ParentHash != bs.parent {
		return Reorg{RevertFrom: bs.next}, nil
	}

	var sig *types.BlockSignature
	if s, err := bs.client.GetSignature(ctx, bs.next); err == nil {
		sig = &s
	}

	bs.parent = h.BlockHash
	bs.next++
	return NewBlock{Header: h, Signature: sig}, nil
}

// Advance is called by the driver after a successful header commit, or
// after a revert, to realign the stream's cursor with storage.
func (bs *BlockStream) Advance(next types.BlockNumber, parent types.BlockHash) {
	bs.next = next
	bs.parent = parent
}
