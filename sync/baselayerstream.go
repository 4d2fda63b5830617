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

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/erigontech/starknet-erigon/core/types"
	"github.com/erigontech/starknet-erigon/l1"
)

// LocalHeaderLookup returns the locally-committed header hash at n, so
// BaseLayerStream can check it against what L1 reports as proved (§8.2's
// base-layer agreement property).
type LocalHeaderLookup func(n types.BlockNumber) (types.BlockHash, bool, error)

// BaseLayerStream polls the L1 adapter for the highest confirmed block; it
// never runs ahead of the header marker, since the base layer can only ever
// agree with data this node has already committed (§3.1). mismatches tracks
// the distinct block numbers where the locally-committed hash disagreed with
// what L1 reported; exceeding maxReverts within the process lifetime is
// treated as the fatal "persistent base-layer hash mismatch" condition
// (§4.5).
type BaseLayerStream struct {
	adapter   l1.Adapter
	next      types.BlockNumber
	localHash LocalHeaderLookup

	mismatches *roaring.Bitmap
	maxReverts uint64
}

func NewBaseLayerStream(adapter l1.Adapter, next types.BlockNumber, localHash LocalHeaderLookup, maxReverts uint64) *BaseLayerStream {
	return &BaseLayerStream{
		adapter:    adapter,
		next:       next,
		localHash:  localHash,
		mismatches: roaring.New(),
		maxReverts: maxReverts,
	}
}

func (s *BaseLayerStream) Poll(ctx context.Context, headerMarker types.BlockNumber) (Event, error) {
	confirmed, hash, ok, err := s.adapter.LatestConfirmed(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: base layer stream: latest confirmed: %w", err)
	}
	if !ok || confirmed < s.next || confirmed >= headerMarker {
		return nil, nil
	}

	if s.localHash != nil {
		local, found, err := s.localHash(confirmed)
		if err != nil {
			return nil, fmt.Errorf("sync: base layer stream: local header %d: %w", confirmed, err)
		}
		if found && local != hash {
			s.mismatches.Add(uint32(confirmed))
			if uint64(s.mismatches.GetCardinality()) > s.maxReverts {
				return nil, fmt.Errorf("sync: base layer stream: persistent hash mismatch at block %d exceeds retry budget of %d", confirmed, s.maxReverts)
			}
			return Reorg{RevertFrom: confirmed}, nil
		}
	}

	s.next = confirmed + 1
	return NewBaseLayerBlock{BlockNumber: confirmed, BlockHash: hash}, nil
}

func (s *BaseLayerStream) Advance(next types.BlockNumber) { s.next = next }
