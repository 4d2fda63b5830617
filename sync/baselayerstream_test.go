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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/starknet-erigon/core/types"
)

type stubL1 struct {
	n    types.BlockNumber
	hash types.BlockHash
	ok   bool
}

func (s stubL1) LatestConfirmed(ctx context.Context) (types.BlockNumber, types.BlockHash, bool, error) {
	return s.n, s.hash, s.ok, nil
}

func TestBaseLayerStreamAgreesWithLocalHeader(t *testing.T) {
	local := map[types.BlockNumber]types.BlockHash{0: felt(1)}
	lookup := func(n types.BlockNumber) (types.BlockHash, bool, error) {
		h, ok := local[n]
		return h, ok, nil
	}

	s := NewBaseLayerStream(stubL1{n: 0, hash: felt(1), ok: true}, 0, lookup, 2)
	ev, err := s.Poll(context.Background(), 5)
	require.NoError(t, err)
	block, ok := ev.(NewBaseLayerBlock)
	require.True(t, ok)
	require.EqualValues(t, 0, block.BlockNumber)
}

func TestBaseLayerStreamDisagreementEmitsReorgThenFatal(t *testing.T) {
	local := map[types.BlockNumber]types.BlockHash{0: felt(1)}
	lookup := func(n types.BlockNumber) (types.BlockHash, bool, error) {
		h, ok := local[n]
		return h, ok, nil
	}

	s := NewBaseLayerStream(stubL1{n: 0, hash: felt(99), ok: true}, 0, lookup, 1)

	ev, err := s.Poll(context.Background(), 5)
	require.NoError(t, err)
	reorg, ok := ev.(Reorg)
	require.True(t, ok)
	require.EqualValues(t, 0, reorg.RevertFrom)

	// Second disagreement at the same block pushes mismatch count over
	// maxReverts (1), which is now fatal.
	_, err = s.Poll(context.Background(), 5)
	require.Error(t, err)
}

func TestBaseLayerStreamNoConfirmationYetIsNoop(t *testing.T) {
	s := NewBaseLayerStream(stubL1{ok: false}, 0, nil, 16)
	ev, err := s.Poll(context.Background(), 5)
	require.NoError(t, err)
	require.Nil(t, ev)
}
