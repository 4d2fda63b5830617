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
	"sync"
	"testing"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/starknet-erigon/core/types"
	storagepkg "github.com/erigontech/starknet-erigon/storage"
)

type fakeFeeder struct {
	mu      sync.Mutex
	headers map[types.BlockNumber]types.Header
	latest  types.BlockNumber
}

func newFakeFeeder() *fakeFeeder { return &fakeFeeder{headers: map[types.BlockNumber]types.Header{}} }

func (f *fakeFeeder) pushHeader(h types.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers[h.BlockNumber] = h
	if h.BlockNumber > f.latest || len(f.headers) == 1 {
		f.latest = h.BlockNumber
	}
}

func (f *fakeFeeder) LatestBlockNumber(ctx context.Context) (types.BlockNumber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeFeeder) GetHeader(ctx context.Context, n types.BlockNumber) (types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[n], nil
}

func (f *fakeFeeder) GetSignature(ctx context.Context, n types.BlockNumber) (types.BlockSignature, error) {
	return types.BlockSignature{}, nil
}

func (f *fakeFeeder) GetBody(ctx context.Context, n types.BlockNumber) (types.Body, error) {
	return types.Body{BlockNumber: n}, nil
}

func (f *fakeFeeder) GetStateDiff(ctx context.Context, n types.BlockNumber) (types.StateDiff, error) {
	return types.StateDiff{BlockNumber: n}, nil
}

func (f *fakeFeeder) GetClass(ctx context.Context, h types.ClassHash) (types.Class, error) {
	return types.Class{Hash: h}, nil
}

func (f *fakeFeeder) GetCompiledClass(ctx context.Context, h types.ClassHash) (types.CompiledClass, error) {
	return types.CompiledClass{ClassHash: h}, nil
}

// fakeL1 never confirms a block, so BaseLayerStream.Poll is always a no-op
// in these sync-pipeline tests; base-layer-specific behavior is covered in
// baselayerstream_test.go instead.
type fakeL1 struct{}

func (fakeL1) LatestConfirmed(ctx context.Context) (types.BlockNumber, types.BlockHash, bool, error) {
	return 0, types.BlockHash{}, false, nil
}

func openTestStorage(t *testing.T) *storagepkg.Storage {
	t.Helper()
	st, err := storagepkg.Open(context.Background(), storagepkg.Config{Path: t.TempDir(), ChainID: "SN_TEST"}, log.New())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close()) })
	return st
}

func felt(b byte) types.Felt {
	var f types.Felt
	f[31] = b
	return f
}

func TestDriverCommitsHeadersInOrder(t *testing.T) {
	st := openTestStorage(t)
	feeder := newFakeFeeder()
	ctx := context.Background()

	var parent types.BlockHash
	for n := types.BlockNumber(0); n < 3; n++ {
		h := types.Header{BlockHash: types.BlockHash(felt(byte(n) + 1)), ParentHash: parent, BlockNumber: n}
		feeder.pushHeader(h)
		parent = h.BlockHash
	}

	d, err := New(ctx, st, feeder, fakeL1{}, DefaultConfig(), log.New())
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		if _, err := d.step(ctx); err != nil {
			require.NoError(t, err)
		}
	}

	marker, err := st.HeaderMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, marker)
}

func TestDriverDetectsAndHandlesReorg(t *testing.T) {
	st := openTestStorage(t)
	feeder := newFakeFeeder()
	ctx := context.Background()

	h0 := types.Header{BlockHash: types.BlockHash(felt(1)), BlockNumber: 0}
	h1 := types.Header{BlockHash: types.BlockHash(felt(2)), ParentHash: h0.BlockHash, BlockNumber: 1}
	feeder.pushHeader(h0)
	feeder.pushHeader(h1)

	require.NoError(t, st.AppendHeader(ctx, h0, nil))
	require.NoError(t, st.AppendHeader(ctx, h1, nil))
	require.NoError(t, st.AppendBody(ctx, types.Body{BlockNumber: 0}))
	require.NoError(t, st.AppendBody(ctx, types.Body{BlockNumber: 1}))

	// Feeder now serves a competing block 1 with a different hash/parent
	// mismatch relative to what we committed.
	h1Prime := types.Header{BlockHash: types.BlockHash(felt(99)), ParentHash: h0.BlockHash, BlockNumber: 1}
	feeder.pushHeader(h1Prime)

	d, err := New(ctx, st, feeder, fakeL1{}, DefaultConfig(), log.New())
	require.NoError(t, err)
	// Force the stream to believe the old block-1 hash is still canonical
	// so the next fetch (which returns h1Prime) looks like a reorg.
	d.blocks.Advance(1, h1.BlockHash)

	ev, err := d.blocks.Poll(ctx)
	require.NoError(t, err)
	reorg, ok := ev.(Reorg)
	require.True(t, ok, "expected a Reorg event, got %T", ev)
	require.EqualValues(t, 1, reorg.RevertFrom)

	require.NoError(t, d.apply(ctx, reorg))

	marker, err := st.HeaderMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, marker)

	_, found, err := st.GetHeader(ctx, 1)
	require.NoError(t, err)
	require.False(t, found)
}
