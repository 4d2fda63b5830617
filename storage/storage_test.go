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
	"testing"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/starknet-erigon/core/types"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Path:    t.TempDir(),
		ChainID: "SN_TEST",
	}, log.New())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func felt(b byte) types.Felt {
	var f types.Felt
	f[31] = b
	return f
}

func testHeader(n types.BlockNumber, parent types.BlockHash) types.Header {
	return types.Header{
		BlockHash:   types.BlockHash(felt(byte(n) + 1)),
		ParentHash:  parent,
		BlockNumber: n,
		Timestamp:   1000 + uint64(n),
		StateRoot:   felt(byte(n) + 2),
		GasPrices: types.GasPriceVector{
			L1GasPriceWei: uint256.NewInt(1),
		},
		ProtocolVersion: "0.13.1",
	}
}

func TestAppendThreeBlocksHappyPath(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	var parent types.BlockHash
	for n := types.BlockNumber(0); n < 3; n++ {
		h := testHeader(n, parent)
		require.NoError(t, s.AppendHeader(ctx, h, nil))
		require.NoError(t, s.AppendBody(ctx, types.Body{BlockNumber: n}))
		require.NoError(t, s.AppendStateDiff(ctx, types.StateDiff{BlockNumber: n}))
		parent = h.BlockHash
	}

	marker, err := s.HeaderMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, marker)

	got, found, err := s.GetHeader(ctx, 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, testHeader(1, got.ParentHash).Timestamp, got.Timestamp)
}

func TestMarkerMismatchAbortsWrite(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.AppendHeader(ctx, testHeader(0, types.BlockHash{}), nil))

	// Skipping straight to block 2 violates marker==block_number.
	err := s.AppendHeader(ctx, testHeader(2, types.BlockHash{}), nil)
	require.Error(t, err)
	var mm *MarkerMismatchError
	require.ErrorAs(t, err, &mm)
	require.EqualValues(t, 1, mm.Expected)
	require.EqualValues(t, 2, mm.Found)

	marker, err := s.HeaderMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, marker, "failed append must not advance the marker")
}

func TestRevertAtBlockFiveUnwindsInDependencyOrder(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	var parent types.BlockHash
	headers := make([]types.Header, 0, 6)
	for n := types.BlockNumber(0); n < 6; n++ {
		h := testHeader(n, parent)
		require.NoError(t, s.AppendHeader(ctx, h, nil))
		require.NoError(t, s.AppendBody(ctx, types.Body{BlockNumber: n}))
		require.NoError(t, s.AppendStateDiff(ctx, types.StateDiff{BlockNumber: n}))
		headers = append(headers, h)
		parent = h.BlockHash
	}

	// Revert block 5 in dependency order (state, then body, then header),
	// per §4.4's "revert only the highest committed block".
	_, err := s.RevertStateDiff(ctx, 5)
	require.NoError(t, err)
	_, err = s.RevertBody(ctx, 5)
	require.NoError(t, err)

	replacedHeader, err := s.RevertHeader(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, headers[5].BlockHash, replacedHeader.Header.BlockHash)

	marker, err := s.HeaderMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, marker)

	_, found, err := s.GetHeader(ctx, 5)
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = s.GetHeader(ctx, 4)
	require.NoError(t, err)
	require.True(t, found)
}

func TestNonceAtRangePrevLookup(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	addr := felt(7)

	for n := types.BlockNumber(0); n < 5; n++ {
		sd := types.StateDiff{BlockNumber: n}
		if n == 1 || n == 3 {
			sd.Nonces = map[types.Address]types.Felt{addr: felt(byte(n))}
		}
		require.NoError(t, s.AppendStateDiff(ctx, sd))
	}

	for height, want := range map[types.BlockNumber]byte{
		0: 0, // no nonce update yet: zero value
		1: 1,
		2: 1, // carries forward until the next update
		3: 3,
		4: 3,
	} {
		got, err := s.NonceAt(ctx, addr, height)
		require.NoError(t, err)
		require.Equal(t, felt(want), got, "height %d", height)
	}
}

func TestStorageAtRangePrevLookup(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	addr := felt(9)
	slot := felt(1)

	sd0 := types.StateDiff{BlockNumber: 0, StorageDiffs: map[types.Address]map[types.StorageKey]types.Felt{
		addr: {slot: felt(42)},
	}}
	require.NoError(t, s.AppendStateDiff(ctx, sd0))
	require.NoError(t, s.AppendStateDiff(ctx, types.StateDiff{BlockNumber: 1}))
	sd2 := types.StateDiff{BlockNumber: 2, StorageDiffs: map[types.Address]map[types.StorageKey]types.Felt{
		addr: {slot: felt(99)},
	}}
	require.NoError(t, s.AppendStateDiff(ctx, sd2))

	v0, err := s.StorageAt(ctx, addr, slot, 0)
	require.NoError(t, err)
	require.Equal(t, felt(42), v0)

	v1, err := s.StorageAt(ctx, addr, slot, 1)
	require.NoError(t, err)
	require.Equal(t, felt(42), v1)

	v2, err := s.StorageAt(ctx, addr, slot, 2)
	require.NoError(t, err)
	require.Equal(t, felt(99), v2)
}

func TestClassDeclareAndCompile(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	class := types.Class{Hash: felt(5), Variant: types.ClassSierra, SierraProgram: []byte("sierra-body")}
	require.NoError(t, s.AppendClass(ctx, 0, []types.Class{class}))
	require.NoError(t, s.AppendCompiledClass(ctx, types.CompiledClass{ClassHash: felt(5), Casm: []byte("casm-body")}))

	got, found, err := s.GetClass(ctx, felt(5))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "sierra-body", string(got.SierraProgram))

	cc, found, err := s.GetCompiledClass(ctx, felt(5))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "casm-body", string(cc.Casm))
}

func TestAppendClassBatchesOneBlockUnderOneMarkerAdvance(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	classes := []types.Class{
		{Hash: felt(1), Variant: types.ClassSierra, SierraProgram: []byte("one")},
		{Hash: felt(2), Variant: types.ClassSierra, SierraProgram: []byte("two")},
	}
	require.NoError(t, s.AppendClass(ctx, 0, classes))

	marker, err := s.ClassMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, marker, "one block's classes must advance the marker exactly once")

	for _, c := range classes {
		got, found, err := s.GetClass(ctx, c.Hash)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, string(c.SierraProgram), string(got.SierraProgram))
	}

	// A second block with no classes at all still advances the marker.
	require.NoError(t, s.AppendClass(ctx, 1, nil))
	marker, err = s.ClassMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, marker)
}

func TestRevertIsNoopUnlessMarkerMatchesBlockPlusOne(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for n := types.BlockNumber(0); n < 3; n++ {
		require.NoError(t, s.AppendHeader(ctx, testHeader(n, types.BlockHash{}), nil))
	}

	// Header marker is 3; reverting block 0 (marker would need to be 1)
	// must be a no-op rather than forcing the marker backward past the
	// still-present headers at 1 and 2.
	out, err := s.RevertHeader(ctx, 0)
	require.NoError(t, err)
	require.Nil(t, out)

	marker, err := s.HeaderMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, marker)

	_, found, err := s.GetHeader(ctx, 1)
	require.NoError(t, err)
	require.True(t, found, "revert no-op must not have deleted header 1")

	// Reverting the actual tip (marker == 2+1) does apply.
	out, err = s.RevertHeader(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, out)

	marker, err = s.HeaderMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, marker)
}

func TestRevertClassIsNoopUnlessMarkerMatchesBlockPlusOne(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	classes0 := []types.Class{{Hash: felt(11), Variant: types.ClassSierra, SierraProgram: []byte("a")}}
	classes1 := []types.Class{{Hash: felt(12), Variant: types.ClassSierra, SierraProgram: []byte("b")}}
	require.NoError(t, s.AppendClass(ctx, 0, classes0))
	require.NoError(t, s.AppendClass(ctx, 1, classes1))

	// Class marker is 2; reverting block 0 (marker would need to be 1) must
	// be a no-op rather than force the marker backward past block 1's class.
	removed, err := s.RevertClass(ctx, 0)
	require.NoError(t, err)
	require.Nil(t, removed)

	marker, err := s.ClassMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, marker)

	_, found, err := s.GetClass(ctx, felt(12))
	require.NoError(t, err)
	require.True(t, found, "revert no-op must not have deleted block 1's class")

	// Reverting the actual tip (marker == 1+1) does apply.
	removed, err = s.RevertClass(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []types.ClassHash{felt(12)}, removed)

	marker, err = s.ClassMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, marker)
}

func TestBodyRoundTripAndEventIndex(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	contract := felt(3)

	body := types.Body{
		BlockNumber: 0,
		Transactions: []types.Transaction{
			{Hash: felt(1), Kind: types.TxInvokeV1, SenderAddress: felt(2)},
		},
		Outputs: []types.TransactionOutput{
			{Events: []types.Event{{FromAddress: contract, Keys: []types.Felt{felt(4)}}}},
		},
	}
	require.NoError(t, s.AppendBody(ctx, body))

	got, found, err := s.GetBody(ctx, 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got.Transactions, 1)
	require.Equal(t, felt(1), got.Transactions[0].Hash)

	events, err := s.EventsByContract(ctx, contract)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.EqualValues(t, 0, events[0].Transaction.BlockNumber)
}

func TestBaseLayerMarkerAdvancesAndReverts(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.AppendBaseLayerBlock(ctx, 0, types.BlockHash(felt(1))))
	require.NoError(t, s.AppendBaseLayerBlock(ctx, 1, types.BlockHash(felt(2))))

	m, err := s.BaseLayerMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, m)

	require.NoError(t, s.RevertBaseLayer(ctx, 1))
	m, err = s.BaseLayerMarker(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, m)
}
