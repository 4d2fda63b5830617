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

package rpc

import (
	"context"
	"testing"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/starknet-erigon/core/types"
	"github.com/erigontech/starknet-erigon/storage"
)

func felt(b byte) types.Felt {
	var f types.Felt
	f[31] = b
	return f
}

func newTestServer(t *testing.T) (*Server, *storage.Storage) {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Path: t.TempDir(), ChainID: "SN_TEST"}, log.New())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close()) })
	return New(st, "SN_TEST"), st
}

func TestBlockNumberBeforeAnyBlockReturnsNoBlocks(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.BlockNumber(context.Background())
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, NoBlocks, rerr.Code)
}

func TestGetBlockWithTxHashesAndStateReads(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()

	h := types.Header{BlockHash: types.BlockHash(felt(1)), BlockNumber: 0}
	require.NoError(t, st.AppendHeader(ctx, h, nil))

	tx := types.Transaction{Hash: felt(7), Kind: types.TxInvokeV1, SenderAddress: felt(2)}
	body := types.Body{
		BlockNumber:  0,
		Transactions: []types.Transaction{tx},
		Outputs:      []types.TransactionOutput{{ExecutionStatus: types.ExecutionSucceeded}},
	}
	require.NoError(t, st.AppendBody(ctx, body))

	sd := types.StateDiff{
		BlockNumber:       0,
		DeployedContracts: map[types.Address]types.ClassHash{felt(2): felt(3)},
		Nonces:            map[types.Address]types.Felt{felt(2): felt(5)},
		StorageDiffs: map[types.Address]map[types.StorageKey]types.Felt{
			felt(2): {felt(9): felt(42)},
		},
	}
	require.NoError(t, st.AppendStateDiff(ctx, sd))

	n, err := s.BlockNumber(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	gotHeader, hashes, err := s.GetBlockWithTxHashes(ctx, BlockID{Latest: true})
	require.NoError(t, err)
	require.Equal(t, h.BlockHash, gotHeader.BlockHash)
	require.Equal(t, []types.TransactionHash{felt(7)}, hashes)

	got, err := s.GetTransactionByHash(ctx, felt(7))
	require.NoError(t, err)
	require.Equal(t, tx.SenderAddress, got.SenderAddress)

	val, err := s.GetStorageAt(ctx, felt(2), felt(9), BlockID{Number: ptr(types.BlockNumber(0))})
	require.NoError(t, err)
	require.Equal(t, felt(42), val)

	nonce, err := s.GetNonce(ctx, felt(2), BlockID{Latest: true})
	require.NoError(t, err)
	require.Equal(t, felt(5), nonce)
}

func TestGetTransactionByHashNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.GetTransactionByHash(context.Background(), felt(200))
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, TransactionHashNotFound, rerr.Code)
}

func TestUnimplementedExecutionMethodsReturnSentinel(t *testing.T) {
	s, _ := newTestServer(t)
	require.ErrorIs(t, s.Call(context.Background()), ErrNotImplemented)
	require.ErrorIs(t, s.EstimateFee(context.Background()), ErrNotImplemented)
	require.ErrorIs(t, s.SimulateTransactions(context.Background()), ErrNotImplemented)
}

func ptr[T any](v T) *T { return &v }
