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

// Package rpc is the read-only JSON-RPC surface described in §6.1. It is an
// external-collaborator boundary: the HTTP/JSON transport, request batching
// and method-dispatch table are out of scope (§1's Non-goals name execution
// and block production, and §6 calls the whole server an external
// collaborator) — this package gives the storage-backed read methods a
// concrete home so the sync pipeline's output is independently queryable,
// without standing up an actual HTTP listener.
package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/erigontech/starknet-erigon/core/types"
	"github.com/erigontech/starknet-erigon/storage"
)

// ErrorCode is one of the fixed JSON-RPC error codes named in §6.1.
type ErrorCode string

const (
	NoBlocks                 ErrorCode = "NoBlocks"
	BlockNotFound            ErrorCode = "BlockNotFound"
	ContractNotFound         ErrorCode = "ContractNotFound"
	TransactionHashNotFound  ErrorCode = "TransactionHashNotFound"
	InvalidTransactionIndex  ErrorCode = "InvalidTransactionIndex"
	ClassHashNotFound        ErrorCode = "ClassHashNotFound"
	PageSizeTooBig           ErrorCode = "PageSizeTooBig"
	TooManyKeysInFilter      ErrorCode = "TooManyKeysInFilter"
	InvalidContinuationToken ErrorCode = "InvalidContinuationToken"
	ContractError            ErrorCode = "ContractError"
)

// Error wraps one of the fixed codes above; it is always reported to the
// caller, never logged at error level (§7's "Input validation"/"Not found"
// taxonomy).
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("rpc: %s: %s", e.Code, e.Message) }

func notFound(code ErrorCode, msg string) error { return &Error{Code: code, Message: msg} }

// ErrNotImplemented marks a method named in §6.1 whose implementation
// requires the execution/VM layer this node explicitly does not carry
// (Non-goal, §1): call/estimateFee/estimateMessageFee/simulateTransactions/
// traceTransaction/traceBlockTransactions, and the three add*Transaction
// submission methods, which need a mempool this node also does not have.
var ErrNotImplemented = errors.New("rpc: method requires execution/mempool, out of scope")

// BlockID selects a block the way every method taking one does (§6.1):
// "latest", "pending", a specific hash, or a specific number.
type BlockID struct {
	Latest  bool
	Pending bool
	Hash    *types.BlockHash
	Number  *types.BlockNumber
}

// Server answers the read-only subset of the JSON-RPC surface directly out
// of storage. It has no notion of V0.3/V0.4/V0.6 method-shape differences;
// a thin shape-adapting transport layer (out of scope here) would sit in
// front of it and call these methods.
type Server struct {
	storage *storage.Storage
	chainID string
}

func New(st *storage.Storage, chainID string) *Server {
	return &Server{storage: st, chainID: chainID}
}

func (s *Server) ChainID() string { return s.chainID }

// resolve turns a BlockID into a concrete block number against the current
// header marker.
func (s *Server) resolve(ctx context.Context, id BlockID) (types.BlockNumber, error) {
	marker, err := s.storage.HeaderMarker(ctx)
	if err != nil {
		return 0, err
	}
	if marker == 0 {
		return 0, notFound(NoBlocks, "no blocks committed yet")
	}
	switch {
	case id.Number != nil:
		if *id.Number >= marker {
			return 0, notFound(BlockNotFound, "block number beyond header marker")
		}
		return *id.Number, nil
	case id.Hash != nil:
		h, found, err := s.storage.GetHeaderByHash(ctx, *id.Hash)
		if err != nil {
			return 0, err
		}
		if !found {
			return 0, notFound(BlockNotFound, "no block with that hash")
		}
		return h.BlockNumber, nil
	case id.Latest, id.Pending:
		return marker - 1, nil
	default:
		return 0, notFound(BlockNotFound, "empty block id")
	}
}

// BlockNumber returns the highest committed block number (§6.1).
func (s *Server) BlockNumber(ctx context.Context) (types.BlockNumber, error) {
	marker, err := s.storage.HeaderMarker(ctx)
	if err != nil {
		return 0, err
	}
	if marker == 0 {
		return 0, notFound(NoBlocks, "no blocks committed yet")
	}
	return marker - 1, nil
}

// BlockHashAndNumber returns the tip's hash and number together.
func (s *Server) BlockHashAndNumber(ctx context.Context) (types.BlockHash, types.BlockNumber, error) {
	n, err := s.BlockNumber(ctx)
	if err != nil {
		return types.BlockHash{}, 0, err
	}
	h, found, err := s.storage.GetHeader(ctx, n)
	if err != nil {
		return types.BlockHash{}, 0, err
	}
	if !found {
		return types.BlockHash{}, 0, notFound(BlockNotFound, "tip header missing")
	}
	return h.BlockHash, n, nil
}

// GetBlockWithTxHashes returns the header plus just the ordered transaction
// hashes of the block id names.
func (s *Server) GetBlockWithTxHashes(ctx context.Context, id BlockID) (types.Header, []types.TransactionHash, error) {
	n, err := s.resolve(ctx, id)
	if err != nil {
		return types.Header{}, nil, err
	}
	h, found, err := s.storage.GetHeader(ctx, n)
	if err != nil {
		return types.Header{}, nil, err
	}
	if !found {
		return types.Header{}, nil, notFound(BlockNotFound, "header missing")
	}
	body, found, err := s.storage.GetBody(ctx, n)
	if err != nil {
		return types.Header{}, nil, err
	}
	if !found {
		return h, nil, nil
	}
	hashes := make([]types.TransactionHash, len(body.Transactions))
	for i, tx := range body.Transactions {
		hashes[i] = tx.Hash
	}
	return h, hashes, nil
}

// GetBlockWithTxs returns the header plus full transaction bodies.
func (s *Server) GetBlockWithTxs(ctx context.Context, id BlockID) (types.Header, types.Body, error) {
	n, err := s.resolve(ctx, id)
	if err != nil {
		return types.Header{}, types.Body{}, err
	}
	h, found, err := s.storage.GetHeader(ctx, n)
	if err != nil {
		return types.Header{}, types.Body{}, err
	}
	if !found {
		return types.Header{}, types.Body{}, notFound(BlockNotFound, "header missing")
	}
	body, _, err := s.storage.GetBody(ctx, n)
	return h, body, err
}

// GetBlockTransactionCount reports how many transactions the named block
// contains.
func (s *Server) GetBlockTransactionCount(ctx context.Context, id BlockID) (int, error) {
	n, err := s.resolve(ctx, id)
	if err != nil {
		return 0, err
	}
	body, found, err := s.storage.GetBody(ctx, n)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, notFound(BlockNotFound, "body missing")
	}
	return len(body.Transactions), nil
}

// GetStorageAt reads a contract storage slot at a given block (§3.2's
// range-prev semantics, exposed read-only).
func (s *Server) GetStorageAt(ctx context.Context, addr types.Address, key types.StorageKey, id BlockID) (types.Felt, error) {
	n, err := s.resolve(ctx, id)
	if err != nil {
		return types.Felt{}, err
	}
	return s.storage.StorageAt(ctx, addr, key, n)
}

// GetNonce reads a contract's nonce at a given block.
func (s *Server) GetNonce(ctx context.Context, addr types.Address, id BlockID) (types.Felt, error) {
	n, err := s.resolve(ctx, id)
	if err != nil {
		return types.Felt{}, err
	}
	return s.storage.NonceAt(ctx, addr, n)
}

// GetTransactionByHash looks up a transaction by its hash, irrespective of
// which block it landed in.
func (s *Server) GetTransactionByHash(ctx context.Context, hash types.TransactionHash) (types.Transaction, error) {
	tx, found, err := s.storage.GetTransactionByHash(ctx, hash)
	if err != nil {
		return types.Transaction{}, err
	}
	if !found {
		return types.Transaction{}, notFound(TransactionHashNotFound, "unknown transaction hash")
	}
	return tx, nil
}

// GetTransactionByBlockIdAndIndex looks up a transaction by its position
// within a named block.
func (s *Server) GetTransactionByBlockIdAndIndex(ctx context.Context, id BlockID, index uint32) (types.Transaction, error) {
	n, err := s.resolve(ctx, id)
	if err != nil {
		return types.Transaction{}, err
	}
	body, found, err := s.storage.GetBody(ctx, n)
	if err != nil {
		return types.Transaction{}, err
	}
	if !found || index >= uint32(len(body.Transactions)) {
		return types.Transaction{}, notFound(InvalidTransactionIndex, "index out of range")
	}
	return body.Transactions[index], nil
}

// GetTransactionReceipt returns the execution output recorded alongside a
// transaction.
func (s *Server) GetTransactionReceipt(ctx context.Context, hash types.TransactionHash) (types.TransactionOutput, error) {
	out, found, err := s.storage.GetTransactionOutputByHash(ctx, hash)
	if err != nil {
		return types.TransactionOutput{}, err
	}
	if !found {
		return types.TransactionOutput{}, notFound(TransactionHashNotFound, "unknown transaction hash")
	}
	return out, nil
}

// GetStateUpdate returns the state diff committed at a given block.
func (s *Server) GetStateUpdate(ctx context.Context, id BlockID) (types.StateDiff, error) {
	n, err := s.resolve(ctx, id)
	if err != nil {
		return types.StateDiff{}, err
	}
	sd, found, err := s.storage.GetStateDiff(ctx, n)
	if err != nil {
		return types.StateDiff{}, err
	}
	if !found {
		return types.StateDiff{}, notFound(BlockNotFound, "state diff missing")
	}
	return sd, nil
}

// GetClass returns a declared class's code by hash.
func (s *Server) GetClass(ctx context.Context, hash types.ClassHash) (types.Class, error) {
	c, found, err := s.storage.GetClass(ctx, hash)
	if err != nil {
		return types.Class{}, err
	}
	if !found {
		return types.Class{}, notFound(ClassHashNotFound, "unknown class hash")
	}
	return c, nil
}

// GetClassHashAt returns the class hash addr was first deployed with,
// provided that deployment is at or below id's block; a contract deployed
// later reads as ContractNotFound. Class replacements are not applied.
func (s *Server) GetClassHashAt(ctx context.Context, addr types.Address, id BlockID) (types.ClassHash, error) {
	n, err := s.resolve(ctx, id)
	if err != nil {
		return types.ClassHash{}, err
	}
	deployedAt, hash, found, err := s.storage.FirstDeployment(ctx, addr)
	if err != nil {
		return types.ClassHash{}, err
	}
	if !found || deployedAt > n {
		return types.ClassHash{}, notFound(ContractNotFound, "no contract at that address")
	}
	return hash, nil
}

// GetClassAt is GetClassHashAt followed by GetClass, for convenience.
func (s *Server) GetClassAt(ctx context.Context, addr types.Address, id BlockID) (types.Class, error) {
	hash, err := s.GetClassHashAt(ctx, addr, id)
	if err != nil {
		return types.Class{}, err
	}
	return s.GetClass(ctx, hash)
}

// Syncing reports whether this node is caught up with the central source.
// Always false here: sync-status reporting lives with the driver, out of
// this read-only facade's scope.
func (s *Server) Syncing(ctx context.Context) (bool, error) { return false, nil }

// The remaining §6.1 methods all require the execution/VM layer or a
// mempool this node does not implement (explicit Non-goal, §1): call,
// addInvokeTransaction, addDeployAccountTransaction, addDeclareTransaction,
// estimateFee, estimateMessageFee, simulateTransactions, traceTransaction,
// traceBlockTransactions, and getEvents' continuation-token pagination are
// deliberately left as ErrNotImplemented stubs rather than faked.

func (s *Server) Call(ctx context.Context) error                        { return ErrNotImplemented }
func (s *Server) AddInvokeTransaction(ctx context.Context) error        { return ErrNotImplemented }
func (s *Server) AddDeployAccountTransaction(ctx context.Context) error { return ErrNotImplemented }
func (s *Server) AddDeclareTransaction(ctx context.Context) error       { return ErrNotImplemented }
func (s *Server) EstimateFee(ctx context.Context) error                 { return ErrNotImplemented }
func (s *Server) EstimateMessageFee(ctx context.Context) error          { return ErrNotImplemented }
func (s *Server) SimulateTransactions(ctx context.Context) error        { return ErrNotImplemented }
func (s *Server) TraceTransaction(ctx context.Context) error            { return ErrNotImplemented }
func (s *Server) TraceBlockTransactions(ctx context.Context) error      { return ErrNotImplemented }
func (s *Server) GetEvents(ctx context.Context) error                   { return ErrNotImplemented }
