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

// Package storage is the only component of the node allowed to hold a
// write handle to the chain data (§4). It wraps the typed MDBX tables in
// kv with the append-only blob files in valuestore, and exposes the five
// per-dimension reader/writer façades (header, body, state, class,
// base-layer) whose markers (§4.3) are the durable record of how much of
// each dimension has been committed.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/erigontech/starknet-erigon/kv"
	"github.com/erigontech/starknet-erigon/valuestore"
)

// Config is the on-disk layout and sizing knobs for Open, named and shaped
// the way a Cfg struct is threaded through erigon's stage/db setup code.
type Config struct {
	Path    string
	MapSize datasize.ByteSize

	ChainID       string
	SchemaVersion string
}

// DefaultMapSize mirrors the generous upper bound erigon's own chaindata
// environments are opened with; MDBX only grows the backing file as far as
// it is actually used.
const DefaultMapSize = 2 * datasize.TB

// Storage is the process-wide handle every façade method hangs off of. It
// is safe for concurrent use: reads fan out over as many MDBX read
// transactions as needed, and the single write transaction is serialized
// by kv's writer actor (§4.1, §5).
type Storage struct {
	db     kv.DB
	logger log.Logger

	transactions       *valuestore.Store
	transactionOutputs *valuestore.Store
	classes            *valuestore.Store
}

// Open opens (creating if absent) the chaindata environment at cfg.Path and
// its three append-only value files, then checks the stored manifest
// against cfg.ChainID/SchemaVersion (§6.5).
func Open(ctx context.Context, cfg Config, logger log.Logger) (*Storage, error) {
	mapSize := cfg.MapSize
	if mapSize == 0 {
		mapSize = DefaultMapSize
	}
	db, err := kv.Open(kv.Options{
		Path:    cfg.Path,
		MapSize: uint64(mapSize.Bytes()),
		Label:   "chaindata",
	}, kv.ChaindataTablesCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: open chaindata: %w", err)
	}

	txStore, err := valuestore.Open(filepath.Join(cfg.Path, "transactions.dat"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: open transaction value file: %w", err)
	}
	txOutStore, err := valuestore.Open(filepath.Join(cfg.Path, "transaction_outputs.dat"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: open transaction-output value file: %w", err)
	}
	classStore, err := valuestore.Open(filepath.Join(cfg.Path, "classes.dat"))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: open class value file: %w", err)
	}

	s := &Storage{
		db:                 db,
		logger:             logger,
		transactions:       txStore,
		transactionOutputs: txOutStore,
		classes:            classStore,
	}

	if err := s.checkOrWriteManifest(ctx, cfg.ChainID, cfg.SchemaVersion); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) Close() error {
	var firstErr error
	for _, c := range []func() error{
		s.transactions.Close,
		s.transactionOutputs.Close,
		s.classes.Close,
		s.db.Close,
	} {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// view runs fn against a fresh read-only transaction, rolling it back
// unconditionally afterward (read transactions are never committed, §3.4).
func (s *Storage) view(ctx context.Context, fn func(tx kv.Tx) error) error {
	tx, err := s.db.BeginRo(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

// update runs fn inside the single write transaction, committing on success
// and rolling back (never partially applying) on any error, including a
// *MarkerMismatchError (§4.3: "Mismatch ⇒ ... transaction abort").
func (s *Storage) update(ctx context.Context, fn func(tx kv.RwTx) error) error {
	tx, err := s.db.BeginRw(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
