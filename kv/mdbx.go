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

package kv

import (
	"bytes"
	"context"
	"fmt"

	"github.com/erigontech/erigon-lib/log/v3"
	"github.com/erigontech/mdbx-go/mdbx"
	"github.com/gofrs/flock"
)

// mdbxDB wraps a single *mdbx.Env plus the writer actor that serializes
// access to its one live write transaction. This is the concrete DB the rest
// of the module talks to; construct it with Open.
type mdbxDB struct {
	env    *mdbx.Env
	dbis   map[string]mdbx.DBI
	lock   *flock.Flock
	writer *writerActor
	logger log.Logger
}

// Options configures Open. MapSize is a resolved byte count; callers such
// as storage.Open hold it as a datasize.ByteSize (storage.Config.MapSize).
type Options struct {
	Path       string
	MapSize    uint64
	Label      string // names the environment; Open does not read it
	ReadOnly   bool
}

// Open memory-maps (or creates) the MDBX environment at opts.Path, takes an
// advisory exclusive flock on the directory for the writer role (§5 "Shared
// resources"), and opens every table in tables with its configured flags.
func Open(opts Options, tables TableCfg, logger log.Logger) (*mdbxDB, error) {
	env, err := mdbx.NewEnv(mdbx.Default)
	if err != nil {
		return nil, fmt.Errorf("mdbx: new env: %w", err)
	}
	if err := env.SetGeometry(-1, -1, int(opts.MapSize), -1, -1, -1); err != nil {
		return nil, fmt.Errorf("mdbx: set geometry: %w", err)
	}
	if err := env.SetOption(mdbx.OptMaxDB, uint64(len(tables)+8)); err != nil {
		return nil, fmt.Errorf("mdbx: set max dbi: %w", err)
	}
	flags := uint(mdbx.NoReadahead | mdbx.Coalesce | mdbx.LifoReclaim)
	if opts.ReadOnly {
		flags |= mdbx.Readonly
	}
	if err := env.Open(opts.Path, flags, 0664); err != nil {
		return nil, fmt.Errorf("mdbx: open %s: %w", opts.Path, err)
	}

	var lck *flock.Flock
	if !opts.ReadOnly {
		lck = flock.New(opts.Path + "/LOCK")
		ok, err := lck.TryLock()
		if err != nil {
			return nil, fmt.Errorf("mdbx: flock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("mdbx: %s is locked by another writer process", opts.Path)
		}
	}

	db := &mdbxDB{env: env, dbis: make(map[string]mdbx.DBI), lock: lck, logger: logger}
	if err := env.Update(func(tx *mdbx.Txn) error {
		for name, cfg := range tables {
			dbiFlags := uint(mdbx.Create)
			if cfg.Flags&DupSort != 0 {
				dbiFlags |= mdbx.DupSort
			}
			dbi, err := tx.OpenDBI(name, dbiFlags, nil, nil)
			if err != nil {
				return fmt.Errorf("open table %s: %w", name, err)
			}
			db.dbis[name] = dbi
		}
		return nil
	}); err != nil {
		env.Close()
		return nil, err
	}

	db.writer = newWriterActor(db, logger)
	return db, nil
}

func (db *mdbxDB) dbi(table string) (mdbx.DBI, error) {
	d, ok := db.dbis[table]
	if !ok {
		return 0, fmt.Errorf("kv: unknown table %q", table)
	}
	return d, nil
}

func (db *mdbxDB) BeginRo(ctx context.Context) (Tx, error) {
	txn, err := db.env.BeginTxn(nil, mdbx.Readonly)
	if err != nil {
		return nil, fmt.Errorf("mdbx: begin ro: %w", err)
	}
	return &mdbxTx{db: db, txn: txn}, nil
}

// BeginRw routes through the writer actor so only one MDBX write
// transaction is ever open at a time (§4.1).
func (db *mdbxDB) BeginRw(ctx context.Context) (RwTx, error) {
	return db.writer.begin(ctx)
}

func (db *mdbxDB) Close() error {
	db.writer.close()
	db.env.Close()
	if db.lock != nil {
		return db.lock.Unlock()
	}
	return nil
}

type mdbxTx struct {
	db  *mdbxDB
	txn *mdbx.Txn
}

func (t *mdbxTx) GetOne(table string, key []byte) ([]byte, bool, error) {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return nil, false, err
	}
	v, err := t.txn.Get(dbi, key)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv: get %s: %w", table, err)
	}
	return v, true, nil
}

func (t *mdbxTx) Cursor(table string) (Cursor, error) {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return nil, err
	}
	c, err := t.txn.OpenCursor(dbi)
	if err != nil {
		return nil, fmt.Errorf("kv: cursor %s: %w", table, err)
	}
	return &mdbxCursor{c: c, table: table}, nil
}

func (t *mdbxTx) CursorDupSort(table string) (CursorDupSort, error) {
	c, err := t.Cursor(table)
	if err != nil {
		return nil, err
	}
	return &mdbxCursor{c: c.(*mdbxCursor).c, table: table}, nil
}

func (t *mdbxTx) Rollback() { t.txn.Abort() }

type mdbxCursor struct {
	c     *mdbx.Cursor
	table string
}

func (c *mdbxCursor) First() ([]byte, []byte, error) { return c.op(mdbx.First) }
func (c *mdbxCursor) Next() ([]byte, []byte, error)  { return c.op(mdbx.Next) }
func (c *mdbxCursor) Prev() ([]byte, []byte, error)  { return c.op(mdbx.Prev) }
func (c *mdbxCursor) Last() ([]byte, []byte, error)  { return c.op(mdbx.Last) }
func (c *mdbxCursor) Current() ([]byte, []byte, error) { return c.op(mdbx.GetCurrent) }

func (c *mdbxCursor) Seek(seek []byte) ([]byte, []byte, error) {
	k, v, err := c.c.Get(seek, nil, mdbx.SetRange)
	return normalize(k, v, err)
}

func (c *mdbxCursor) op(flag mdbx.CursorOp) ([]byte, []byte, error) {
	k, v, err := c.c.Get(nil, nil, flag)
	return normalize(k, v, err)
}

func normalize(k, v []byte, err error) ([]byte, []byte, error) {
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	return k, v, nil
}

func (c *mdbxCursor) Close() { c.c.Close() }

func (c *mdbxCursor) Put(k, v []byte) error    { return c.c.Put(k, v, 0) }
func (c *mdbxCursor) Delete(k []byte) error {
	if _, _, err := c.c.Get(k, nil, mdbx.Set); err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		return err
	}
	return c.c.Del(0)
}

func (c *mdbxCursor) SeekBothRange(key, subSeek []byte) ([]byte, error) {
	_, v, err := c.c.Get(key, subSeek, mdbx.GetBothRange)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (c *mdbxCursor) FirstDup() ([]byte, error) {
	_, v, err := c.c.Get(nil, nil, mdbx.FirstDup)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (c *mdbxCursor) NextDup() ([]byte, []byte, error) { return c.op(mdbx.NextDup) }

func (c *mdbxCursor) LastDup() ([]byte, error) {
	_, v, err := c.c.Get(nil, nil, mdbx.LastDup)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (c *mdbxCursor) CountDuplicates() (uint64, error) {
	n, err := c.c.Count()
	return n, err
}

func (c *mdbxCursor) PutNoDupData(key, value []byte) error {
	err := c.c.Put(key, value, mdbx.NoDupData)
	if err != nil && mdbx.IsKeyExists(err) {
		return nil
	}
	return err
}

func (c *mdbxCursor) DeleteCurrentDup() error { return c.c.Del(0) }

func (c *mdbxCursor) DeleteExact(key, value []byte) error {
	_, v, err := c.c.Get(key, value, mdbx.GetBothRange)
	if err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !bytes.Equal(v, value) {
		return nil
	}
	return c.c.Del(0)
}

func (c *mdbxCursor) AppendDup(key, value []byte) error {
	return c.c.Put(key, value, mdbx.AppendDup)
}
