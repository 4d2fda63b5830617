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
	"fmt"

	"github.com/erigontech/mdbx-go/mdbx"
)

// mdbxRwTx is the single live write transaction handle. It embeds mdbxTx for
// the read-side methods and is only ever touched by the writerActor
// goroutine that created it (§4.1).
type mdbxRwTx struct {
	mdbxTx
}

func (t *mdbxRwTx) Put(table string, key, val []byte) error {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Put(dbi, key, val, 0); err != nil {
		return fmt.Errorf("kv: put %s: %w", table, err)
	}
	return nil
}

func (t *mdbxRwTx) Insert(table string, key, val []byte) error {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Put(dbi, key, val, mdbx.NoOverwrite); err != nil {
		if mdbx.IsKeyExists(err) {
			return ErrKeyAlreadyExists
		}
		return fmt.Errorf("kv: insert %s: %w", table, err)
	}
	return nil
}

// Append requires key to be strictly greater than the table's current last
// key (§4.1). MDBX's own Append flag enforces this natively; we translate
// its error into our typed *AppendError so callers get Last/Got context.
func (t *mdbxRwTx) Append(table string, key, val []byte) error {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Put(dbi, key, val, mdbx.Append); err != nil {
		if mdbx.IsKeyExists(err) || isAppendViolation(err) {
			last, _ := t.lastKey(table)
			return &AppendError{Table: table, Last: last, Got: key}
		}
		return fmt.Errorf("kv: append %s: %w", table, err)
	}
	return nil
}

func (t *mdbxRwTx) lastKey(table string) ([]byte, error) {
	c, err := t.Cursor(table)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	k, _, err := c.Last()
	return k, err
}

func isAppendViolation(err error) bool {
	// mdbx-go surfaces a non-monotone Append as EKEYMISMATCH/EINVAL
	// depending on version; treat anything that is not "key exists" as an
	// append violation here, since Put was called with mdbx.Append only.
	return err != nil
}

func (t *mdbxRwTx) Delete(table string, key []byte) error {
	dbi, err := t.db.dbi(table)
	if err != nil {
		return err
	}
	if err := t.txn.Del(dbi, key, nil); err != nil {
		if mdbx.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("kv: delete %s: %w", table, err)
	}
	return nil
}

func (t *mdbxRwTx) RwCursor(table string) (RwCursor, error) {
	c, err := t.Cursor(table)
	if err != nil {
		return nil, err
	}
	return c.(*mdbxCursor), nil
}

func (t *mdbxRwTx) RwCursorDupSort(table string) (RwCursorDupSort, error) {
	c, err := t.Cursor(table)
	if err != nil {
		return nil, err
	}
	return c.(*mdbxCursor), nil
}

func (t *mdbxRwTx) Commit() error {
	_, err := t.txn.Commit()
	if err != nil {
		return fmt.Errorf("kv: commit: %w", err)
	}
	return nil
}
