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

import "context"

// Tx is a read-only transaction view. Its lifetime bounds the lifetime of
// any []byte or Cursor obtained from it (§3.4): once Rollback is called,
// those slices must not be read again.
type Tx interface {
	// GetOne returns the value for key in table, or (nil, false, nil) if
	// absent.
	GetOne(table string, key []byte) (val []byte, ok bool, err error)
	Cursor(table string) (Cursor, error)
	// CursorDupSort returns a cursor over a common-prefix dup-sort table
	// (§4.1); calling it on a simple table is a programmer error.
	CursorDupSort(table string) (CursorDupSort, error)
	Rollback()
}

// RwTx is the single live write transaction. All mutating methods are only
// ever called from the writer-actor goroutine that owns the underlying MDBX
// write transaction (§4.1 "Write transaction management").
type RwTx interface {
	Tx

	Put(table string, key, val []byte) error
	// Insert fails with ErrKeyAlreadyExists if key is already mapped.
	Insert(table string, key, val []byte) error
	// Append fails with *AppendError unless key > the table's current last
	// key.
	Append(table string, key, val []byte) error
	Delete(table string, key []byte) error

	RwCursor(table string) (RwCursor, error)
	RwCursorDupSort(table string) (RwCursorDupSort, error)

	Commit() error
	Rollback()
}

// Cursor supports ordered traversal of a simple table.
type Cursor interface {
	First() (k, v []byte, err error)
	Next() (k, v []byte, err error)
	Prev() (k, v []byte, err error)
	Last() (k, v []byte, err error)
	// Seek positions at the first key >= seek (a "lower_bound").
	Seek(seek []byte) (k, v []byte, err error)
	Current() (k, v []byte, err error)
	Close()
}

// RwCursor additionally supports in-place mutation at the cursor position,
// used by the common-prefix dup-sort emulation's delete-then-reinsert steps.
type RwCursor interface {
	Cursor
	Put(k, v []byte) error
	Delete(k []byte) error
}

// CursorDupSort additionally walks the sub-entries that share one main-key
// prefix (§4.1 "Common-prefix dup-sort tables").
type CursorDupSort interface {
	Cursor
	// SeekBothRange positions at the first (key,value) pair with this key
	// and value >= subSeek, scoped to key's dup group.
	SeekBothRange(key, subSeek []byte) (v []byte, err error)
	FirstDup() (v []byte, err error)
	NextDup() (k, v []byte, err error)
	LastDup() (v []byte, err error)
	CountDuplicates() (uint64, error)
}

// RwCursorDupSort is the write-capable CursorDupSort.
type RwCursorDupSort interface {
	CursorDupSort
	RwCursor
	// PutNoDupData writes (key, value) only if value is not already a dup
	// of key; see DupTable.Insert semantics.
	PutNoDupData(key, value []byte) error
	// DeleteCurrentDup deletes the dup entry the cursor is positioned on.
	DeleteCurrentDup() error
	// DeleteExact deletes exactly the (key, value) dup pair if present.
	DeleteExact(key, value []byte) error
	AppendDup(key, value []byte) error
}

// DB is the open database handle: it can hand out read transactions freely
// and serializes write transactions through the writer actor (§4.1, §5).
type DB interface {
	BeginRo(ctx context.Context) (Tx, error)
	// BeginRw blocks (with the ~250ms back-off described in §4.1) until the
	// single write transaction slot is free, or ctx is done.
	BeginRw(ctx context.Context) (RwTx, error)
	Close() error
}
