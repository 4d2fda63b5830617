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

import "bytes"

// DupTable wraps a common-prefix dup-sort table (§4.1). Every sub-entry is
// physically stored as (main, sub‖value): the main key bytes are written
// once by MDBX's native DupSort feature, and Sub is required to be a fixed
// or otherwise self-delimiting prefix of the stored value so Get can tell
// where sub ends and value begins.
//
// MDBX's native DupSort already gives us "main key stored once" for free;
// what this type adds on top is the single-valued-mapping semantics (§4.1):
// (main,sub) must map to at most one value, so Upsert has to find and remove
// a stale dup before writing the new one.
type DupTable struct {
	Name    string
	SubLen  int // byte length of the serialized sub key, fixed-width
}

// Get seeks to (main, sub) as a lower bound and confirms the returned dup
// starts with the serialized sub key, per §4.1's Get semantics.
func (d DupTable) Get(c CursorDupSort, main, sub []byte) (value []byte, found bool, err error) {
	v, err := c.SeekBothRange(main, sub)
	if err != nil {
		return nil, false, err
	}
	if v == nil || len(v) < d.SubLen || !bytes.Equal(v[:d.SubLen], sub) {
		return nil, false, nil
	}
	return v[d.SubLen:], true, nil
}

// Upsert writes (main, sub‖value). If a different dup already maps sub to
// some other value, it is deleted first so the mapping stays single-valued
// (§4.1: "if another entry with the same (m,s) but different v exists ...
// delete it").
func (d DupTable) Upsert(c RwCursorDupSort, main, sub, value []byte) error {
	existing, found, err := d.Get(c, main, sub)
	if err != nil {
		return err
	}
	if found {
		if bytes.Equal(existing, value) {
			return nil
		}
		if err := c.DeleteExact(main, append(append([]byte{}, sub...), existing...)); err != nil {
			return err
		}
	}
	return c.Put(main, append(append([]byte{}, sub...), value...))
}

// Insert is Upsert but fails with ErrKeyAlreadyExists if (main,sub) already
// maps to something.
func (d DupTable) Insert(c RwCursorDupSort, main, sub, value []byte) error {
	_, found, err := d.Get(c, main, sub)
	if err != nil {
		return err
	}
	if found {
		return ErrKeyAlreadyExists
	}
	return c.Put(main, append(append([]byte{}, sub...), value...))
}

// Append requires the composite (main,sub) key to be strictly greater than
// the table's current last composite key. If it is exactly equal to the
// last key, the overwrite-append form of §4.1 applies: delete the last dup,
// then append the new one. AppendGreaterSubKey is the stricter variant that
// fails instead of overwriting on equality.
func (d DupTable) Append(c RwCursorDupSort, main, sub, value []byte) error {
	return d.append(c, main, sub, value, true)
}

// AppendGreaterSubKey fails with *AppendError on equality instead of
// overwriting (§4.1's "stricter variant").
func (d DupTable) AppendGreaterSubKey(c RwCursorDupSort, main, sub, value []byte) error {
	return d.append(c, main, sub, value, false)
}

func (d DupTable) append(c RwCursorDupSort, main, sub, value []byte, allowOverwrite bool) error {
	lastMain, lastSub, lastValue, ok, err := d.last(c)
	if err != nil {
		return err
	}
	composite := append(append([]byte{}, main...), sub...)
	if ok {
		lastComposite := append(append([]byte{}, lastMain...), lastSub...)
		cmp := bytes.Compare(composite, lastComposite)
		if cmp < 0 {
			return &AppendError{Table: d.Name, Last: lastComposite, Got: composite}
		}
		if cmp == 0 {
			if !allowOverwrite {
				return &AppendError{Table: d.Name, Last: lastComposite, Got: composite}
			}
			if err := c.DeleteExact(lastMain, append(append([]byte{}, lastSub...), lastValue...)); err != nil {
				return err
			}
		}
	}
	return c.AppendDup(main, append(append([]byte{}, sub...), value...))
}

func (d DupTable) last(c RwCursorDupSort) (main, sub, value []byte, ok bool, err error) {
	k, v, err := c.Last()
	if err != nil || k == nil {
		return nil, nil, nil, false, err
	}
	if len(v) < d.SubLen {
		return nil, nil, nil, false, ErrSerialization
	}
	return k, v[:d.SubLen], v[d.SubLen:], true, nil
}
