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
	"fmt"

	"github.com/erigontech/starknet-erigon/core/types"
	"github.com/erigontech/starknet-erigon/kv"
	"github.com/erigontech/starknet-erigon/valuestore"
)

func encodeClass(c types.Class) []byte {
	e := &enc{}
	e.u64(uint64(c.DeclaredAt))
	e.byte(byte(c.Variant))
	e.bytes(c.SierraProgram)
	e.bytes(c.DeprecatedProgram)
	e.bytes(c.CompiledProgram)
	return e.bytesOut()
}

func decodeClass(hash types.ClassHash, b []byte) (types.Class, error) {
	d := newDec(b)
	c := types.Class{Hash: hash}
	bn, err := d.u64()
	if err != nil {
		return c, err
	}
	c.DeclaredAt = types.BlockNumber(bn)
	variant, err := d.byte()
	if err != nil {
		return c, err
	}
	c.Variant = types.ClassVariant(variant)
	if c.SierraProgram, err = d.bytes(); err != nil {
		return c, err
	}
	if c.DeprecatedProgram, err = d.bytes(); err != nil {
		return c, err
	}
	if c.CompiledProgram, err = d.bytes(); err != nil {
		return c, err
	}
	return c, d.done()
}

// AppendClass declares every class named at blockNumber (both state-diff
// declarations and deployed-but-undeclared backfill classes, §4.5/§9) as one
// batch, enforcing marker == blockNumber and advancing the class marker
// exactly once regardless of how many classes the block carries (§4.3).
// Class bodies are content-addressed, not block-addressed: class.Hash, not
// blockNumber, is the table key, and the class marker only orders how many
// per-block declare batches the sync pipeline has consumed. A block that
// declares zero classes still advances the marker by calling this with an
// empty classes slice.
func (s *Storage) AppendClass(ctx context.Context, blockNumber types.BlockNumber, classes []types.Class) error {
	return s.update(ctx, func(tx kv.RwTx) error {
		if err := checkAndAdvanceMarker(tx, types.MarkerClass, blockNumber); err != nil {
			return err
		}
		for _, class := range classes {
			loc, err := s.classes.Append(encodeClass(class))
			if err != nil {
				return err
			}
			if err := tx.Insert(kv.Classes, class.Hash[:], loc.MarshalBinary()); err != nil {
				return err
			}
			if err := tx.Insert(kv.ClassDeclaredAt, class.Hash[:], encodeBlockNumber(blockNumber)); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendCompiledClass attaches the CASM output for an already-declared
// class. It does not touch the class marker: compiled classes are their own
// independent stream in the sync pipeline (§4.5), synchronized against the
// class marker only by the driver, not by storage.
func (s *Storage) AppendCompiledClass(ctx context.Context, cc types.CompiledClass) error {
	return s.update(ctx, func(tx kv.RwTx) error {
		loc, err := s.classes.Append(cc.Casm)
		if err != nil {
			return err
		}
		return tx.Put(kv.Classes, compiledClassKey(cc.ClassHash), loc.MarshalBinary())
	})
}

func compiledClassKey(hash types.ClassHash) []byte {
	return append([]byte("casm:"), hash[:]...)
}

// GetClass returns the declared class body for hash.
func (s *Storage) GetClass(ctx context.Context, hash types.ClassHash) (types.Class, bool, error) {
	var class types.Class
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		v, ok, err := tx.GetOne(kv.Classes, hash[:])
		if err != nil || !ok {
			return err
		}
		loc, err := valuestore.UnmarshalLocator(v)
		if err != nil {
			return err
		}
		raw, err := s.classes.Read(loc)
		if err != nil {
			return err
		}
		class, err = decodeClass(hash, raw)
		found = err == nil
		return err
	})
	return class, found, err
}

// GetCompiledClass returns the CASM attached to hash, if compiled yet.
func (s *Storage) GetCompiledClass(ctx context.Context, hash types.ClassHash) (types.CompiledClass, bool, error) {
	var cc types.CompiledClass
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		v, ok, err := tx.GetOne(kv.Classes, compiledClassKey(hash))
		if err != nil || !ok {
			return err
		}
		loc, err := valuestore.UnmarshalLocator(v)
		if err != nil {
			return err
		}
		raw, err := s.classes.Read(loc)
		if err != nil {
			return err
		}
		cc = types.CompiledClass{ClassHash: hash, Casm: raw}
		found = true
		return nil
	})
	return cc, found, err
}

// ClassMarker returns the class dimension's current marker value.
func (s *Storage) ClassMarker(ctx context.Context) (types.BlockNumber, error) {
	var m types.BlockNumber
	err := s.view(ctx, func(tx kv.Tx) error {
		var err error
		m, err = getMarker(tx, types.MarkerClass)
		return err
	})
	return m, err
}

// RevertClass un-declares every class whose ClassDeclaredAt equals
// blockNumber and sets the class marker back to blockNumber (§4.4). The
// class bodies themselves stay in the value file (§4.2 immutability); only
// the Classes/ClassDeclaredAt index rows are removed. A no-op, returning
// (nil, nil), unless the class marker is currently exactly blockNumber+1.
func (s *Storage) RevertClass(ctx context.Context, blockNumber types.BlockNumber) ([]types.ClassHash, error) {
	var removed []types.ClassHash
	err := s.update(ctx, func(tx kv.RwTx) error {
		if ok, err := revertPrecondition(tx, types.MarkerClass, blockNumber); err != nil || !ok {
			return err
		}

		c, err := tx.RwCursor(kv.ClassDeclaredAt)
		if err != nil {
			return err
		}
		defer c.Close()
		for k, v, err := c.First(); k != nil; k, v, err = c.Next() {
			if err != nil {
				return err
			}
			bn, err := decodeBlockNumber(v)
			if err != nil {
				return err
			}
			if bn != blockNumber {
				continue
			}
			var hash types.ClassHash
			copy(hash[:], k)
			removed = append(removed, hash)
		}
		for _, hash := range removed {
			if err := tx.Delete(kv.ClassDeclaredAt, hash[:]); err != nil {
				return err
			}
			if err := tx.Delete(kv.Classes, hash[:]); err != nil {
				return err
			}
		}
		return setMarker(tx, types.MarkerClass, blockNumber)
	})
	if err != nil {
		return nil, fmt.Errorf("storage: revert class %d: %w", blockNumber, err)
	}
	return removed, nil
}
