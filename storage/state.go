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
)

var deployedContractsTable = kv.DupTable{Name: kv.DeployedContracts, SubLen: 32}
var replacedClassesTable = kv.DupTable{Name: kv.ReplacedClasses, SubLen: 32}

func encodeStateDiff(sd types.StateDiff) []byte {
	e := &enc{}
	e.u32(uint32(len(sd.DeployedContracts)))
	for addr, ch := range sd.DeployedContracts {
		e.felt(addr)
		e.felt(ch)
	}
	e.u32(uint32(len(sd.StorageDiffs)))
	for addr, slots := range sd.StorageDiffs {
		e.felt(addr)
		e.u32(uint32(len(slots)))
		for slot, val := range slots {
			e.felt(slot)
			e.felt(val)
		}
	}
	e.u32(uint32(len(sd.DeclaredClasses)))
	for ch, dc := range sd.DeclaredClasses {
		e.felt(ch)
		e.felt(dc.CompiledClassHash)
		e.felt(dc.SierraProgramHash)
	}
	e.feltSlice(sd.DeprecatedDeclaredClasses)
	e.u32(uint32(len(sd.Nonces)))
	for addr, n := range sd.Nonces {
		e.felt(addr)
		e.felt(n)
	}
	e.u32(uint32(len(sd.ReplacedClasses)))
	for addr, ch := range sd.ReplacedClasses {
		e.felt(addr)
		e.felt(ch)
	}
	return e.bytesOut()
}

func decodeStateDiff(b []byte) (types.StateDiff, error) {
	d := newDec(b)
	var sd types.StateDiff

	n, err := d.u32()
	if err != nil {
		return sd, err
	}
	if n > 0 {
		sd.DeployedContracts = make(map[types.Address]types.ClassHash, n)
	}
	for i := uint32(0); i < n; i++ {
		addr, err := d.felt()
		if err != nil {
			return sd, err
		}
		ch, err := d.felt()
		if err != nil {
			return sd, err
		}
		sd.DeployedContracts[addr] = ch
	}

	nAddrs, err := d.u32()
	if err != nil {
		return sd, err
	}
	if nAddrs > 0 {
		sd.StorageDiffs = make(map[types.Address]map[types.StorageKey]types.Felt, nAddrs)
	}
	for i := uint32(0); i < nAddrs; i++ {
		addr, err := d.felt()
		if err != nil {
			return sd, err
		}
		nSlots, err := d.u32()
		if err != nil {
			return sd, err
		}
		slots := make(map[types.StorageKey]types.Felt, nSlots)
		for j := uint32(0); j < nSlots; j++ {
			slot, err := d.felt()
			if err != nil {
				return sd, err
			}
			val, err := d.felt()
			if err != nil {
				return sd, err
			}
			slots[slot] = val
		}
		sd.StorageDiffs[addr] = slots
	}

	nDeclared, err := d.u32()
	if err != nil {
		return sd, err
	}
	if nDeclared > 0 {
		sd.DeclaredClasses = make(map[types.ClassHash]types.DeclaredClass, nDeclared)
	}
	for i := uint32(0); i < nDeclared; i++ {
		ch, err := d.felt()
		if err != nil {
			return sd, err
		}
		var dc types.DeclaredClass
		if dc.CompiledClassHash, err = d.felt(); err != nil {
			return sd, err
		}
		if dc.SierraProgramHash, err = d.felt(); err != nil {
			return sd, err
		}
		sd.DeclaredClasses[ch] = dc
	}

	if sd.DeprecatedDeclaredClasses, err = d.feltSlice(); err != nil {
		return sd, err
	}

	nNonces, err := d.u32()
	if err != nil {
		return sd, err
	}
	if nNonces > 0 {
		sd.Nonces = make(map[types.Address]types.Felt, nNonces)
	}
	for i := uint32(0); i < nNonces; i++ {
		addr, err := d.felt()
		if err != nil {
			return sd, err
		}
		val, err := d.felt()
		if err != nil {
			return sd, err
		}
		sd.Nonces[addr] = val
	}

	nReplaced, err := d.u32()
	if err != nil {
		return sd, err
	}
	if nReplaced > 0 {
		sd.ReplacedClasses = make(map[types.Address]types.ClassHash, nReplaced)
	}
	for i := uint32(0); i < nReplaced; i++ {
		addr, err := d.felt()
		if err != nil {
			return sd, err
		}
		ch, err := d.felt()
		if err != nil {
			return sd, err
		}
		sd.ReplacedClasses[addr] = ch
	}

	return sd, d.done()
}

// AppendStateDiff commits the per-block world-state delta, flattening it
// into the secondary-index tables (§3.2) in addition to storing the whole
// diff for getStateUpdate, enforcing marker == sd.BlockNumber and advancing
// the state marker (§4.3).
//
// AppendStateDiff has no separate input for classes a deployment references
// without a declaration in the diff (see types.DeployedUndeclaredClass): the
// sync pipeline fetches those classes and stores them through AppendClass
// together with the block's declared classes. This façade does not itself
// store class bodies (class.go does, keyed by the same class hash).
func (s *Storage) AppendStateDiff(ctx context.Context, sd types.StateDiff) error {
	return s.update(ctx, func(tx kv.RwTx) error {
		if err := checkAndAdvanceMarker(tx, types.MarkerState, sd.BlockNumber); err != nil {
			return err
		}
		if err := tx.Append(kv.StateDiffs, encodeBlockNumber(sd.BlockNumber), encodeStateDiff(sd)); err != nil {
			return err
		}

		dupC, err := tx.RwCursorDupSort(kv.DeployedContracts)
		if err != nil {
			return err
		}
		defer dupC.Close()
		for addr, ch := range sd.DeployedContracts {
			if err := deployedContractsTable.Upsert(dupC, encodeBlockNumber(sd.BlockNumber), addr[:], ch[:]); err != nil {
				return err
			}
			if _, found, err := tx.GetOne(kv.FirstDeployment, addr[:]); err != nil {
				return err
			} else if !found {
				e := &enc{}
				e.u64(uint64(sd.BlockNumber))
				e.felt(ch)
				if err := tx.Put(kv.FirstDeployment, addr[:], e.bytesOut()); err != nil {
					return err
				}
			}
		}

		for addr, n := range sd.Nonces {
			key := addressBlockKey(addr, sd.BlockNumber)
			if err := tx.Put(kv.NonceAt, key, n[:]); err != nil {
				return err
			}
		}

		for addr, slots := range sd.StorageDiffs {
			for slot, val := range slots {
				key := storageAtKey(addr, slot, sd.BlockNumber)
				if err := tx.Put(kv.StorageAt, key, val[:]); err != nil {
					return err
				}
			}
		}

		replC, err := tx.RwCursorDupSort(kv.ReplacedClasses)
		if err != nil {
			return err
		}
		defer replC.Close()
		for addr, ch := range sd.ReplacedClasses {
			if err := replacedClassesTable.Upsert(replC, encodeBlockNumber(sd.BlockNumber), addr[:], ch[:]); err != nil {
				return err
			}
		}

		return nil
	})
}

// GetStateDiff returns the full state diff committed at blockNumber.
func (s *Storage) GetStateDiff(ctx context.Context, blockNumber types.BlockNumber) (types.StateDiff, bool, error) {
	var sd types.StateDiff
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		v, ok, err := tx.GetOne(kv.StateDiffs, encodeBlockNumber(blockNumber))
		if err != nil || !ok {
			return err
		}
		sd, err = decodeStateDiff(v)
		found = err == nil
		return err
	})
	return sd, found, err
}

// NonceAt returns address's nonce as of height, the value from the latest
// diff at or below height (§3.2, §8.1 "Range-prev lookup"). A contract with
// no nonce update at or before height reads as the zero Felt.
func (s *Storage) NonceAt(ctx context.Context, addr types.Address, height types.BlockNumber) (types.Felt, error) {
	var out types.Felt
	err := s.view(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.NonceAt)
		if err != nil {
			return err
		}
		defer c.Close()
		v, err := rangePrev(c, addr[:], height)
		if err != nil || v == nil {
			return err
		}
		copy(out[:], v)
		return nil
	})
	return out, err
}

// StorageAt returns the value of addr's slot as of height, the value from
// the latest diff at or below height (§3.2, §8.1).
func (s *Storage) StorageAt(ctx context.Context, addr types.Address, slot types.StorageKey, height types.BlockNumber) (types.Felt, error) {
	var out types.Felt
	err := s.view(ctx, func(tx kv.Tx) error {
		c, err := tx.Cursor(kv.StorageAt)
		if err != nil {
			return err
		}
		defer c.Close()
		prefix := append(append([]byte{}, addr[:]...), slot[:]...)
		v, err := rangePrev(c, prefix, height)
		if err != nil || v == nil {
			return err
		}
		copy(out[:], v)
		return nil
	})
	return out, err
}

// rangePrev implements the (prefix, height) -> latest-value-at-or-below
// lookup shared by NonceAt and StorageAt: both tables key on
// prefix‖block_num_u64, so seeking to prefix‖(height+1) and stepping back
// one entry lands on the last write at or before height, as long as that
// entry still shares prefix.
func rangePrev(c kv.Cursor, prefix []byte, height types.BlockNumber) ([]byte, error) {
	seekKey := append(append([]byte{}, prefix...), encodeBlockNumber(height+1)...)
	k, v, err := c.Seek(seekKey)
	if err != nil {
		return nil, err
	}
	if k == nil {
		k, v, err = c.Last()
		if err != nil {
			return nil, err
		}
	} else {
		k, v, err = c.Prev()
		if err != nil {
			return nil, err
		}
	}
	if k == nil || len(k) < len(prefix) || !bytesHasPrefix(k, prefix) {
		return nil, nil
	}
	return v, nil
}

func bytesHasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// FirstDeployment returns the block number and class hash of addr's first
// deployment, if it has ever been deployed (§3.2).
func (s *Storage) FirstDeployment(ctx context.Context, addr types.Address) (types.BlockNumber, types.ClassHash, bool, error) {
	var bn types.BlockNumber
	var ch types.ClassHash
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		v, ok, err := tx.GetOne(kv.FirstDeployment, addr[:])
		if err != nil || !ok {
			return err
		}
		d := newDec(v)
		raw, err := d.u64()
		if err != nil {
			return err
		}
		bn = types.BlockNumber(raw)
		if ch, err = d.felt(); err != nil {
			return err
		}
		found = true
		return nil
	})
	return bn, ch, found, err
}

// StateMarker returns the state dimension's current marker value.
func (s *Storage) StateMarker(ctx context.Context) (types.BlockNumber, error) {
	var m types.BlockNumber
	err := s.view(ctx, func(tx kv.Tx) error {
		var err error
		m, err = getMarker(tx, types.MarkerState)
		return err
	})
	return m, err
}

// RevertStateDiff removes blockNumber's state diff and every secondary-
// index row it produced, and sets the state marker back to blockNumber
// (§4.4). A FirstDeployment row is removed only where blockNumber was that
// address's first deployment; an earlier first deployment is left in place.
// A no-op, returning (nil, nil), unless the state marker is currently
// exactly blockNumber+1.
func (s *Storage) RevertStateDiff(ctx context.Context, blockNumber types.BlockNumber) (*types.ReplacedStateDiff, error) {
	sd, found, err := s.GetStateDiff(ctx, blockNumber)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	declared := make([]types.ClassHash, 0, len(sd.DeclaredClasses))
	for ch := range sd.DeclaredClasses {
		declared = append(declared, ch)
	}

	var reverted bool
	err = s.update(ctx, func(tx kv.RwTx) error {
		if ok, err := revertPrecondition(tx, types.MarkerState, blockNumber); err != nil || !ok {
			return err
		}
		reverted = true

		key := encodeBlockNumber(blockNumber)
		if err := tx.Delete(kv.StateDiffs, key); err != nil {
			return err
		}

		dupC, err := tx.RwCursorDupSort(kv.DeployedContracts)
		if err != nil {
			return err
		}
		defer dupC.Close()
		for addr, ch := range sd.DeployedContracts {
			if err := dupC.DeleteExact(key, append(append([]byte{}, addr[:]...), ch[:]...)); err != nil {
				return err
			}
			v, ok, err := tx.GetOne(kv.FirstDeployment, addr[:])
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			first, err := newDec(v).u64()
			if err != nil {
				return err
			}
			if types.BlockNumber(first) == blockNumber {
				if err := tx.Delete(kv.FirstDeployment, addr[:]); err != nil {
					return err
				}
			}
		}

		for addr := range sd.Nonces {
			if err := tx.Delete(kv.NonceAt, addressBlockKey(addr, blockNumber)); err != nil {
				return err
			}
		}

		for addr, slots := range sd.StorageDiffs {
			for slot := range slots {
				if err := tx.Delete(kv.StorageAt, storageAtKey(addr, slot, blockNumber)); err != nil {
					return err
				}
			}
		}

		replC, err := tx.RwCursorDupSort(kv.ReplacedClasses)
		if err != nil {
			return err
		}
		defer replC.Close()
		for addr, ch := range sd.ReplacedClasses {
			if err := replC.DeleteExact(key, append(append([]byte{}, addr[:]...), ch[:]...)); err != nil {
				return err
			}
		}

		return setMarker(tx, types.MarkerState, blockNumber)
	})
	if err != nil {
		return nil, fmt.Errorf("storage: revert state diff %d: %w", blockNumber, err)
	}
	if !reverted {
		return nil, nil
	}
	return &types.ReplacedStateDiff{StateDiff: sd, DeclaredClasses: declared}, nil
}
