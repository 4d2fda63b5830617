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
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/erigontech/starknet-erigon/core/types"
)

// enc is a small fixed-endian byte-oriented encoder for the composite
// records stored as locator-addressed values in the value files and as
// inline values in the secondary-index tables. There is no self-describing
// schema here by design: every reader knows exactly what it is decoding
// (§4.2), so the wire shape is just concatenated fields, length-prefixed
// where variable.
type enc struct{ buf bytes.Buffer }

func (e *enc) byte(b byte)     { e.buf.WriteByte(b) }
func (e *enc) u32(v uint32)    { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); e.buf.Write(b[:]) }
func (e *enc) u64(v uint64)    { var b [8]byte; binary.BigEndian.PutUint64(b[:], v); e.buf.Write(b[:]) }
func (e *enc) felt(f types.Felt) { e.buf.Write(f[:]) }
func (e *enc) bytes(b []byte) { e.u32(uint32(len(b))); e.buf.Write(b) }
func (e *enc) str(s string)   { e.bytes([]byte(s)) }

func (e *enc) uint256(v *uint256.Int) {
	if v == nil {
		e.byte(0)
		return
	}
	e.byte(1)
	b := v.Bytes32()
	e.buf.Write(b[:])
}

func (e *enc) feltSlice(fs []types.Felt) {
	e.u32(uint32(len(fs)))
	for _, f := range fs {
		e.felt(f)
	}
}

func (e *enc) bytesOut() []byte { return e.buf.Bytes() }

// dec is the enc counterpart, reading from a flat byte slice and returning
// an error the moment it runs past the end (corruption or a bug, never an
// expected outcome).
type dec struct {
	b   []byte
	off int
}

func newDec(b []byte) *dec { return &dec{b: b} }

func (d *dec) need(n int) error {
	if d.off+n > len(d.b) {
		return fmt.Errorf("storage: %w: truncated record", ErrSerialization)
	}
	return nil
}

func (d *dec) byte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.b[d.off]
	d.off++
	return v, nil
}

func (d *dec) u32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.b[d.off:])
	d.off += 4
	return v, nil
}

func (d *dec) u64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(d.b[d.off:])
	d.off += 8
	return v, nil
}

func (d *dec) felt() (types.Felt, error) {
	if err := d.need(32); err != nil {
		return types.Felt{}, err
	}
	var f types.Felt
	copy(f[:], d.b[d.off:d.off+32])
	d.off += 32
	return f, nil
}

func (d *dec) bytes() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.b[d.off:d.off+int(n)])
	d.off += int(n)
	return out, nil
}

func (d *dec) str() (string, error) {
	b, err := d.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *dec) uint256() (*uint256.Int, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}
	if tag == 0 {
		return nil, nil
	}
	if err := d.need(32); err != nil {
		return nil, err
	}
	var b [32]byte
	copy(b[:], d.b[d.off:d.off+32])
	d.off += 32
	v := new(uint256.Int).SetBytes32(b[:])
	return v, nil
}

func (d *dec) feltSlice() ([]types.Felt, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]types.Felt, n)
	for i := range out {
		f, err := d.felt()
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func (d *dec) done() error {
	if d.off != len(d.b) {
		return fmt.Errorf("storage: %w: trailing bytes", ErrSerialization)
	}
	return nil
}

// ErrSerialization is wrapped by every decode failure in this package.
var ErrSerialization = fmt.Errorf("storage: serialization error")

func txnKey(blockNumber types.BlockNumber, offset uint32) []byte {
	k := make([]byte, 12)
	binary.BigEndian.PutUint64(k[:8], uint64(blockNumber))
	binary.BigEndian.PutUint32(k[8:], offset)
	return k
}

func decodeTxnKey(k []byte) (types.BlockNumber, uint32, error) {
	if len(k) != 12 {
		return 0, 0, fmt.Errorf("storage: bad txn key length %d", len(k))
	}
	return types.BlockNumber(binary.BigEndian.Uint64(k[:8])), binary.BigEndian.Uint32(k[8:]), nil
}

func addressBlockKey(addr types.Address, blockNumber types.BlockNumber) []byte {
	k := make([]byte, 40)
	copy(k[:32], addr[:])
	binary.BigEndian.PutUint64(k[32:], uint64(blockNumber))
	return k
}

func blockAddressKey(blockNumber types.BlockNumber, addr types.Address) []byte {
	k := make([]byte, 40)
	binary.BigEndian.PutUint64(k[:8], uint64(blockNumber))
	copy(k[8:], addr[:])
	return k
}

func storageAtKey(addr types.Address, slot types.StorageKey, blockNumber types.BlockNumber) []byte {
	k := make([]byte, 72)
	copy(k[:32], addr[:])
	copy(k[32:64], slot[:])
	binary.BigEndian.PutUint64(k[64:], uint64(blockNumber))
	return k
}

