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

// Package valuestore is the append-only file backing large immutable values
// (transaction bodies/outputs, contract classes) that don't belong in the
// B-tree itself (§4.2). Tables store (offset,len) Locators into it.
package valuestore

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// Locator is what a B-tree row stores in place of an inline value: the
// offset and length of the serialized record inside the value file.
type Locator struct {
	Offset uint64
	Len    uint32
}

// MarshalBinary encodes a Locator as offset(8)‖len(4), big-endian so it
// sorts the way the underlying uint64/uint32 would (not load-bearing today,
// but kept order-preserving per the KV engine's serialization contract in
// case a table ever indexes by locator).
func (l Locator) MarshalBinary() []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[:8], l.Offset)
	binary.BigEndian.PutUint32(buf[8:], l.Len)
	return buf
}

// UnmarshalLocator decodes bytes produced by Locator.MarshalBinary.
func UnmarshalLocator(b []byte) (Locator, error) {
	if len(b) != 12 {
		return Locator{}, fmt.Errorf("valuestore: bad locator length %d", len(b))
	}
	return Locator{
		Offset: binary.BigEndian.Uint64(b[:8]),
		Len:    binary.BigEndian.Uint32(b[8:]),
	}, nil
}

// Store is one append-only value file. Appends are serialized by mu;
// concurrent reads need no lock because appended regions are immutable and
// never overwritten (§4.2 guarantee ii/iii), and a reader only ever sees a
// Locator that was itself committed to the KV engine after the append it
// points to was flushed.
type Store struct {
	mu     sync.Mutex
	f      *os.File
	size   uint64
}

// Open opens (creating if absent) the value file at path and seeks to its
// current end, which becomes the next append offset.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("valuestore: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("valuestore: stat %s: %w", path, err)
	}
	return &Store{f: f, size: uint64(info.Size())}, nil
}

// Append writes data at the current end of file and returns its Locator.
// Offsets are strictly monotone and nothing already written is ever
// touched (§4.2).
func (s *Store) Append(data []byte) (Locator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	off := s.size
	n, err := s.f.WriteAt(data, int64(off))
	if err != nil {
		return Locator{}, fmt.Errorf("valuestore: append: %w", err)
	}
	s.size += uint64(n)
	return Locator{Offset: off, Len: uint32(len(data))}, nil
}

// Read mmaps the region described by loc and returns a copy of its bytes.
// A copy is returned (not the mmap'd slice itself) so callers can hold it
// past the unmap below without violating the "locators never outlive their
// transaction, but the bytes they resolve to may be copied out" rule in
// §3.4.
func (s *Store) Read(loc Locator) ([]byte, error) {
	if loc.Len == 0 {
		return nil, nil
	}
	// mmap.Map requires page-aligned offsets; map from 0 and slice, which is
	// simple and correct at the value-file sizes this store targets (classes
	// and transaction blobs, not multi-GB segments).
	m, err := mmap.MapRegion(s.f, int(loc.Offset+uint64(loc.Len)), mmap.RDONLY, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("valuestore: mmap: %w", err)
	}
	defer m.Unmap()
	out := make([]byte, loc.Len)
	copy(out, m[loc.Offset:loc.Offset+uint64(loc.Len)])
	return out, nil
}

// Size returns the current end-of-file offset, i.e. the offset the next
// Append will use.
func (s *Store) Size() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *Store) Close() error { return s.f.Close() }
