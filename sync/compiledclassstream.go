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

package sync

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/elastic/go-freelru"
	"golang.org/x/sync/singleflight"

	"github.com/erigontech/starknet-erigon/central"
	"github.com/erigontech/starknet-erigon/core/types"
)

func hashClassHash(h types.ClassHash) uint32 { return binary.BigEndian.Uint32(h[:4]) }

// classHashSeenCap bounds the already-compiled dedup cache; a class hash
// falling out of it just means Enqueue may redundantly re-fetch it once,
// not a correctness problem.
const classHashSeenCap = 4096

// CompiledClassStream compiles (fetches the CASM for) each class the state
// diff stream has declared, independently of the class marker, as its own
// stream per §4.5. pending is fed by the driver as NewClasses events arrive.
// seen deduplicates a class hash that the state-diff stream enqueues more
// than once (e.g. re-declared across blocks before compilation catches up);
// inFlight collapses concurrent Enqueue/Poll races onto a single fetch.
type CompiledClassStream struct {
	client  central.Client
	pending []types.ClassHash

	seen     *freelru.LRU[types.ClassHash, struct{}]
	inFlight singleflight.Group
}

func NewCompiledClassStream(client central.Client) *CompiledClassStream {
	seen, err := freelru.New[types.ClassHash, struct{}](classHashSeenCap, hashClassHash)
	if err != nil {
		// Only returns an error for a zero capacity, which classHashSeenCap
		// never is; panicking here would be reachable only by a future edit
		// to that constant, so this is a program-bug assertion, not a
		// runtime condition callers need to handle.
		panic(fmt.Sprintf("sync: compiled class stream: %v", err))
	}
	return &CompiledClassStream{client: client, pending: nil, seen: seen}
}

// Enqueue records a class hash whose CASM has not been fetched yet, skipping
// one already fetched or already waiting in pending.
func (s *CompiledClassStream) Enqueue(hash types.ClassHash) {
	if _, ok := s.seen.Get(hash); ok {
		return
	}
	for _, p := range s.pending {
		if p == hash {
			return
		}
	}
	s.pending = append(s.pending, hash)
}

// Poll fetches the CASM for the oldest pending class hash, preserving FIFO
// order so compiled classes land in the same order their declarations did.
// Concurrent polls for the same hash collapse onto one client call via
// singleflight; pending itself is not guarded by a lock, so concurrent
// Poll/Enqueue calls are not safe (the driver calls them from one goroutine).
func (s *CompiledClassStream) Poll(ctx context.Context) (Event, error) {
	if len(s.pending) == 0 {
		return nil, nil
	}
	hash := s.pending[0]
	v, err, _ := s.inFlight.Do(hash.String(), func() (any, error) {
		return s.client.GetCompiledClass(ctx, hash)
	})
	if err != nil {
		return nil, fmt.Errorf("sync: compiled class stream: get compiled class %s: %w", hash, err)
	}
	s.pending = s.pending[1:]
	s.seen.Add(hash, struct{}{})
	return NewCompiledClass{CompiledClass: v.(types.CompiledClass)}, nil
}

// Len reports how many classes are still awaiting compilation; the driver
// polls this stream only while Len is non-zero. No upper bound is applied
// to the number of pending classes.
func (s *CompiledClassStream) Len() int { return len(s.pending) }
