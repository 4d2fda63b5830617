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
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/erigontech/starknet-erigon/central"
	"github.com/erigontech/starknet-erigon/core/types"
)

// StateDiffStream polls the feeder for one block's state diff and the
// classes it newly declares, fanning the per-class fetches out in parallel
// (bounded by MaxClassesToDownload) the way the teacher's stage-sync steps
// fan out parallel work with errgroup.
type StateDiffStream struct {
	client central.Client
	next   types.BlockNumber

	// MaxClassesToDownload bounds how many of a single block's newly
	// declared classes are fetched concurrently (§5 backpressure knobs).
	MaxClassesToDownload int
}

func NewStateDiffStream(client central.Client, next types.BlockNumber) *StateDiffStream {
	return &StateDiffStream{client: client, next: next, MaxClassesToDownload: 16}
}

// Poll returns the state-diff event for the next block, plus one NewClasses
// batch covering every class the block declares, followed by any
// deployed-but-undeclared backfill classes (§4.5, §9). Sierra declarations
// come first, in map iteration order (StateDiff.DeclaredClasses does not
// keep the declaration order, so their relative order is not defined), then
// deprecated declarations in list order. NewClasses is emitted even when a block declares no
// classes at all, so the class marker advances exactly once per block in
// lockstep with the other four markers (§3.3's per-dimension marker
// invariant), the same way an empty state diff still advances the state
// marker.
func (s *StateDiffStream) Poll(ctx context.Context, headerMarker types.BlockNumber) ([]Event, error) {
	if s.next >= headerMarker {
		return nil, nil
	}
	sd, err := s.client.GetStateDiff(ctx, s.next)
	if err != nil {
		return nil, fmt.Errorf("sync: state diff stream: get state diff %d: %w", s.next, err)
	}

	hashes := make([]types.ClassHash, 0, len(sd.DeclaredClasses))
	for ch := range sd.DeclaredClasses {
		hashes = append(hashes, ch)
	}
	hashes = append(hashes, sd.DeprecatedDeclaredClasses...)
	for _, u := range deployedUndeclaredClasses(sd, s.next) {
		hashes = append(hashes, u.ClassHash)
	}
	classes := make([]types.Class, len(hashes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.MaxClassesToDownload))
	for i, ch := range hashes {
		i, ch := i, ch
		g.Go(func() error {
			c, err := s.client.GetClass(gctx, ch)
			if err != nil {
				return fmt.Errorf("sync: state diff stream: get class %s: %w", ch, err)
			}
			classes[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	events := []Event{
		NewStateDiff{StateDiff: sd},
		NewClasses{BlockNumber: s.next, Classes: classes},
	}

	s.next++
	return events, nil
}

// deployedUndeclaredClasses names every class a deployed_contracts entry of
// sd references that sd's own declared_classes/deprecated_declared_classes
// never declares: the Cairo-0 backfill classes (§9). Poll fetches them with
// the declared classes and emits them in the same NewClasses batch, so they
// are stored through AppendClass; AppendStateDiff has no separate input for
// them.
func deployedUndeclaredClasses(sd types.StateDiff, blockNumber types.BlockNumber) []types.DeployedUndeclaredClass {
	deprecated := make(map[types.ClassHash]struct{}, len(sd.DeprecatedDeclaredClasses))
	for _, ch := range sd.DeprecatedDeclaredClasses {
		deprecated[ch] = struct{}{}
	}
	seen := make(map[types.ClassHash]struct{})
	var out []types.DeployedUndeclaredClass
	for _, ch := range sd.DeployedContracts {
		if _, ok := sd.DeclaredClasses[ch]; ok {
			continue
		}
		if _, ok := deprecated[ch]; ok {
			continue
		}
		if _, ok := seen[ch]; ok {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, types.DeployedUndeclaredClass{ClassHash: ch, BlockNumber: blockNumber})
	}
	return out
}

func (s *StateDiffStream) Advance(next types.BlockNumber) { s.next = next }
