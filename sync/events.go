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

// Package sync is the sole writer of chain data (§4): it drives the five
// markers forward by polling the central feeder (and, eventually, P2P
// peers) across five independent streams, detects reorgs by parent-hash
// mismatch, and reverts storage in dependency order when one occurs.
package sync

import "github.com/erigontech/starknet-erigon/core/types"

// Event is the sum type each stream's poll step produces. The driver
// type-switches on these rather than each stream calling storage directly,
// so ordering and reorg handling stay centralized in driver.go (§4.5).
type Event interface{ isEvent() }

// NewBlock is a committed header (and, if the feeder/peer has it yet, its
// signature) for the next header-marker position.
type NewBlock struct {
	Header    types.Header
	Signature *types.BlockSignature
}

// NewBody is the next body-marker position's transactions/outputs.
type NewBody struct {
	Body types.Body
}

// NewStateDiff is the next state-marker position's state diff.
type NewStateDiff struct {
	StateDiff types.StateDiff
}

// NewClasses is every class declared or deployed-but-undeclared at a given
// block number: Sierra declarations in map iteration order (not defined),
// then deprecated declarations in list order, then any backfill classes
// (§4.5, §9). It is emitted once per
// block, even when Classes is empty, so the class marker advances in
// lockstep with the other four markers (§3.3).
type NewClasses struct {
	BlockNumber types.BlockNumber
	Classes     []types.Class
}

// NewCompiledClass is the CASM output for an already-declared class,
// arriving on its own independent stream.
type NewCompiledClass struct {
	CompiledClass types.CompiledClass
}

// NewBaseLayerBlock is an L1-confirmed block number/hash pair.
type NewBaseLayerBlock struct {
	BlockNumber types.BlockNumber
	BlockHash   types.BlockHash
}

// Reorg signals that the stream's next header no longer chains from the
// locally stored parent: every dimension must revert down to (and
// including) RevertFrom before resuming (§3.3, §4.4).
type Reorg struct {
	RevertFrom types.BlockNumber
}

func (NewBlock) isEvent()          {}
func (NewBody) isEvent()           {}
func (NewStateDiff) isEvent()      {}
func (NewClasses) isEvent()        {}
func (NewCompiledClass) isEvent()  {}
func (NewBaseLayerBlock) isEvent() {}
func (Reorg) isEvent()             {}
