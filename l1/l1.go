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

// Package l1 declares the base-layer adapter boundary: the interface the
// sync pipeline polls to learn which blocks the L1 state-update contract
// has confirmed. Its Ethereum JSON-RPC/contract-binding internals are out
// of scope (§6).
package l1

import (
	"context"

	"github.com/erigontech/starknet-erigon/core/types"
)

// Adapter reports the highest L2 block number and hash the base layer has
// confirmed, per the L1 state contract's latest update event. ok is false
// when the base layer has not confirmed any block yet (§6.4's
// Option<(BlockNumber, BlockHash)>), not an error condition.
type Adapter interface {
	LatestConfirmed(ctx context.Context) (n types.BlockNumber, hash types.BlockHash, ok bool, err error)
}
