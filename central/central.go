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

// Package central declares the feeder-gateway client boundary the sync
// pipeline polls for headers, bodies, state diffs and classes. Its HTTP
// client internals are out of scope (§6): this package is only the
// interface the driver depends on. It holds no implementation; the fakes
// that satisfy it live with their users (sync's tests, the dev command).
package central

import (
	"context"

	"github.com/erigontech/starknet-erigon/core/types"
)

// Client is the feeder boundary. Implementations may be backed by an HTTP
// client against a real feeder gateway, or, in tests, by an in-memory fake.
type Client interface {
	GetHeader(ctx context.Context, blockNumber types.BlockNumber) (types.Header, error)
	GetSignature(ctx context.Context, blockNumber types.BlockNumber) (types.BlockSignature, error)
	GetBody(ctx context.Context, blockNumber types.BlockNumber) (types.Body, error)
	GetStateDiff(ctx context.Context, blockNumber types.BlockNumber) (types.StateDiff, error)
	GetClass(ctx context.Context, hash types.ClassHash) (types.Class, error)
	GetCompiledClass(ctx context.Context, hash types.ClassHash) (types.CompiledClass, error)

	// LatestBlockNumber reports the highest block number the feeder
	// currently serves, used by the driver to decide whether polling
	// should keep advancing or back off (§4.5).
	LatestBlockNumber(ctx context.Context) (types.BlockNumber, error)
}
