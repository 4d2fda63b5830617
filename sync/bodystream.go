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

	"github.com/erigontech/starknet-erigon/central"
	"github.com/erigontech/starknet-erigon/core/types"
)

// BodyStream polls the feeder for transaction bodies, one block at a time.
// It never detects reorgs itself: the header stream is the sole source of
// truth for chain continuity (§3.3), and the driver stops advancing every
// stream the moment the header stream reports one.
type BodyStream struct {
	client central.Client
	next   types.BlockNumber
}

func NewBodyStream(client central.Client, next types.BlockNumber) *BodyStream {
	return &BodyStream{client: client, next: next}
}

func (s *BodyStream) Poll(ctx context.Context, headerMarker types.BlockNumber) (Event, error) {
	if s.next >= headerMarker {
		// Never run ahead of the header dimension (§4.5 ordering rule).
		return nil, nil
	}
	body, err := s.client.GetBody(ctx, s.next)
	if err != nil {
		return nil, fmt.Errorf("sync: body stream: get body %d: %w", s.next, err)
	}
	s.next++
	return NewBody{Body: body}, nil
}

func (s *BodyStream) Advance(next types.BlockNumber) { s.next = next }
