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

	"github.com/erigontech/starknet-erigon/core/types"
	"github.com/erigontech/starknet-erigon/storage"
)

// revert unwinds every dimension from its current marker down to (and
// including) from, highest block first, so a dimension's data is never
// missing data a lower dimension still depends on (§4.4: bodies/state/
// classes are removed before the header they belong to, since a header's
// hash is what a later revert step's parent-hash check would otherwise
// trust).
func revert(ctx context.Context, st *storage.Storage, from types.BlockNumber) error {
	classMarker, err := st.ClassMarker(ctx)
	if err != nil {
		return fmt.Errorf("sync: revert: class marker: %w", err)
	}
	for n := classMarker; n > from; n-- {
		if _, err := st.RevertClass(ctx, n-1); err != nil {
			return fmt.Errorf("sync: revert: class %d: %w", n-1, err)
		}
	}

	stateMarker, err := st.StateMarker(ctx)
	if err != nil {
		return fmt.Errorf("sync: revert: state marker: %w", err)
	}
	for n := stateMarker; n > from; n-- {
		if _, err := st.RevertStateDiff(ctx, n-1); err != nil {
			return fmt.Errorf("sync: revert: state diff %d: %w", n-1, err)
		}
	}

	bodyMarker, err := st.BodyMarker(ctx)
	if err != nil {
		return fmt.Errorf("sync: revert: body marker: %w", err)
	}
	for n := bodyMarker; n > from; n-- {
		if _, err := st.RevertBody(ctx, n-1); err != nil {
			return fmt.Errorf("sync: revert: body %d: %w", n-1, err)
		}
	}

	headerMarker, err := st.HeaderMarker(ctx)
	if err != nil {
		return fmt.Errorf("sync: revert: header marker: %w", err)
	}
	for n := headerMarker; n > from; n-- {
		if _, err := st.RevertHeader(ctx, n-1); err != nil {
			return fmt.Errorf("sync: revert: header %d: %w", n-1, err)
		}
	}

	baseLayerMarker, err := st.BaseLayerMarker(ctx)
	if err != nil {
		return fmt.Errorf("sync: revert: base layer marker: %w", err)
	}
	if baseLayerMarker > from {
		if err := st.RevertBaseLayer(ctx, from); err != nil {
			return fmt.Errorf("sync: revert: base layer: %w", err)
		}
	}

	return nil
}
