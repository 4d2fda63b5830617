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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/erigontech/starknet-erigon/central"
	"github.com/erigontech/starknet-erigon/core/types"
	"github.com/erigontech/starknet-erigon/l1"
	"github.com/erigontech/starknet-erigon/storage"
)

// Config holds the driver's backpressure knobs (§5).
type Config struct {
	MaxClassesToDownload      int
	MaxStateUpdatesToDownload int
	MaxCompiledClassesPending int
	PollInterval              time.Duration

	// MaxBaseLayerReverts bounds how many distinct base-layer hash
	// mismatches the driver tolerates before treating disagreement with L1
	// as fatal rather than another reorg to absorb (§4.5's "persistent
	// base-layer hash mismatch exceeding max_reverts within a window").
	MaxBaseLayerReverts uint64
}

// DefaultConfig mirrors the conservative defaults erigon's own stage-sync
// Cfg structs ship, scaled to this node's much smaller per-block payloads.
func DefaultConfig() Config {
	return Config{
		MaxClassesToDownload:      16,
		MaxStateUpdatesToDownload: 4,
		MaxCompiledClassesPending: 256,
		PollInterval:              time.Second,
		MaxBaseLayerReverts:       16,
	}
}

// Driver is the single-threaded cooperative loop that is the only writer
// of chain data (§4, §9). It polls each of the five streams in turn,
// applies what they produce to storage, and on a Reorg event unwinds every
// dimension before resuming.
type Driver struct {
	storage *storage.Storage
	logger  log.Logger
	cfg     Config
	metrics *Metrics

	blocks     *BlockStream
	bodies     *BodyStream
	stateDiffs *StateDiffStream
	compiled   *CompiledClassStream
	baseLayer  *BaseLayerStream
}

// SetMetrics attaches m so every future apply reports its markers and reorg
// count to it. Passing nil (the default) disables reporting entirely; every
// Metrics method is a no-op on a nil receiver so callers that skip this
// never pay for it.
func (d *Driver) SetMetrics(m *Metrics) { d.metrics = m }

// New constructs a Driver whose stream cursors are initialized from
// storage's current markers, so a restart resumes exactly where the last
// committed write left off (§4.3's durability guarantee).
func New(ctx context.Context, st *storage.Storage, feeder central.Client, l1Adapter l1.Adapter, cfg Config, logger log.Logger) (*Driver, error) {
	headerMarker, err := st.HeaderMarker(ctx)
	if err != nil {
		return nil, err
	}
	bodyMarker, err := st.BodyMarker(ctx)
	if err != nil {
		return nil, err
	}
	stateMarker, err := st.StateMarker(ctx)
	if err != nil {
		return nil, err
	}
	baseLayerMarker, err := st.BaseLayerMarker(ctx)
	if err != nil {
		return nil, err
	}

	var parent types.BlockHash
	if headerMarker > 0 {
		h, found, err := st.GetHeader(ctx, headerMarker-1)
		if err != nil {
			return nil, err
		}
		if found {
			parent = h.BlockHash
		}
	}

	ss := NewStateDiffStream(feeder, stateMarker)
	ss.MaxClassesToDownload = cfg.MaxClassesToDownload

	localHeader := func(n types.BlockNumber) (types.BlockHash, bool, error) {
		h, found, err := st.GetHeader(ctx, n)
		return h.BlockHash, found, err
	}

	return &Driver{
		storage:    st,
		logger:     logger,
		cfg:        cfg,
		blocks:     NewBlockStream(feeder, headerMarker, parent),
		bodies:     NewBodyStream(feeder, bodyMarker),
		stateDiffs: ss,
		compiled:   NewCompiledClassStream(feeder),
		baseLayer:  NewBaseLayerStream(l1Adapter, baseLayerMarker, localHeader, cfg.MaxBaseLayerReverts),
	}, nil
}

// Run drives forward until ctx is cancelled. Every poll/apply error other
// than "nothing new yet" is treated as fatal per §7: the driver returns it
// wrapped, without logging it itself, leaving resumption to the process supervisor (restart resumes
// from the last committed marker, never from mid-block state).
func (d *Driver) Run(ctx context.Context) error {
	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = d.cfg.PollInterval
	boff.MaxInterval = 30 * time.Second
	boff.MaxElapsedTime = 0 // retry forever; only ctx cancellation stops the loop

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		progressed, err := d.step(ctx)
		if err != nil {
			return fmt.Errorf("sync: driver: %w", err)
		}
		if progressed {
			boff.Reset()
			continue
		}

		wait := boff.NextBackOff()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// step runs one round of polling every stream once. It returns progressed
// == true if any stream produced and applied an event, so Run can decide
// whether to back off.
func (d *Driver) step(ctx context.Context) (bool, error) {
	progressed := false

	headerEvent, err := d.blocks.Poll(ctx)
	if err != nil {
		return false, err
	}
	if headerEvent != nil {
		if err := d.apply(ctx, headerEvent); err != nil {
			return false, err
		}
		progressed = true
		if _, isReorg := headerEvent.(Reorg); isReorg {
			return true, nil
		}
	}

	headerMarker, err := d.storage.HeaderMarker(ctx)
	if err != nil {
		return false, err
	}

	if bodyEvent, err := d.bodies.Poll(ctx, headerMarker); err != nil {
		return false, err
	} else if bodyEvent != nil {
		if err := d.apply(ctx, bodyEvent); err != nil {
			return false, err
		}
		progressed = true
	}

	if stateEvents, err := d.stateDiffs.Poll(ctx, headerMarker); err != nil {
		return false, err
	} else if len(stateEvents) > 0 {
		for _, ev := range stateEvents {
			if err := d.apply(ctx, ev); err != nil {
				return false, err
			}
			if nc, ok := ev.(NewClasses); ok {
				for _, c := range nc.Classes {
					d.compiled.Enqueue(c.Hash)
				}
			}
		}
		progressed = true
	}

	if d.compiled.Len() > 0 {
		if ccEvent, err := d.compiled.Poll(ctx); err != nil {
			return false, err
		} else if ccEvent != nil {
			if err := d.apply(ctx, ccEvent); err != nil {
				return false, err
			}
			progressed = true
		}
	}

	if blEvent, err := d.baseLayer.Poll(ctx, headerMarker); err != nil {
		return false, err
	} else if blEvent != nil {
		if err := d.apply(ctx, blEvent); err != nil {
			return false, err
		}
		progressed = true
	}

	return progressed, nil
}

// apply commits one event to storage and, for events that advance a
// stream's own notion of position (headers, bodies, state diffs), realigns
// the stream cursor with what storage actually committed.
func (d *Driver) apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case NewBlock:
		if err := d.storage.AppendHeader(ctx, e.Header, e.Signature); err != nil {
			return err
		}
	case NewBody:
		if err := d.storage.AppendBody(ctx, e.Body); err != nil {
			return err
		}
	case NewStateDiff:
		if err := d.storage.AppendStateDiff(ctx, e.StateDiff); err != nil {
			return err
		}
	case NewClasses:
		if err := d.storage.AppendClass(ctx, e.BlockNumber, e.Classes); err != nil {
			return err
		}
	case NewCompiledClass:
		if err := d.storage.AppendCompiledClass(ctx, e.CompiledClass); err != nil {
			return err
		}
	case NewBaseLayerBlock:
		if err := d.storage.AppendBaseLayerBlock(ctx, e.BlockNumber, e.BlockHash); err != nil {
			return err
		}
	case Reorg:
		d.logger.Warn("reorg detected", "revert_from", e.RevertFrom)
		if err := revert(ctx, d.storage, e.RevertFrom); err != nil {
			return err
		}
		var parent types.BlockHash
		if e.RevertFrom > 0 {
			h, found, err := d.storage.GetHeader(ctx, e.RevertFrom-1)
			if err != nil {
				return err
			}
			if found {
				parent = h.BlockHash
			}
		}
		d.blocks.Advance(e.RevertFrom, parent)
		d.bodies.Advance(e.RevertFrom)
		d.stateDiffs.Advance(e.RevertFrom)
		d.baseLayer.Advance(e.RevertFrom)
		d.metrics.incReorgs()
	default:
		return fmt.Errorf("sync: driver: unknown event %T", ev)
	}
	return d.reportMarkers(ctx)
}

// reportMarkers pushes the five storage markers to d.metrics, if attached.
// Called after every successful apply rather than threaded through each
// case above, since a marker gauge is cheap to re-read and every event
// moves at most one of them.
func (d *Driver) reportMarkers(ctx context.Context) error {
	if d.metrics == nil {
		return nil
	}
	header, err := d.storage.HeaderMarker(ctx)
	if err != nil {
		return err
	}
	body, err := d.storage.BodyMarker(ctx)
	if err != nil {
		return err
	}
	state, err := d.storage.StateMarker(ctx)
	if err != nil {
		return err
	}
	class, err := d.storage.ClassMarker(ctx)
	if err != nil {
		return err
	}
	baseLayer, err := d.storage.BaseLayerMarker(ctx)
	if err != nil {
		return err
	}
	d.metrics.setMarkers(uint64(header), uint64(body), uint64(state), uint64(class), uint64(baseLayer))
	return nil
}
