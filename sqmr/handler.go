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

package sqmr

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Dialer opens a byte stream for protocol against an already-assigned
// peer/connection (§6.2's "ordered, reliable, stream-of-bytes session per
// protocol-name"). A libp2p or gRPC transport supplies the concrete
// implementation; Handler itself is transport-agnostic.
type Dialer interface {
	Open(ctx context.Context, p peer.ID, conn ConnectionID, protocol string) (io.ReadWriteCloser, error)
}

// Handler drains a Behaviour's cross-behaviour events and turns them into
// wire I/O: dialing outbound streams, writing queued inbound responses and
// Fin frames, and feeding bytes read off the wire back into the behaviour.
// It owns no session state of its own beyond the open streams it needs to
// write to or read from.
type Handler struct {
	behaviour *Behaviour
	dialer    Dialer

	mu          sync.Mutex
	outbound    map[OutboundSessionID]io.Closer
	inboundOut  map[InboundSessionID]*FrameWriter
	inboundRaw  map[InboundSessionID]io.Closer
}

// NewHandler constructs a Handler bound to b. dialer may be nil if this node
// only ever serves inbound sessions.
func NewHandler(b *Behaviour, dialer Dialer) *Handler {
	return &Handler{
		behaviour:  b,
		dialer:     dialer,
		outbound:   map[OutboundSessionID]io.Closer{},
		inboundOut: map[InboundSessionID]*FrameWriter{},
		inboundRaw: map[InboundSessionID]io.Closer{},
	}
}

// RegisterInboundStream associates an already-accepted inbound stream (the
// transport has already read the query frame off it to produce the
// NewInboundSession event) with id, so later SendResponseToWire/SendFin
// events for id know where to write.
func (h *Handler) RegisterInboundStream(id InboundSessionID, rwc io.ReadWriteCloser) {
	h.mu.Lock()
	h.inboundOut[id] = NewFrameWriter(rwc)
	h.inboundRaw[id] = rwc
	h.mu.Unlock()
}

// Pump drains every event currently queued on the behaviour and applies it.
// Call it after every behaviour mutation (StartQuery, SendResponse, a wire
// read, ...) in the single-threaded cooperative loop (§5).
func (h *Handler) Pump(ctx context.Context) error {
	for _, ev := range h.behaviour.DrainEvents() {
		if err := h.apply(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case CreateOutboundSession:
		return nil // peermanager.Assign + the transport's own dial loop registers the stream
	case SendResponseToWire:
		h.mu.Lock()
		fw, ok := h.inboundOut[e.ID]
		h.mu.Unlock()
		if !ok {
			return fmt.Errorf("sqmr: handler: no inbound stream registered for %s", inboundSID(e.ID))
		}
		return fw.WriteFrame(Frame{Kind: FrameData, Payload: e.Response})
	case SendFin:
		h.mu.Lock()
		fw, ok := h.inboundOut[e.ID]
		raw := h.inboundRaw[e.ID]
		h.mu.Unlock()
		if !ok {
			return fmt.Errorf("sqmr: handler: no inbound stream registered for %s", inboundSID(e.ID))
		}
		if err := fw.WriteFrame(Frame{Kind: FrameFin}); err != nil {
			return err
		}
		if raw != nil {
			_ = raw.Close()
		}
		return h.behaviour.OnFin(inboundSID(e.ID), "")
	case DropSession:
		h.mu.Lock()
		if e.ID.IsInbound {
			if raw, ok := h.inboundRaw[e.ID.Inbound]; ok {
				_ = raw.Close()
			}
			delete(h.inboundOut, e.ID.Inbound)
			delete(h.inboundRaw, e.ID.Inbound)
		} else if c, ok := h.outbound[e.ID.Outbound]; ok {
			_ = c.Close()
			delete(h.outbound, e.ID.Outbound)
		}
		h.mu.Unlock()
		h.behaviour.OnSessionDropped(e.ID)
		return nil
	case RequestPeerAssignment, NewInboundSession, ReceivedResponse,
		SessionFinishedSuccessfully, SessionFailed, NotifySessionDropped:
		return nil // user-facing or peer-manager-facing; nothing for the handler to do
	default:
		return fmt.Errorf("sqmr: handler: unknown event %T", ev)
	}
}

// DialOutbound opens the stream for an outbound session once the
// peer-manager has produced an Assignment, writes the query frame, registers
// the stream, and starts a read loop translating wire frames into
// OnResponseReceived/OnFin/OnConnectionClosed calls. The read loop runs
// until the stream closes or ctx is cancelled.
func (h *Handler) DialOutbound(ctx context.Context, id OutboundSessionID, p peer.ID, conn ConnectionID, protocol string, query []byte) error {
	if h.dialer == nil {
		return fmt.Errorf("sqmr: handler: no dialer configured for outbound sessions")
	}
	rwc, err := h.dialer.Open(ctx, p, conn, protocol)
	if err != nil {
		return h.behaviour.OnConnectionClosed(outboundSID(id))
	}

	h.mu.Lock()
	h.outbound[id] = rwc
	h.mu.Unlock()

	fw := NewFrameWriter(rwc)
	if err := fw.WriteFrame(Frame{Kind: FrameData, Payload: query}); err != nil {
		_ = rwc.Close()
		return h.behaviour.OnConnectionClosed(outboundSID(id))
	}

	go h.readOutbound(id, rwc)
	return nil
}

// WatchInboundClosure blocks reading frames off rwc for an already-registered
// inbound session, purely to notice when the remote peer hangs up early;
// SQMR's one-query/many-response shape (§4.7) means the remote sends nothing
// further after its query. Data frames read here are discarded without any
// report; a Fin or a read error is reported through OnConnectionClosed.
func (h *Handler) WatchInboundClosure(id InboundSessionID, rwc io.ReadWriteCloser) {
	fr := NewFrameReader(rwc)
	for {
		frame, err := fr.ReadFrame()
		if err != nil {
			_ = h.behaviour.OnConnectionClosed(inboundSID(id))
			return
		}
		if frame.Kind == FrameFin {
			_ = h.behaviour.OnConnectionClosed(inboundSID(id))
			return
		}
	}
}

func (h *Handler) readOutbound(id OutboundSessionID, rwc io.ReadWriteCloser) {
	fr := NewFrameReader(rwc)
	for {
		frame, err := fr.ReadFrame()
		if err != nil {
			_ = h.behaviour.OnConnectionClosed(outboundSID(id))
			return
		}
		switch frame.Kind {
		case FrameData:
			if err := h.behaviour.OnResponseReceived(id, frame.Payload); err != nil {
				return
			}
		case FrameFin:
			_ = h.behaviour.OnFin(outboundSID(id), frame.FinError)
			return
		}
	}
}
