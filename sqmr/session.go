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

// Package sqmr implements the Single Query Multiple Response P2P session
// layer (§1): one outbound query gets zero or more streamed responses
// terminated by Fin, framed over a libp2p/yamux byte stream and optionally
// carried over gRPC for the node's own internal peers (§6's Domain Stack).
package sqmr

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

// OutboundSessionID identifies a query this node initiated.
type OutboundSessionID uint64

// InboundSessionID identifies a query a remote peer sent to this node.
type InboundSessionID uint64

// SessionID distinguishes the two ID spaces so a behaviour can't confuse an
// inbound session with an outbound one sharing the same numeric value.
type SessionID struct {
	Outbound OutboundSessionID
	Inbound  InboundSessionID
	IsInbound bool
}

func (id SessionID) String() string {
	if id.IsInbound {
		return fmt.Sprintf("inbound(%d)", id.Inbound)
	}
	return fmt.Sprintf("outbound(%d)", id.Outbound)
}

// State is the per-session state machine position (§3).
type State uint8

const (
	// Created: the session exists locally but no bytes have crossed the
	// wire yet (outbound: query not yet sent; inbound: query received,
	// handler not yet started).
	Created State = iota
	// Negotiating: protocol/stream negotiation is in flight.
	Negotiating
	// Streaming: the query has been sent (outbound) or a response is being
	// produced (inbound); zero or more responses may still arrive.
	Streaming
	// Closing: a close has been requested but not yet acknowledged by the
	// transport.
	Closing
	// FinishedOk: the session ended via a Fin with no error.
	FinishedOk
	// Failed: the session ended due to a protocol or transport error.
	Failed
	// Dropped: the session was forcibly dropped, e.g. because its peer was
	// dropped; any further writes on it are discarded (§3's mute rule).
	Dropped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Negotiating:
		return "negotiating"
	case Streaming:
		return "streaming"
	case Closing:
		return "closing"
	case FinishedOk:
		return "finished_ok"
	case Failed:
		return "failed"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// terminal reports whether no further transition is valid from s.
func (s State) terminal() bool {
	return s == FinishedOk || s == Failed || s == Dropped
}

// ConnectionID identifies the transport connection a session was assigned
// to, opaque to the behaviour itself (§4.6's entities: session_id -> (peer_id,
// connection_id)).
type ConnectionID string

// Session is one query/response exchange's mutable state.
type Session struct {
	ID    SessionID
	Peer  peer.ID
	Conn  ConnectionID
	State State

	// Query is the opaque request payload this session carries, set once at
	// creation and never mutated.
	Query []byte

	// Protocol is the negotiated protocol name, e.g. "/starknet/headers/1".
	Protocol string

	// responsesSent (outbound: received) counts frames, used only for
	// diagnostics; SQMR does not bound response counts itself (§3).
	responsesSent int
}

func newSession(id SessionID, p peer.ID, query []byte) *Session {
	return &Session{ID: id, Peer: p, State: Created, Query: query}
}

// transition moves the session to next, returning an error if next is not
// reachable from the current state. The table mirrors §3's state diagram:
// forward progress only, any non-terminal state can jump to Dropped, and a
// clean Fin (-> FinishedOk) is observed from Streaming or Closing.
func (s *Session) transition(next State) error {
	if s.State.terminal() {
		return fmt.Errorf("sqmr: session %s: already terminal in state %s, cannot move to %s", s.ID, s.State, next)
	}
	if next == Dropped {
		s.State = Dropped
		return nil
	}
	switch s.State {
	case Created:
		if next != Negotiating && next != Streaming && next != Failed {
			return fmt.Errorf("sqmr: session %s: invalid transition %s -> %s", s.ID, s.State, next)
		}
	case Negotiating:
		if next != Streaming && next != Failed {
			return fmt.Errorf("sqmr: session %s: invalid transition %s -> %s", s.ID, s.State, next)
		}
	case Streaming:
		if next != Closing && next != FinishedOk && next != Failed {
			return fmt.Errorf("sqmr: session %s: invalid transition %s -> %s", s.ID, s.State, next)
		}
	case Closing:
		if next != FinishedOk && next != Failed {
			return fmt.Errorf("sqmr: session %s: invalid transition %s -> %s", s.ID, s.State, next)
		}
	default:
		return fmt.Errorf("sqmr: session %s: invalid transition %s -> %s", s.ID, s.State, next)
	}
	s.State = next
	return nil
}
