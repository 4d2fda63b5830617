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
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Event is the sum type the behaviour emits. Some variants are user-facing
// (NewInboundSession, ReceivedResponse, SessionFinishedSuccessfully,
// SessionFailed, NotifySessionDropped); others are cross-behaviour, routed to
// the peer-manager (RequestPeerAssignment) or the transport handler
// (CreateOutboundSession, SendResponseToWire, SendFin, DropSession) rather
// than to the application (§4.6).
type Event interface{ isSessionEvent() }

// NewInboundSession reports a remote query this node must answer.
type NewInboundSession struct {
	Query    []byte
	ID       InboundSessionID
	Peer     peer.ID
	Protocol string
}

func (NewInboundSession) isSessionEvent() {}

// ReceivedResponse carries one frame of an outbound session's response
// stream.
type ReceivedResponse struct {
	ID       OutboundSessionID
	Response []byte
	Peer     peer.ID
}

func (ReceivedResponse) isSessionEvent() {}

// SessionFinishedSuccessfully reports a clean Fin with no error.
type SessionFinishedSuccessfully struct{ ID SessionID }

func (SessionFinishedSuccessfully) isSessionEvent() {}

// FailureReason names why a session moved to Failed.
type FailureReason uint8

const (
	Timeout FailureReason = iota
	IO
	RemoteDoesntSupportProtocol
	ConnectionClosed
	ReceivedMessageAfterFin
)

func (r FailureReason) String() string {
	switch r {
	case Timeout:
		return "timeout"
	case IO:
		return "io"
	case RemoteDoesntSupportProtocol:
		return "remote_doesnt_support_protocol"
	case ConnectionClosed:
		return "connection_closed"
	case ReceivedMessageAfterFin:
		return "received_message_after_fin"
	default:
		return "unknown"
	}
}

// SessionFailed reports a session that terminated abnormally.
type SessionFailed struct {
	ID     SessionID
	Reason FailureReason
}

func (SessionFailed) isSessionEvent() {}

// RequestPeerAssignment asks the peer-manager to pick a peer/connection for
// a freshly started outbound query. Not user-facing.
type RequestPeerAssignment struct{ ID OutboundSessionID }

func (RequestPeerAssignment) isSessionEvent() {}

// CreateOutboundSession tells the transport handler to open the wire session
// once a peer has been assigned. Not user-facing.
type CreateOutboundSession struct {
	Query    []byte
	ID       OutboundSessionID
	Protocol string
}

func (CreateOutboundSession) isSessionEvent() {}

// SendResponseToWire tells the transport handler to write one application
// response frame for an inbound session. Not user-facing.
type SendResponseToWire struct {
	ID       InboundSessionID
	Response []byte
}

func (SendResponseToWire) isSessionEvent() {}

// SendFin tells the transport handler to write a clean Fin frame and
// half-close an inbound session. Not user-facing.
type SendFin struct{ ID InboundSessionID }

func (SendFin) isSessionEvent() {}

// DropSession tells the transport handler to sever a session unilaterally.
// Not user-facing; NotifySessionDropped is the handler's acknowledgement.
type DropSession struct{ ID SessionID }

func (DropSession) isSessionEvent() {}

// NotifySessionDropped confirms a DropSession was carried out.
type NotifySessionDropped struct{ ID SessionID }

func (NotifySessionDropped) isSessionEvent() {}

// SessionIDNotFoundError is returned by operations naming an id the
// behaviour has no record of (§4.6's public operations).
type SessionIDNotFoundError struct{ ID SessionID }

func (e *SessionIDNotFoundError) Error() string {
	return fmt.Sprintf("sqmr: session %s not found", e.ID)
}

func outboundSID(id OutboundSessionID) SessionID { return SessionID{Outbound: id} }
func inboundSID(id InboundSessionID) SessionID   { return SessionID{Inbound: id, IsInbound: true} }

type pendingOutbound struct {
	query    []byte
	protocol string
}

// Behaviour is the per-node SQMR state machine (§4.6): it owns every session
// by value, keyed by SessionID, and turns the five public operations plus
// cross-behaviour inputs (peer assignment, wire events) into the events
// listed above. It does not touch the network itself; a transport adapter
// drains its events and feeds wire activity back in through the On* methods.
type Behaviour struct {
	mu sync.Mutex

	nextOutbound OutboundSessionID
	nextInbound  InboundSessionID

	sessions map[SessionID]*Session

	pendingPeerAssignment map[OutboundSessionID]pendingOutbound
	// pendingOrder mirrors pendingPeerAssignment's keys in ascending id
	// order, so PendingOutboundSessions can report them oldest-first
	// without sorting the map on every call (§4.6's
	// outbound_sessions_pending_peer_assignment index).
	pendingOrder     *btree.BTreeG[OutboundSessionID]
	dropped          map[SessionID]struct{}
	supportedInbound map[string]struct{}

	events  []Event
	metrics *Metrics
}

// SetMetrics attaches m so every future session-state change reports to it.
// Passing nil (the default) disables reporting; every Metrics method is a
// no-op on a nil receiver.
func (b *Behaviour) SetMetrics(m *Metrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics = m
	b.updateActiveGauges()
}

// updateActiveGauges recomputes the active-session gauges from the current
// sessions map. Called under b.mu after any call that can move a session
// into or out of Negotiating/Streaming.
func (b *Behaviour) updateActiveGauges() {
	if b.metrics == nil {
		return
	}
	var inbound, outbound int
	for id, s := range b.sessions {
		if s.State != Negotiating && s.State != Streaming {
			continue
		}
		if id.IsInbound {
			inbound++
		} else {
			outbound++
		}
	}
	b.metrics.setActive(inbound, outbound)
}

func lessOutboundID(a, b OutboundSessionID) bool { return a < b }

// NewBehaviour constructs an empty Behaviour with no sessions and no
// supported inbound protocols.
func NewBehaviour() *Behaviour {
	return &Behaviour{
		sessions:              map[SessionID]*Session{},
		pendingPeerAssignment: map[OutboundSessionID]pendingOutbound{},
		pendingOrder:          btree.NewG(32, lessOutboundID),
		dropped:               map[SessionID]struct{}{},
		supportedInbound:      map[string]struct{}{},
	}
}

// PendingOutboundSessions returns outbound sessions still awaiting a peer
// assignment, oldest (lowest id) first.
func (b *Behaviour) PendingOutboundSessions() []OutboundSessionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]OutboundSessionID, 0, b.pendingOrder.Len())
	b.pendingOrder.Ascend(func(id OutboundSessionID) bool {
		out = append(out, id)
		return true
	})
	return out
}

func (b *Behaviour) emit(ev Event) { b.events = append(b.events, ev) }

// DrainEvents returns every event queued since the last call and clears the
// queue, the way the sync streams are polled (§5's cooperative-executor
// model; there is no separate callback registration here).
func (b *Behaviour) DrainEvents() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// AddSupportedInboundProtocol registers name so future inbound queries may
// negotiate it; it has no effect on sessions already in flight.
func (b *Behaviour) AddSupportedInboundProtocol(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.supportedInbound[name] = struct{}{}
}

// StartQuery allocates an OutboundSessionID, remembers the query pending a
// peer assignment, and emits RequestPeerAssignment exactly once.
func (b *Behaviour) StartQuery(query []byte, protocol string) OutboundSessionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextOutbound
	b.nextOutbound++
	sid := outboundSID(id)

	b.sessions[sid] = newSession(sid, "", query)
	b.sessions[sid].Protocol = protocol
	b.pendingPeerAssignment[id] = pendingOutbound{query: query, protocol: protocol}
	b.pendingOrder.ReplaceOrInsert(id)

	b.emit(RequestPeerAssignment{ID: id})
	return id
}

// OnSessionAssigned applies a SessionAssigned event the peer-manager routed
// back. If id is no longer pending, the caller already cancelled it and the
// assignment is silently ignored (§4.6's cross-peer-assignment rule).
func (b *Behaviour) OnSessionAssigned(id OutboundSessionID, p peer.ID, conn ConnectionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending, ok := b.pendingPeerAssignment[id]
	if !ok {
		return
	}
	delete(b.pendingPeerAssignment, id)
	b.pendingOrder.Delete(id)

	sid := outboundSID(id)
	s, ok := b.sessions[sid]
	if !ok {
		return
	}
	s.Peer = p
	s.Conn = conn
	if err := s.transition(Negotiating); err != nil {
		return
	}
	if err := s.transition(Streaming); err != nil {
		return
	}
	b.updateActiveGauges()

	b.emit(CreateOutboundSession{Query: pending.query, ID: id, Protocol: pending.protocol})
}

// OnNewInboundSession records a remote-initiated query. If protocol is not
// in the supported set, the session is failed immediately with
// RemoteDoesntSupportProtocol instead of being surfaced to the application.
func (b *Behaviour) OnNewInboundSession(query []byte, p peer.ID, conn ConnectionID, protocol string) InboundSessionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextInbound
	b.nextInbound++
	sid := inboundSID(id)

	s := newSession(sid, p, query)
	s.Conn = conn
	s.Protocol = protocol
	b.sessions[sid] = s

	if _, ok := b.supportedInbound[protocol]; !ok {
		b.fail(s, RemoteDoesntSupportProtocol)
		return id
	}

	if err := s.transition(Negotiating); err != nil {
		return id
	}
	if err := s.transition(Streaming); err != nil {
		return id
	}
	b.updateActiveGauges()
	b.emit(NewInboundSession{Query: query, ID: id, Peer: p, Protocol: protocol})
	return id
}

// SendResponse queues one application response frame on an inbound session,
// dispatched to whichever handler owns it via SendResponseToWire.
func (b *Behaviour) SendResponse(response []byte, id InboundSessionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sid := inboundSID(id)
	s, ok := b.sessions[sid]
	if !ok {
		return &SessionIDNotFoundError{ID: sid}
	}
	if _, muted := b.dropped[sid]; muted {
		return nil
	}
	if s.State != Streaming {
		return nil
	}
	s.responsesSent++
	b.emit(SendResponseToWire{ID: id, Response: response})
	return nil
}

// CloseInboundSession requests a clean close: responses already queued via
// SendResponse are transmitted first (handler-side FIFO order), then Fin.
// No response queued after this call is transmitted (§4.6's Fin handling).
func (b *Behaviour) CloseInboundSession(id InboundSessionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sid := inboundSID(id)
	s, ok := b.sessions[sid]
	if !ok {
		return &SessionIDNotFoundError{ID: sid}
	}
	if err := s.transition(Closing); err != nil {
		return err
	}
	if _, muted := b.dropped[sid]; !muted {
		b.emit(SendFin{ID: id})
	}
	return nil
}

// DropSession unilaterally aborts id. Idempotent: a repeated call on an
// already-dropped id returns nil and emits nothing (§4.6's Cancellation).
func (b *Behaviour) DropSession(id SessionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[id]
	if !ok {
		return &SessionIDNotFoundError{ID: id}
	}
	if _, already := b.dropped[id]; already {
		return nil
	}
	b.dropped[id] = struct{}{}
	delete(b.pendingPeerAssignment, id.Outbound)
	b.pendingOrder.Delete(id.Outbound)

	if err := s.transition(Dropped); err != nil {
		return err
	}
	b.updateActiveGauges()
	b.metrics.sessionDropped()
	b.emit(DropSession{ID: id})
	return nil
}

// OnSessionDropped is the handler's asynchronous acknowledgement that a
// DropSession was carried out; it surfaces NotifySessionDropped so the
// application learns the drop completed.
func (b *Behaviour) OnSessionDropped(id SessionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.dropped, id)
	b.emit(NotifySessionDropped{ID: id})
}

// OnResponseReceived applies one inbound wire frame to an outbound session.
// A frame arriving once the session has already seen Fin is a protocol
// violation and fails the session with ReceivedMessageAfterFin rather than
// being surfaced as a ReceivedResponse.
func (b *Behaviour) OnResponseReceived(id OutboundSessionID, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sid := outboundSID(id)
	s, ok := b.sessions[sid]
	if !ok {
		return &SessionIDNotFoundError{ID: sid}
	}
	if _, muted := b.dropped[sid]; muted {
		return nil
	}

	switch s.State {
	case Streaming:
		s.responsesSent++
		if _, muted := b.dropped[sid]; !muted {
			b.emit(ReceivedResponse{ID: id, Response: data, Peer: s.Peer})
		}
		return nil
	case Closing:
		b.fail(s, ReceivedMessageAfterFin)
		return nil
	case FinishedOk:
		// FinishedOk is terminal for transition(), so the move to Failed is
		// applied directly here.
		s.State = Failed
		b.updateActiveGauges()
		b.metrics.sessionFailed(ReceivedMessageAfterFin)
		b.emit(SessionFailed{ID: s.ID, Reason: ReceivedMessageAfterFin})
		return nil
	default:
		return fmt.Errorf("sqmr: response for session %s arrived in state %s", sid, s.State)
	}
}

// OnFin applies a Fin frame to id. errMsg is the remote-reported error field
// (empty for a clean close); the session moves to Closing then FinishedOk,
// or straight to Failed when errMsg is non-empty.
func (b *Behaviour) OnFin(id SessionID, errMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[id]
	if !ok {
		return &SessionIDNotFoundError{ID: id}
	}
	if errMsg != "" {
		b.fail(s, IO)
		return nil
	}
	if s.State != Closing {
		if err := s.transition(Closing); err != nil {
			return err
		}
	}
	if err := s.transition(FinishedOk); err != nil {
		return err
	}
	b.updateActiveGauges()
	b.metrics.sessionFinished()
	if _, muted := b.dropped[id]; !muted {
		b.emit(SessionFinishedSuccessfully{ID: id})
	}
	return nil
}

// OnConnectionClosed fails id with ConnectionClosed, the transport's report
// that the underlying stream died before a clean Fin arrived.
func (b *Behaviour) OnConnectionClosed(id SessionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return &SessionIDNotFoundError{ID: id}
	}
	b.fail(s, ConnectionClosed)
	return nil
}

// OnSessionTimeout fails id with Timeout once session_timeout has elapsed
// with no I/O progress (§5's Timeouts).
func (b *Behaviour) OnSessionTimeout(id SessionID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	if !ok {
		return &SessionIDNotFoundError{ID: id}
	}
	b.fail(s, Timeout)
	return nil
}

// fail moves s to Failed and emits SessionFailed unless the session is
// currently muted by a pending drop. A transition error here means s was
// already terminal, which is not itself an error worth propagating since the
// caller is reporting a terminal condition regardless.
func (b *Behaviour) fail(s *Session, reason FailureReason) {
	if err := s.transition(Failed); err != nil {
		return
	}
	b.updateActiveGauges()
	b.metrics.sessionFailed(reason)
	if _, muted := b.dropped[s.ID]; !muted {
		b.emit(SessionFailed{ID: s.ID, Reason: reason})
	}
}
