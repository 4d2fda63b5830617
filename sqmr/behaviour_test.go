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
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

func eventsOfType[T Event](events []Event) []T {
	var out []T
	for _, ev := range events {
		if t, ok := ev.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// TestOutboundLifecycle drives scenario 4 (§8.4): start_query, a peer
// assignment, three responses, then a clean Fin.
func TestOutboundLifecycle(t *testing.T) {
	b := NewBehaviour()
	id := b.StartQuery([]byte{1, 2, 3}, "/p/1")
	require.EqualValues(t, 0, id)

	reqs := eventsOfType[RequestPeerAssignment](b.DrainEvents())
	require.Len(t, reqs, 1)
	require.Equal(t, id, reqs[0].ID)

	peerID := peer.ID("P")
	b.OnSessionAssigned(id, peerID, "C")

	creates := eventsOfType[CreateOutboundSession](b.DrainEvents())
	require.Len(t, creates, 1)
	require.Equal(t, []byte{1, 2, 3}, creates[0].Query)
	require.Equal(t, "/p/1", creates[0].Protocol)

	for _, payload := range [][]byte{{'A'}, {'B'}, {'C'}} {
		require.NoError(t, b.OnResponseReceived(id, payload))
	}
	require.NoError(t, b.OnFin(outboundSID(id), ""))

	evs := b.DrainEvents()
	responses := eventsOfType[ReceivedResponse](evs)
	require.Len(t, responses, 3)
	require.Equal(t, []byte{'A'}, responses[0].Response)
	require.Equal(t, []byte{'B'}, responses[1].Response)
	require.Equal(t, []byte{'C'}, responses[2].Response)

	finished := eventsOfType[SessionFinishedSuccessfully](evs)
	require.Len(t, finished, 1)
	require.Equal(t, outboundSID(id), finished[0].ID)
}

// TestInboundWithClose drives scenario 5 (§8.4): an inbound query answered
// with two responses then a clean close, asserting wire order.
func TestInboundWithClose(t *testing.T) {
	b := NewBehaviour()
	b.AddSupportedInboundProtocol("/p/1")

	peerID := peer.ID("P")
	inID := b.OnNewInboundSession([]byte{9}, peerID, "C", "/p/1")

	newSessions := eventsOfType[NewInboundSession](b.DrainEvents())
	require.Len(t, newSessions, 1)
	require.Equal(t, inID, newSessions[0].ID)

	require.NoError(t, b.SendResponse([]byte{'a'}, inID))
	require.NoError(t, b.SendResponse([]byte{'b'}, inID))
	require.NoError(t, b.CloseInboundSession(inID))

	evs := b.DrainEvents()
	writes := eventsOfType[SendResponseToWire](evs)
	require.Len(t, writes, 2)
	require.Equal(t, []byte{'a'}, writes[0].Response)
	require.Equal(t, []byte{'b'}, writes[1].Response)

	fins := eventsOfType[SendFin](evs)
	require.Len(t, fins, 1)
	require.Equal(t, inID, fins[0].ID)

	// The transport confirms the half-close.
	require.NoError(t, b.OnFin(inboundSID(inID), ""))
	finished := eventsOfType[SessionFinishedSuccessfully](b.DrainEvents())
	require.Len(t, finished, 1)
	require.Equal(t, inboundSID(inID), finished[0].ID)
}

// TestSendResponseAfterClosePreservesOrdering asserts responses enqueued
// after close_inbound_session are not transmitted (§8.3's close ordering).
func TestSendResponseAfterClosePreservesOrdering(t *testing.T) {
	b := NewBehaviour()
	b.AddSupportedInboundProtocol("/p/1")
	inID := b.OnNewInboundSession([]byte{1}, peer.ID("P"), "C", "/p/1")
	b.DrainEvents()

	require.NoError(t, b.SendResponse([]byte{'a'}, inID))
	require.NoError(t, b.CloseInboundSession(inID))
	require.NoError(t, b.SendResponse([]byte{'b'}, inID))

	evs := b.DrainEvents()
	require.Len(t, eventsOfType[SendResponseToWire](evs), 1)
	require.Len(t, eventsOfType[SendFin](evs), 1)
}

// TestDropMutesInFlightResponses drives scenario 6 (§8.4): dropping an
// outbound session immediately after assignment suppresses any
// ReceivedResponse surfaced afterward, and NotifySessionDropped arrives
// exactly once.
func TestDropMutesInFlightResponses(t *testing.T) {
	b := NewBehaviour()
	id := b.StartQuery([]byte{1}, "/p/1")
	b.DrainEvents()
	b.OnSessionAssigned(id, peer.ID("P"), "C")
	b.DrainEvents()

	require.NoError(t, b.DropSession(outboundSID(id)))
	drops := eventsOfType[DropSession](b.DrainEvents())
	require.Len(t, drops, 1)

	// Responses racing in after the drop must not surface.
	for _, payload := range [][]byte{{'A'}, {'B'}, {'C'}} {
		require.NoError(t, b.OnResponseReceived(id, payload))
	}
	require.Empty(t, eventsOfType[ReceivedResponse](b.DrainEvents()))

	b.OnSessionDropped(outboundSID(id))
	notifications := eventsOfType[NotifySessionDropped](b.DrainEvents())
	require.Len(t, notifications, 1)
	require.Equal(t, outboundSID(id), notifications[0].ID)
}

// TestDropSessionIdempotent asserts a second drop_session call is a no-op
// (§8.3's drop idempotence).
func TestDropSessionIdempotent(t *testing.T) {
	b := NewBehaviour()
	id := b.StartQuery([]byte{1}, "/p/1")
	b.DrainEvents()
	b.OnSessionAssigned(id, peer.ID("P"), "C")
	b.DrainEvents()

	sid := outboundSID(id)
	require.NoError(t, b.DropSession(sid))
	require.Len(t, eventsOfType[DropSession](b.DrainEvents()), 1)

	require.NoError(t, b.DropSession(sid))
	require.Empty(t, b.DrainEvents())
}

// TestGhostIDReturnsNotFound asserts send_response/close_inbound_session on
// an unknown id return SessionIdNotFound and emit no events (§8.3).
func TestGhostIDReturnsNotFound(t *testing.T) {
	b := NewBehaviour()

	err := b.SendResponse([]byte{1}, InboundSessionID(999))
	require.Error(t, err)
	require.ErrorAs(t, err, new(*SessionIDNotFoundError))
	require.Empty(t, b.DrainEvents())

	err = b.CloseInboundSession(InboundSessionID(999))
	require.Error(t, err)
	require.ErrorAs(t, err, new(*SessionIDNotFoundError))
	require.Empty(t, b.DrainEvents())
}

// TestUnsupportedInboundProtocolFailsImmediately asserts a query for a
// protocol never registered via AddSupportedInboundProtocol never reaches
// the application as NewInboundSession.
func TestUnsupportedInboundProtocolFailsImmediately(t *testing.T) {
	b := NewBehaviour()
	inID := b.OnNewInboundSession([]byte{1}, peer.ID("P"), "C", "/unknown/1")

	evs := b.DrainEvents()
	require.Empty(t, eventsOfType[NewInboundSession](evs))
	failed := eventsOfType[SessionFailed](evs)
	require.Len(t, failed, 1)
	require.Equal(t, inboundSID(inID), failed[0].ID)
	require.Equal(t, RemoteDoesntSupportProtocol, failed[0].Reason)
}

// TestCancelledAssignmentIgnored asserts a SessionAssigned arriving for an
// id that was already dropped (so no longer pending) is silently ignored.
func TestCancelledAssignmentIgnored(t *testing.T) {
	b := NewBehaviour()
	id := b.StartQuery([]byte{1}, "/p/1")
	b.DrainEvents()

	require.NoError(t, b.DropSession(outboundSID(id)))
	b.DrainEvents()

	b.OnSessionAssigned(id, peer.ID("P"), "C")
	require.Empty(t, b.DrainEvents())
}

// TestMessageAfterFinIsProtocolViolation asserts a frame arriving on a
// session already past Fin fails it with ReceivedMessageAfterFin.
func TestMessageAfterFinIsProtocolViolation(t *testing.T) {
	b := NewBehaviour()
	id := b.StartQuery([]byte{1}, "/p/1")
	b.DrainEvents()
	b.OnSessionAssigned(id, peer.ID("P"), "C")
	b.DrainEvents()

	require.NoError(t, b.OnFin(outboundSID(id), ""))
	b.DrainEvents()

	require.NoError(t, b.OnResponseReceived(id, []byte{'x'}))
	failed := eventsOfType[SessionFailed](b.DrainEvents())
	require.Len(t, failed, 1)
	require.Equal(t, ReceivedMessageAfterFin, failed[0].Reason)
}
