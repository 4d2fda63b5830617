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

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
)

// Libp2pDialer implements Dialer over an already-constructed libp2p host: one
// stream per session, multiplexed over whatever connection the host already
// has (or opens) to the peer. ConnectionID is unused here — libp2p tracks its
// own connections internally and a session never needs to name one, per
// ConnectionID's own doc comment.
type Libp2pDialer struct {
	host host.Host
}

func NewLibp2pDialer(h host.Host) *Libp2pDialer { return &Libp2pDialer{host: h} }

func (d *Libp2pDialer) Open(ctx context.Context, p peer.ID, _ ConnectionID, protocolName string) (io.ReadWriteCloser, error) {
	stream, err := d.host.NewStream(ctx, p, protocol.ID(protocolName))
	if err != nil {
		return nil, fmt.Errorf("sqmr: libp2p dialer: new stream to %s: %w", p, err)
	}
	return stream, nil
}

// Libp2pServer accepts inbound libp2p streams for the protocols it's
// registered against and turns each into a new inbound session.
type Libp2pServer struct {
	handler *Handler
}

func NewLibp2pServer(h *Handler) *Libp2pServer { return &Libp2pServer{handler: h} }

// Register installs a stream handler for protocolName on host. Call once per
// protocol AddSupportedInboundProtocol was told about.
func (s *Libp2pServer) Register(h host.Host, protocolName string) {
	h.SetStreamHandler(protocol.ID(protocolName), func(stream network.Stream) {
		s.handleStream(stream, protocolName)
	})
}

func (s *Libp2pServer) handleStream(stream network.Stream, protocolName string) {
	fr := NewFrameReader(stream)
	frame, err := fr.ReadFrame()
	if err != nil || frame.Kind != FrameData {
		_ = stream.Reset()
		return
	}

	connID := ConnectionID(stream.Conn().ID())
	id := s.handler.behaviour.OnNewInboundSession(frame.Payload, stream.Conn().RemotePeer(), connID, protocolName)
	s.handler.RegisterInboundStream(id, stream)
	go s.handler.WatchInboundClosure(id, stream)
}
