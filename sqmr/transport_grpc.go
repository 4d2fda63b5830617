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

	libp2ppeer "github.com/libp2p/go-libp2p/core/peer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// grpcServiceName/grpcSessionMethod name the one bidi-streaming RPC every
// SQMR session, regardless of protocol, is carried over; the protocol name
// itself travels as metadata rather than as a distinct gRPC method, since
// §6.2 treats protocol names as an open set the transport shouldn't need a
// generated method per value for.
const (
	grpcServiceName    = "starknet.sqmr.Transport"
	grpcSessionMethod  = "Session"
	grpcMethodFullName = "/" + grpcServiceName + "/" + grpcSessionMethod

	protocolMetadataKey = "sqmr-protocol"
	connMetadataKey     = "sqmr-connection"
	selfPeerMetadataKey = "sqmr-self-peer"
)

// msgStream is the SendMsg/RecvMsg subset grpc.ClientStream and
// grpc.ServerStream both expose.
type msgStream interface {
	SendMsg(m interface{}) error
	RecvMsg(m interface{}) error
}

// grpcStreamConn adapts a gRPC bidi stream to io.ReadWriteCloser by boxing
// each Write in one wrapperspb.BytesValue message; codec.go's varint framing
// runs on top of this exactly as it would on a raw TCP/libp2p byte stream,
// so one gRPC message per Write/Read is an implementation detail the rest of
// the package never sees.
type grpcStreamConn struct {
	stream  msgStream
	closeFn func() error
	readBuf []byte
}

func (c *grpcStreamConn) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	if err := c.stream.SendMsg(&wrapperspb.BytesValue{Value: buf}); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *grpcStreamConn) Read(p []byte) (int, error) {
	for len(c.readBuf) == 0 {
		var msg wrapperspb.BytesValue
		if err := c.stream.RecvMsg(&msg); err != nil {
			return 0, err
		}
		c.readBuf = msg.Value
	}
	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

func (c *grpcStreamConn) Close() error {
	if c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

var grpcSessionStreamDesc = &grpc.StreamDesc{
	StreamName:    grpcSessionMethod,
	ServerStreams: true,
	ClientStreams: true,
}

// GRPCDialer implements Dialer over pre-established *grpc.ClientConns, one
// per remote peer. Establishing those connections (address resolution, TLS,
// retries) is left to whatever wires GRPCDialer up, the same way
// Libp2pDialer leaves host construction to its caller.
type GRPCDialer struct {
	self libp2ppeer.ID

	mu    sync.Mutex
	conns map[libp2ppeer.ID]*grpc.ClientConn
}

func NewGRPCDialer(self libp2ppeer.ID) *GRPCDialer {
	return &GRPCDialer{self: self, conns: make(map[libp2ppeer.ID]*grpc.ClientConn)}
}

// AddPeer registers the channel to use for sessions with p.
func (d *GRPCDialer) AddPeer(p libp2ppeer.ID, conn *grpc.ClientConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns[p] = conn
}

func (d *GRPCDialer) RemovePeer(p libp2ppeer.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, p)
}

func (d *GRPCDialer) Open(ctx context.Context, p libp2ppeer.ID, conn ConnectionID, protocol string) (io.ReadWriteCloser, error) {
	d.mu.Lock()
	cc, ok := d.conns[p]
	d.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sqmr: grpc dialer: no channel registered for peer %s", p)
	}

	ctx = metadata.AppendToOutgoingContext(ctx,
		protocolMetadataKey, protocol,
		connMetadataKey, string(conn),
		selfPeerMetadataKey, string(d.self),
	)
	stream, err := cc.NewStream(ctx, grpcSessionStreamDesc, grpcMethodFullName)
	if err != nil {
		return nil, fmt.Errorf("sqmr: grpc dialer: new stream to %s: %w", p, err)
	}
	return &grpcStreamConn{stream: stream, closeFn: stream.CloseSend}, nil
}

// GRPCServer registers the SQMR session service against a *grpc.Server,
// feeding every accepted stream into handler as a new inbound session.
type GRPCServer struct {
	handler *Handler
}

func NewGRPCServer(h *Handler) *GRPCServer { return &GRPCServer{handler: h} }

// grpcSessionService is the HandlerType grpc.RegisterService checks srv
// against; left empty since handleSession reads everything it needs off the
// stream itself rather than off a generated request type.
type grpcSessionService interface{}

// Register attaches the SQMR streaming method to srv.
func (g *GRPCServer) Register(srv *grpc.Server) {
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: grpcServiceName,
		HandlerType: (*grpcSessionService)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    grpcSessionMethod,
				Handler:       g.handleSession,
				ServerStreams: true,
				ClientStreams: true,
			},
		},
		Metadata: "sqmr.proto",
	}, g)
}

func (g *GRPCServer) handleSession(srv interface{}, stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	protocolName := firstOr(md.Get(protocolMetadataKey), "")
	connID := ConnectionID(firstOr(md.Get(connMetadataKey), ""))
	p := libp2ppeer.ID(firstOr(md.Get(selfPeerMetadataKey), ""))
	if p == "" {
		return fmt.Errorf("sqmr: grpc server: missing %s metadata", selfPeerMetadataKey)
	}

	var first wrapperspb.BytesValue
	if err := stream.RecvMsg(&first); err != nil {
		return fmt.Errorf("sqmr: grpc server: initial query: %w", err)
	}

	conn := &grpcStreamConn{stream: stream}
	id := g.handler.behaviour.OnNewInboundSession(first.Value, p, connID, protocolName)
	g.handler.RegisterInboundStream(id, conn)
	g.handler.WatchInboundClosure(id, conn)
	return nil
}

func firstOr(vals []string, def string) string {
	if len(vals) == 0 {
		return def
	}
	return vals[0]
}
