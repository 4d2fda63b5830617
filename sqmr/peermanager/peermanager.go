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

// Package peermanager assigns peers to pending outbound SQMR sessions
// (§4.6's cross-peer-assignment). It tracks which peers are currently known
// to speak a given protocol and hands out connections round-robin, so one
// chatty query stream doesn't pin every session onto the same peer.
package peermanager

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/erigontech/starknet-erigon/sqmr"
)

// Assignment is what the manager hands back for a pending outbound session.
type Assignment struct {
	Outbound sqmr.OutboundSessionID
	Peer     peer.ID
	Conn     sqmr.ConnectionID
}

// connection is one live, protocol-tagged link to a peer.
type connection struct {
	peer     peer.ID
	conn     sqmr.ConnectionID
	protocol string
}

// Manager holds the peers known to support each protocol and assigns them
// round-robin to pending outbound sessions. Recently-failed peers are kept
// in a bounded LRU so a peer that just dropped a session isn't immediately
// retried by the very next query (§4.6's assignment never retries a peer
// that just failed an in-flight session until it falls out of this set).
type Manager struct {
	mu sync.Mutex

	byProtocol map[string][]connection
	cursor     map[string]int

	recentFailures *lru.Cache[peer.ID, struct{}]
}

// New constructs a Manager whose recent-failure set remembers up to
// recentFailureCap peers.
func New(recentFailureCap int) (*Manager, error) {
	cache, err := lru.New[peer.ID, struct{}](recentFailureCap)
	if err != nil {
		return nil, fmt.Errorf("peermanager: %w", err)
	}
	return &Manager{
		byProtocol:     map[string][]connection{},
		cursor:         map[string]int{},
		recentFailures: cache,
	}, nil
}

// AddConnection registers p as reachable at conn for protocol. Calling it
// again for the same (protocol, peer, conn) is a no-op duplicate skip.
func (m *Manager) AddConnection(p peer.ID, conn sqmr.ConnectionID, protocol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.byProtocol[protocol] {
		if c.peer == p && c.conn == conn {
			return
		}
	}
	m.byProtocol[protocol] = append(m.byProtocol[protocol], connection{peer: p, conn: conn, protocol: protocol})
}

// RemoveConnection drops conn from protocol's pool, e.g. once its underlying
// transport connection closes.
func (m *Manager) RemoveConnection(conn sqmr.ConnectionID, protocol string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns := m.byProtocol[protocol]
	for i, c := range conns {
		if c.conn == conn {
			m.byProtocol[protocol] = append(conns[:i], conns[i+1:]...)
			return
		}
	}
}

// ReportFailure marks p as recently failed so Assign skips it while it's
// still in the LRU window.
func (m *Manager) ReportFailure(p peer.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recentFailures.Add(p, struct{}{})
}

// ErrNoPeerAvailable means no connection currently supports protocol that
// hasn't recently failed; the caller should leave the session pending and
// retry on the next AddConnection.
var ErrNoPeerAvailable = fmt.Errorf("peermanager: no peer available")

// Assign picks the next peer/connection for protocol round-robin among
// connections not in the recent-failure set.
func (m *Manager) Assign(outbound sqmr.OutboundSessionID, protocol string) (Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns := m.byProtocol[protocol]
	if len(conns) == 0 {
		return Assignment{}, ErrNoPeerAvailable
	}

	start := m.cursor[protocol]
	for i := 0; i < len(conns); i++ {
		idx := (start + i) % len(conns)
		c := conns[idx]
		if m.recentFailures.Contains(c.peer) {
			continue
		}
		m.cursor[protocol] = (idx + 1) % len(conns)
		return Assignment{Outbound: outbound, Peer: c.peer, Conn: c.conn}, nil
	}
	return Assignment{}, ErrNoPeerAvailable
}
