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

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors the session counts Behaviour already tracks in its
// sessions map as in-process prometheus collectors. As with sync.Metrics,
// nothing here registers against a prometheus.Registry or opens an HTTP
// listener; that remains a caller's responsibility, and is out of scope
// here (§1).
type Metrics struct {
	ActiveInboundSessions  prometheus.Gauge
	ActiveOutboundSessions prometheus.Gauge
	SessionsFinishedTotal  prometheus.Counter
	SessionsFailedTotal    *prometheus.CounterVec
	SessionsDroppedTotal   prometheus.Counter
}

// NewMetrics builds a fresh, unregistered set of collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		ActiveInboundSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "starknet_erigon",
			Subsystem: "sqmr",
			Name:      "active_inbound_sessions",
			Help:      "Inbound sessions currently in Negotiating or Streaming.",
		}),
		ActiveOutboundSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "starknet_erigon",
			Subsystem: "sqmr",
			Name:      "active_outbound_sessions",
			Help:      "Outbound sessions currently in Negotiating or Streaming.",
		}),
		SessionsFinishedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "starknet_erigon",
			Subsystem: "sqmr",
			Name:      "sessions_finished_total",
			Help:      "Sessions that reached FinishedOk.",
		}),
		SessionsFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "starknet_erigon",
			Subsystem: "sqmr",
			Name:      "sessions_failed_total",
			Help:      "Sessions that reached Failed, by reason.",
		}, []string{"reason"}),
		SessionsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "starknet_erigon",
			Subsystem: "sqmr",
			Name:      "sessions_dropped_total",
			Help:      "Sessions unilaterally dropped via DropSession.",
		}),
	}
}

// Collectors returns every collector m owns, for a caller that wants to
// register them against its own prometheus.Registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	if m == nil {
		return nil
	}
	return []prometheus.Collector{
		m.ActiveInboundSessions, m.ActiveOutboundSessions,
		m.SessionsFinishedTotal, m.SessionsFailedTotal, m.SessionsDroppedTotal,
	}
}

// setActive sets the active-session gauges directly, rather than
// incrementing/decrementing at each of Behaviour's several call sites that
// can move a session to or out of Negotiating/Streaming; recomputing from
// the sessions map on every mutation is cheap at SQMR's scale and can't
// drift out of sync the way paired inc/dec calls could.
func (m *Metrics) setActive(inbound, outbound int) {
	if m == nil {
		return
	}
	m.ActiveInboundSessions.Set(float64(inbound))
	m.ActiveOutboundSessions.Set(float64(outbound))
}

func (m *Metrics) sessionFinished() {
	if m == nil {
		return
	}
	m.SessionsFinishedTotal.Inc()
}

func (m *Metrics) sessionFailed(reason FailureReason) {
	if m == nil {
		return
	}
	m.SessionsFailedTotal.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) sessionDropped() {
	if m == nil {
		return
	}
	m.SessionsDroppedTotal.Inc()
}
