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

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors the five storage markers and the reorg count the driver
// already tracks (§4.3, §4.5) as in-process prometheus collectors. Nothing
// here registers them against a prometheus.Registry or serves them over
// HTTP; standing up an exporter endpoint is left to whoever embeds this
// package, since a metrics exporter is explicitly out of scope (§1).
type Metrics struct {
	HeaderMarker    prometheus.Gauge
	BodyMarker      prometheus.Gauge
	StateMarker     prometheus.Gauge
	ClassMarker     prometheus.Gauge
	BaseLayerMarker prometheus.Gauge
	ReorgsTotal     prometheus.Counter
}

// NewMetrics builds a fresh, unregistered set of collectors.
func NewMetrics() *Metrics {
	marker := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "starknet_erigon",
			Subsystem: "sync",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		HeaderMarker:    marker("header_marker", "Next header number the driver has not yet committed."),
		BodyMarker:      marker("body_marker", "Next body number the driver has not yet committed."),
		StateMarker:     marker("state_marker", "Next block number missing a committed state diff."),
		ClassMarker:     marker("class_marker", "Next block number missing a committed class/compiled-class set."),
		BaseLayerMarker: marker("base_layer_marker", "Next block number not yet confirmed against L1."),
		ReorgsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "starknet_erigon",
			Subsystem: "sync",
			Name:      "reorgs_total",
			Help:      "Reorgs absorbed by the driver since process start.",
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
		m.HeaderMarker, m.BodyMarker, m.StateMarker,
		m.ClassMarker, m.BaseLayerMarker, m.ReorgsTotal,
	}
}

func (m *Metrics) setMarkers(header, body, state, class, baseLayer uint64) {
	if m == nil {
		return
	}
	m.HeaderMarker.Set(float64(header))
	m.BodyMarker.Set(float64(body))
	m.StateMarker.Set(float64(state))
	m.ClassMarker.Set(float64(class))
	m.BaseLayerMarker.Set(float64(baseLayer))
}

func (m *Metrics) incReorgs() {
	if m == nil {
		return
	}
	m.ReorgsTotal.Inc()
}
