// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the fan-out counters. Its methods satisfy the metric sink
// interfaces of the bus and dispatch packages, so a single *Metrics is
// threaded through both.
type Metrics struct {
	ConnectionsTotal  *prometheus.CounterVec
	DispatchedTotal   *prometheus.CounterVec
	DeliveredTotal    *prometheus.CounterVec
	DeliveryFailures  *prometheus.CounterVec
	BusPublishesTotal *prometheus.CounterVec
	BusDroppedTotal   *prometheus.CounterVec
	BusReconnects     prometheus.Counter
	OfflineWrites     *prometheus.CounterVec
}

// NewMetrics creates and registers the fan-out metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propstream_connections_total",
				Help: "Total connection attempts by outcome",
			},
			[]string{"outcome"},
		),
		DispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propstream_dispatched_total",
				Help: "Total bus messages dispatched by channel",
			},
			[]string{"channel"},
		),
		DeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propstream_delivered_total",
				Help: "Total events delivered to connections by channel",
			},
			[]string{"channel"},
		),
		DeliveryFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propstream_delivery_failures_total",
				Help: "Total per-connection delivery failures by channel",
			},
			[]string{"channel"},
		),
		BusPublishesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propstream_bus_publishes_total",
				Help: "Total messages published to the bus by channel",
			},
			[]string{"channel"},
		),
		BusDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propstream_bus_dropped_total",
				Help: "Total bus messages dropped due to full subscriber buffers",
			},
			[]string{"channel"},
		),
		BusReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "propstream_bus_reconnects_total",
				Help: "Total bus reconnections",
			},
		),
		OfflineWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propstream_offline_writes_total",
				Help: "Total durable offline-notification writes by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.DispatchedTotal,
		m.DeliveredTotal,
		m.DeliveryFailures,
		m.BusPublishesTotal,
		m.BusDroppedTotal,
		m.BusReconnects,
		m.OfflineWrites,
	)

	return m
}

// RecordConnection counts a connection attempt outcome
// ("accepted", "rejected").
func (m *Metrics) RecordConnection(outcome string) {
	m.ConnectionsTotal.WithLabelValues(outcome).Inc()
}

// OnPublish implements bus.Metrics.
func (m *Metrics) OnPublish(channel string) {
	m.BusPublishesTotal.WithLabelValues(channel).Inc()
}

// OnDropped implements bus.Metrics.
func (m *Metrics) OnDropped(channel string) {
	m.BusDroppedTotal.WithLabelValues(channel).Inc()
}

// OnReconnect implements bus.Metrics.
func (m *Metrics) OnReconnect() {
	m.BusReconnects.Inc()
}

// OnDispatched implements dispatch.Metrics.
func (m *Metrics) OnDispatched(channel string) {
	m.DispatchedTotal.WithLabelValues(channel).Inc()
}

// OnDelivered implements dispatch.Metrics.
func (m *Metrics) OnDelivered(channel string, connections int) {
	m.DeliveredTotal.WithLabelValues(channel).Add(float64(connections))
}

// OnDeliveryFailure implements dispatch.Metrics.
func (m *Metrics) OnDeliveryFailure(channel string) {
	m.DeliveryFailures.WithLabelValues(channel).Inc()
}

// OnOfflineWrite implements dispatch.Metrics.
func (m *Metrics) OnOfflineWrite(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.OfflineWrites.WithLabelValues(outcome).Inc()
}
