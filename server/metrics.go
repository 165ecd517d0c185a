// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/netascode/go-confapi/cfgerr"
)

// Metrics are the Prometheus collectors of a Server
type Metrics struct {
	// RequestsTotal counts requests by RPC, operation and result kind
	RequestsTotal *prometheus.CounterVec

	// RequestDuration observes request latency by RPC and operation
	RequestDuration *prometheus.HistogramVec

	// Instances reports the number of handles returned by the last
	// "*:*" pattern lookup
	Instances prometheus.Gauge

	// ReplaysTotal counts Set calls answered from the replay cache
	ReplaysTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "configurator_requests_total",
				Help: "Total number of configurator requests served.",
			},
			[]string{"rpc", "op", "result"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "configurator_request_duration_seconds",
				Help:    "Configurator request latency.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"rpc", "op"},
		),
		Instances: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "configurator_instances",
				Help: "Number of instances in the tree at the last full lookup.",
			},
		),
		ReplaysTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "configurator_replays_total",
				Help: "Total number of repeated Set requests answered with an earlier outcome.",
			},
			[]string{"op"},
		),
	}
}

func (m *Metrics) observe(rpc, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(rpc, op, cfgerr.KindOf(err).String()).Inc()
	m.RequestDuration.WithLabelValues(rpc, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) replayed(op string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "edit"
	}
	m.ReplaysTotal.WithLabelValues(op).Inc()
}
