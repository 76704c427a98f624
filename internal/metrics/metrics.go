// Copyright (C) 2026 The Notebook Engine Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package metrics exposes per-notebook queue/broadcast counts as
// Prometheus gauges, grounded on the package-level
// prometheus.NewGaugeVec/CounterVec + init-time MustRegister style of
// the retrieved pack's pkg/metrics package, labeled by notebook key
// instead of by role/status.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pending is the PENDING event count of a notebook's queue.
	Pending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notebookd_events_pending",
			Help: "Number of PENDING events awaiting processing, per notebook.",
		},
		[]string{"notebook"},
	)

	// Processing is the PROCESSING event count of a notebook's queue.
	Processing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notebookd_events_processing",
			Help: "Number of events currently PROCESSING, per notebook.",
		},
		[]string{"notebook"},
	)

	// Completed24h is the count of events that reached COMPLETED in the
	// trailing 24 hours.
	Completed24h = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notebookd_events_completed_24h",
			Help: "Number of events completed in the trailing 24h, per notebook.",
		},
		[]string{"notebook"},
	)

	// Failed24h is the count of events that reached FAILED in the
	// trailing 24 hours.
	Failed24h = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notebookd_events_failed_24h",
			Help: "Number of events failed in the trailing 24h, per notebook.",
		},
		[]string{"notebook"},
	)

	// Superseded24h is the count of events superseded in the trailing
	// 24 hours.
	Superseded24h = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notebookd_events_superseded_24h",
			Help: "Number of events superseded in the trailing 24h, per notebook.",
		},
		[]string{"notebook"},
	)

	// BroadcastDropped is the cumulative count of events the broadcaster
	// discarded at its saturated source queue. Events lost when a slow
	// subscriber is evicted are not counted.
	BroadcastDropped = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notebookd_broadcast_dropped_total",
			Help: "Total events dropped by the broadcaster, per notebook.",
		},
		[]string{"notebook"},
	)
)

func init() {
	prometheus.MustRegister(Pending)
	prometheus.MustRegister(Processing)
	prometheus.MustRegister(Completed24h)
	prometheus.MustRegister(Failed24h)
	prometheus.MustRegister(Superseded24h)
	prometheus.MustRegister(BroadcastDropped)
}

// Handler returns the Prometheus scrape handler for cmd/notebookd to
// mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Counts is the per-notebook snapshot this package's gauges are set
// from; callers assemble it from metastore.Store.EventCounts and
// broadcast.Hub.DroppedCount.
type Counts struct {
	Pending          int64
	Processing       int64
	Completed24h     int64
	Failed24h        int64
	Superseded24h    int64
	BroadcastDropped int64
}

// Observe writes one notebook's snapshot into the package-level gauges.
func Observe(notebookKey string, c Counts) {
	Pending.WithLabelValues(notebookKey).Set(float64(c.Pending))
	Processing.WithLabelValues(notebookKey).Set(float64(c.Processing))
	Completed24h.WithLabelValues(notebookKey).Set(float64(c.Completed24h))
	Failed24h.WithLabelValues(notebookKey).Set(float64(c.Failed24h))
	Superseded24h.WithLabelValues(notebookKey).Set(float64(c.Superseded24h))
	BroadcastDropped.WithLabelValues(notebookKey).Set(float64(c.BroadcastDropped))
}

// Forget removes a notebook's label set from every gauge, called when
// a notebook is closed so a stale series doesn't linger in scrapes.
func Forget(notebookKey string) {
	Pending.DeleteLabelValues(notebookKey)
	Processing.DeleteLabelValues(notebookKey)
	Completed24h.DeleteLabelValues(notebookKey)
	Failed24h.DeleteLabelValues(notebookKey)
	Superseded24h.DeleteLabelValues(notebookKey)
	BroadcastDropped.DeleteLabelValues(notebookKey)
}
