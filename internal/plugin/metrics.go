// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plughost Contributors

package plugin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for scanned binaries.
const (
	resultCached = "cached"
	resultLoaded = "loaded"
	resultFailed = "failed"
)

// Reason labels for rejected plugin entries.
const (
	reasonEntryError      = "entry_error"
	reasonHandlerNotFound = "handler_not_found"
)

// BinariesScanned counts binaries visited by scans, by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var BinariesScanned = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plughost_binaries_scanned_total",
		Help: "Total number of plugin binaries visited by scans",
	},
	[]string{"result"},
)

// PluginsRejected counts exported entries that produced no plugin.
var PluginsRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plughost_plugins_rejected_total",
		Help: "Total number of exported plugin entries that were skipped",
	},
	[]string{"reason"},
)

// CacheEntriesDropped counts malformed cache entries dropped while reading.
var CacheEntriesDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "plughost_cache_entries_dropped_total",
		Help: "Total number of malformed plugin cache entries dropped",
	},
)

// KnownPlugins is the size of the aggregate plugin list.
var KnownPlugins = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "plughost_known_plugins",
		Help: "Number of plugins currently known to the cache",
	},
)

// ScanDuration observes how long scans take.
var ScanDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "plughost_scan_duration_seconds",
		Help:    "Plugin scan duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
)

// RegisterMetrics registers plugin cache metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(BinariesScanned)
	reg.MustRegister(PluginsRejected)
	reg.MustRegister(CacheEntriesDropped)
	reg.MustRegister(KnownPlugins)
	reg.MustRegister(ScanDuration)
}

func recordBinaryScanned(result string) {
	BinariesScanned.WithLabelValues(result).Inc()
}

func recordPluginRejected(reason string) {
	PluginsRejected.WithLabelValues(reason).Inc()
}

func recordScan(duration time.Duration) {
	ScanDuration.Observe(duration.Seconds())
}
