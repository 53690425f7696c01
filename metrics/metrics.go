// Copyright 2026 The RepeatFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the mount's Prometheus counters and gauges: VDF
// derivation starts/completions/failures, cache evictions, and provenance
// store write failures. A mount registers these against a
// prometheus.Registerer and scrapes them the usual way (an HTTP handler
// wired up by the caller, not this package).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Handle is the set of metrics a mount updates while it runs. The zero
// value is not usable; build one with New.
type Handle struct {
	VDFBuildsStarted   prometheus.Counter
	VDFBuildsCompleted prometheus.Counter
	VDFBuildsFailed    prometheus.Counter
	VDFBuildDuration   prometheus.Histogram

	CacheEvictions  prometheus.Counter
	CacheBytesInUse prometheus.Gauge

	StoreWritesFailed prometheus.Counter
}

// New constructs a Handle and registers every metric against reg. Passing
// prometheus.NewRegistry() keeps the metrics isolated to one mount, which
// is useful in tests; a long-running binary typically passes
// prometheus.DefaultRegisterer instead.
func New(reg prometheus.Registerer) *Handle {
	h := &Handle{
		VDFBuildsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repeatfs",
			Subsystem: "vdf",
			Name:      "builds_started_total",
			Help:      "Number of VDF derivations started.",
		}),
		VDFBuildsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repeatfs",
			Subsystem: "vdf",
			Name:      "builds_completed_total",
			Help:      "Number of VDF derivations that completed successfully.",
		}),
		VDFBuildsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repeatfs",
			Subsystem: "vdf",
			Name:      "builds_failed_total",
			Help:      "Number of VDF derivations that exited with an error.",
		}),
		VDFBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "repeatfs",
			Subsystem: "vdf",
			Name:      "build_duration_seconds",
			Help:      "Wall-clock time spent running a VDF derivation command.",
			Buckets:   prometheus.DefBuckets,
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repeatfs",
			Subsystem: "vdf_cache",
			Name:      "evictions_total",
			Help:      "Number of VDF cache entries evicted to stay under the high water mark.",
		}),
		CacheBytesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "repeatfs",
			Subsystem: "vdf_cache",
			Name:      "bytes_in_use",
			Help:      "Total bytes currently buffered by the VDF derivation cache.",
		}),
		StoreWritesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repeatfs",
			Subsystem: "provenance_store",
			Name:      "writes_failed_total",
			Help:      "Number of provenance store writes that returned an error after retrying.",
		}),
	}

	reg.MustRegister(
		h.VDFBuildsStarted,
		h.VDFBuildsCompleted,
		h.VDFBuildsFailed,
		h.VDFBuildDuration,
		h.CacheEvictions,
		h.CacheBytesInUse,
		h.StoreWritesFailed,
	)
	return h
}
