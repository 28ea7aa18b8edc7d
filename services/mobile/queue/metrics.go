// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mobile_queue_enqueued_total",
		Help: "Total solve results enqueued for upload.",
	})

	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mobile_queue_duplicates_total",
		Help: "Total enqueue calls suppressed as idempotency-key duplicates.",
	})

	uploadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mobile_queue_uploaded_total",
		Help: "Total entries acknowledged by the server and removed.",
	})

	uploadFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mobile_queue_upload_failures_total",
		Help: "Total upload attempts that failed.",
	})

	discardedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mobile_queue_discarded_total",
		Help: "Total failed entries discarded explicitly by the caller.",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mobile_queue_depth",
		Help: "Entries currently awaiting upload.",
	})

	flushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mobile_queue_flush_duration_seconds",
		Help:    "Duration of flush operations.",
		Buckets: prometheus.DefBuckets,
	})
)
