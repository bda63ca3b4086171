/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitremote

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	remoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translationflow_remote_requests_total",
			Help: "Requests issued to the git-hosting API, by operation and status code",
		},
		[]string{"op", "code"},
	)

	remoteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "translationflow_remote_request_duration_seconds",
			Help:    "Latency of requests issued to the git-hosting API",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func observe(op, code string, d time.Duration) {
	remoteRequests.With(prometheus.Labels{"op": op, "code": code}).Inc()
	remoteLatency.With(prometheus.Labels{"op": op}).Observe(d.Seconds())
}
