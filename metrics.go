// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

package gateway

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricSessionsOpened    = "sessions_opened_total"
	MetricSessions          = "sessions"
	MetricStatements        = "statements_total"
	MetricStatementFailures = "statement_failures_total"
	MetricJobsSubmitted     = "jobs_submitted_total"
	MetricRowsRetrieved     = "rows_retrieved_total"
	MetricWorkerPoolSize    = "worker_pool_size"
	MetricHTTPRequest       = "http_request_duration_seconds"
)

const metricNamespace = "sqlgateway"

var CounterSessionsOpened = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      MetricSessionsOpened,
		Help:      "Number of sessions opened.",
	},
)

var GaugeSessions = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      MetricSessions,
		Help:      "Number of open sessions.",
	},
)

var CounterStatements = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      MetricStatements,
		Help:      "Number of statements executed.",
	},
)

var CounterStatementFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      MetricStatementFailures,
		Help:      "Number of statements which failed.",
	},
)

var CounterJobsSubmitted = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      MetricJobsSubmitted,
		Help:      "Number of query and insert jobs submitted.",
	},
)

var CounterRowsRetrieved = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: metricNamespace,
		Name:      MetricRowsRetrieved,
		Help:      "Number of result rows served to clients.",
	},
)

var GaugeWorkerPoolSize = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: metricNamespace,
		Name:      MetricWorkerPoolSize,
		Help:      "Number of goroutines of the local processor's worker pool.",
	},
)

var HistogramHTTPRequest = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: metricNamespace,
		Name:      MetricHTTPRequest,
		Help:      "Duration of HTTP requests by route and method.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"path", "method", "slow"},
)

// poolStats reports the local processor's pool size.
type poolStats struct{}

func (poolStats) PoolSize(n int) { GaugeWorkerPoolSize.Set(float64(n)) }

func init() {
	prometheus.MustRegister(CounterSessionsOpened)
	prometheus.MustRegister(GaugeSessions)
	prometheus.MustRegister(CounterStatements)
	prometheus.MustRegister(CounterStatementFailures)
	prometheus.MustRegister(CounterJobsSubmitted)
	prometheus.MustRegister(CounterRowsRetrieved)
	prometheus.MustRegister(GaugeWorkerPoolSize)
	prometheus.MustRegister(HistogramHTTPRequest)
}
