// Package metrics holds the Prometheus collectors for loads and queries.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// rowsTotal counts processed input rows per target table and outcome.
	rowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdisql_load_rows_total",
			Help: "Input rows processed by bulk loads, by table and outcome (inserted, skipped, failed)",
		},
		[]string{"table", "outcome"},
	)

	// loadsTotal counts finished load jobs per table and result.
	loadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdisql_loads_total",
			Help: "Bulk load jobs by table and result (ok, fatal)",
		},
		[]string{"table", "result"},
	)

	// queryDuration observes analytical query latency.
	queryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tdisql_query_duration_seconds",
			Help:    "Latency of analytical queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// queryErrorsTotal counts analytical statements that failed.
	queryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdisql_query_errors_total",
			Help: "Analytical query statements that failed",
		},
		[]string{"query"},
	)

	// httpRequests counts API requests per route and status code.
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdisql_http_requests_total",
			Help: "Query API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	// httpDuration observes API request latency per route.
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tdisql_http_request_duration_seconds",
			Help:    "Latency of query API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveRow records one processed input row.
func ObserveRow(table, outcome string) {
	rowsTotal.WithLabelValues(table, outcome).Inc()
}

// ObserveLoad records a finished load job.
func ObserveLoad(table string, fatal bool) {
	result := "ok"
	if fatal {
		result = "fatal"
	}
	loadsTotal.WithLabelValues(table, result).Inc()
}

// ObserveQuery records the latency of a query and whether it failed.
func ObserveQuery(query string, started time.Time, err error) {
	queryDuration.WithLabelValues(query).Observe(time.Since(started).Seconds())
	if err != nil {
		queryErrorsTotal.WithLabelValues(query).Inc()
	}
}

// ObserveRequest records one served API request.
func ObserveRequest(method, route string, status int, started time.Time) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(time.Since(started).Seconds())
}
