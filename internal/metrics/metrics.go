package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "directory_search"

var DocumentsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "index",
	Name:      "documents_written_total",
	Help:      "Documents sent to the search engine, by index prefix and outcome (stored, retried, terminal, exhausted)",
}, []string{"index", "outcome"})

var WriteAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "index",
	Name:      "write_attempts_total",
	Help:      "Batch write calls made to the search engine",
}, []string{"index"})

var JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "jobs",
	Name:      "runs_total",
	Help:      "Scheduled job runs by result (success, failure, skipped)",
}, []string{"job", "result"})

var JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "jobs",
	Name:      "duration_seconds",
	Help:      "Duration of scheduled job runs",
	Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 300, 900, 1800, 3600},
}, []string{"job"})

var HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "requests_total",
	Help:      "HTTP requests by route pattern, method and status",
}, []string{"route", "method", "status"})

var HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "method"})

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		DocumentsWritten,
		WriteAttempts,
		JobRuns,
		JobDuration,
		HTTPRequests,
		HTTPDuration,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IndexLabel strips the generation suffix so label cardinality stays bounded.
func IndexLabel(name string) string {
	for _, prefix := range []string{"search-users-", "search-devices-"} {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			return prefix[:len(prefix)-1]
		}
	}
	return name
}
