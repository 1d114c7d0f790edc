// services/dataset-api/internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// Query metrics
	QueryRequests *prometheus.CounterVec // label: outcome = ok|client_error|internal_error
	QueryLatency  prometheus.Histogram
	QueryRows     prometheus.Histogram

	// Columns metrics
	ColumnsRequests *prometheus.CounterVec // label: outcome

	// Engine / dataset
	EngineInflight prometheus.Gauge
	DatasetRows    prometheus.Gauge

	// Audit
	AuditDropped   prometheus.Counter
	AuditPublished prometheus.Counter
)

// Register инициализирует и регистрирует все метрики.
// Если r == nil, используется prometheus.DefaultRegisterer.
// Дублирующая регистрация игнорируется.
func Register(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}

		QueryRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataset_api", Name: "query_requests_total",
			Help: "Total number of /query calls by outcome",
		}, []string{"outcome"})
		QueryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dataset_api", Name: "query_latency_seconds",
			Help:    "Latency distribution of /query execution",
			Buckets: prometheus.DefBuckets,
		})
		QueryRows = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dataset_api", Name: "query_rows",
			Help:    "Number of rows returned per successful query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		})
		ColumnsRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dataset_api", Name: "columns_requests_total",
			Help: "Total number of /columns calls by outcome",
		}, []string{"outcome"})
		EngineInflight = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dataset_api", Subsystem: "engine", Name: "inflight_queries",
			Help: "Statements currently executing in the engine worker pool",
		})
		DatasetRows = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dataset_api", Name: "dataset_rows",
			Help: "Row count of the dataset table loaded at startup",
		})
		AuditDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dataset_api", Subsystem: "audit", Name: "dropped_total",
			Help: "Audit events dropped because the buffer was full or publishing failed",
		})
		AuditPublished = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dataset_api", Subsystem: "audit", Name: "published_total",
			Help: "Audit events delivered to Kafka",
		})

		collectors := []prometheus.Collector{
			QueryRequests, QueryLatency, QueryRows,
			ColumnsRequests,
			EngineInflight, DatasetRows,
			AuditDropped, AuditPublished,
		}
		for _, c := range collectors {
			if err := r.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	})
}
