package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PairsUpsertedTotal counts edge increments applied to the graph.
	PairsUpsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playgraph_pairs_upserted_total",
			Help: "Total number of co-occurrence increments applied",
		},
	)

	// PlaylistIngestsTotal counts playlist ingests by outcome.
	PlaylistIngestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playgraph_playlist_ingests_total",
			Help: "Total number of playlist ingests",
		},
		[]string{"result"},
	)

	// ResolutionMissesTotal counts track ids dropped during ingestion.
	ResolutionMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playgraph_resolution_misses_total",
			Help: "Total number of track ids that failed to resolve during ingestion",
		},
	)

	// BackfillPagesTotal counts backfill pages committed.
	BackfillPagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playgraph_backfill_pages_total",
			Help: "Total number of backfill pages processed",
		},
	)

	// MetadataInsertedTotal counts metadata records written.
	MetadataInsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "playgraph_metadata_inserted_total",
			Help: "Total number of metadata records inserted",
		},
	)

	// ProviderRequestsTotal counts upstream provider calls by endpoint and outcome.
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playgraph_provider_requests_total",
			Help: "Total number of metadata provider requests",
		},
		[]string{"endpoint", "result"},
	)

	// QueryDuration tracks search and recommend latency.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playgraph_query_duration_seconds",
			Help:    "Duration of search and recommend queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"query"},
	)

	// JobsFinishedTotal counts background jobs by type and terminal status.
	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playgraph_jobs_finished_total",
			Help: "Total number of finished background jobs",
		},
		[]string{"type", "status"},
	)

	// GraphSize reports the row counts of the store.
	GraphSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "playgraph_graph_size",
			Help: "Number of stored records by kind",
		},
		[]string{"kind"},
	)
)

// ObserveQuery records the duration of a query started at start.
func ObserveQuery(query string, start time.Time) {
	QueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
}

// RecordProviderRequest records one upstream call.
func RecordProviderRequest(endpoint string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ProviderRequestsTotal.WithLabelValues(endpoint, result).Inc()
}

// RecordJob records a finished job.
func RecordJob(jobType, status string) {
	JobsFinishedTotal.WithLabelValues(jobType, status).Inc()
}
