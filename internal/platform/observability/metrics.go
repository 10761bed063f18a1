package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PostsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_posts_ingested_total",
		Help: "The total number of ingested posts",
	}, []string{"stream"})

	IngestItemsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_ingest_items_skipped_total",
		Help: "The total number of stream items skipped during ingestion",
	}, []string{"reason"})

	IngestBatchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_ingest_batch_duration_seconds",
		Help:    "Duration in seconds to merge one ingestion batch",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	EmbeddingRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_embedding_request_duration_seconds",
		Help:    "Duration of embedding service requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	AuthorsScored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_authors_scored_total",
		Help: "The total number of authors scored for bot likelihood",
	}, []string{"label"})

	CoordinationClusters = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_coordination_clusters_total",
		Help: "The total number of coordination clusters detected",
	}, []string{"type"})

	NarrativesDetected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_narratives_detected",
		Help: "Number of narratives found in the latest clustering sweep",
	})

	NarrativeSpikes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_narrative_spikes_total",
		Help: "The total number of narrative volume spikes flagged",
	})

	CommunitiesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_communities_detected_total",
		Help: "The total number of communities detected by classification",
	}, []string{"type"})

	SuspectsFlagged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_suspects_flagged_total",
		Help: "The total number of suspect flagging events by source",
	}, []string{"source"})

	URLsExpanded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_urls_expanded_total",
		Help: "The total number of URL expansions by outcome",
	}, []string{"status"})

	SweepDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_sweep_duration_seconds",
		Help:    "Duration in seconds of one analyzer sweep",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"sweep"})
)
