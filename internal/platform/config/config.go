// Package config loads environment-based configuration for all service modes.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config carries every tunable for the ingestion worker and the analyzer
// sweeps. Detection thresholds are deliberately configurable rather than
// hard-coded: the shipped defaults are policy values, not invariants.
type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB     int    `env:"REDIS_DB" envDefault:"0"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"2"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Ingestion streams, in priority-tier order
	StreamMicro    string `env:"STREAM_MICRO" envDefault:"posts:micro"`
	StreamMinute   string `env:"STREAM_MINUTE" envDefault:"posts:minute"`
	StreamHourly   string `env:"STREAM_HOURLY" envDefault:"posts:hourly"`
	StreamDefault  string `env:"STREAM_DEFAULT" envDefault:"stream:posts"`
	SuspectSetKey  string `env:"SUSPECT_SET_KEY" envDefault:"queue:suspects"`
	SeenSetKey     string `env:"SEEN_SET_KEY" envDefault:"set:seen_post_ids"`
	URLCachePrefix string `env:"URL_CACHE_PREFIX" envDefault:"url:"`

	// Ingestion merger
	WorkerBatchSize    int           `env:"WORKER_BATCH_SIZE" envDefault:"100"`
	WorkerBlockTimeout time.Duration `env:"WORKER_BLOCK_TIMEOUT" envDefault:"2s"`

	// Embeddings. EmbeddingDimensions must match the width of the
	// posts.embedding vector column; changing it requires a migration.
	EmbeddingAPIKey     string `env:"EMBEDDING_API_KEY" envDefault:"mock"`
	EmbeddingModel      string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	EmbeddingDimensions int    `env:"EMBEDDING_DIMENSIONS" envDefault:"384"`
	EmbeddingRPS        int    `env:"EMBEDDING_RPS" envDefault:"2"`

	// Bot scoring sweep
	BotScoreBatchSize int `env:"BOT_SCORE_BATCH_SIZE" envDefault:"100"`
	RecentPostsLimit  int `env:"RECENT_POSTS_LIMIT" envDefault:"50"`

	// Coordination detection
	CoordinationWindow     time.Duration `env:"COORDINATION_WINDOW" envDefault:"15m"`
	CoordinationFetchLimit int           `env:"COORDINATION_FETCH_LIMIT" envDefault:"1000"`
	SimilarityThreshold    float32       `env:"SIMILARITY_THRESHOLD" envDefault:"0.85"`

	// Narrative clustering
	ClusterFetchLimit      int           `env:"CLUSTER_FETCH_LIMIT" envDefault:"500"`
	ClusterMinSize         int           `env:"CLUSTER_MIN_SIZE" envDefault:"5"`
	ClusterMinSamples      int           `env:"CLUSTER_MIN_SAMPLES" envDefault:"3"`
	ClusterEpsilon         float32       `env:"CLUSTER_EPSILON" envDefault:"0.30"`
	SpikeVelocityThreshold float64       `env:"SPIKE_VELOCITY_THRESHOLD" envDefault:"3.0"`
	SpikeMinRate           int           `env:"SPIKE_MIN_RATE" envDefault:"5"`
	SpikeRateWindow        time.Duration `env:"SPIKE_RATE_WINDOW" envDefault:"1h"`

	// Interaction graph and communities
	GraphFetchLimit          int     `env:"GRAPH_FETCH_LIMIT" envDefault:"2000"`
	MentionEdgeWeight        float64 `env:"MENTION_EDGE_WEIGHT" envDefault:"0.5"`
	GraphSimilarityThreshold float32 `env:"GRAPH_SIMILARITY_THRESHOLD" envDefault:"0.85"`
	BotClusterScoreThreshold float64 `env:"BOT_CLUSTER_SCORE_THRESHOLD" envDefault:"0.6"`
	CoordinatedMinSize       int     `env:"COORDINATED_MIN_SIZE" envDefault:"10"`
	CoordinatedEdgeRatio     float64 `env:"COORDINATED_EDGE_RATIO" envDefault:"2.0"`

	// Suspect flagging weights
	CommunityFlagWeight  float64 `env:"COMMUNITY_FLAG_WEIGHT" envDefault:"25"`
	OriginSeedFlagWeight float64 `env:"ORIGIN_SEED_FLAG_WEIGHT" envDefault:"30"`
	BadURLFlagWeight     float64 `env:"BAD_URL_FLAG_WEIGHT" envDefault:"40"`

	// Origin tracing
	OriginSeedWindow     time.Duration `env:"ORIGIN_SEED_WINDOW" envDefault:"30m"`
	TimelineBucketWidth  time.Duration `env:"TIMELINE_BUCKET_WIDTH" envDefault:"5m"`

	// Adaptive scheduler
	SearchTerms          string `env:"SEARCH_TERMS" envDefault:""`
	SpikeResultThreshold int    `env:"SPIKE_RESULT_THRESHOLD" envDefault:"10"`
	ScanDirectiveStream  string `env:"SCAN_DIRECTIVE_STREAM" envDefault:"scan:directives"`
	ScanFeedbackStream   string `env:"SCAN_FEEDBACK_STREAM" envDefault:"scan:feedback"`

	// Advisory engine
	AdviceStream      string `env:"ADVICE_STREAM" envDefault:"advice:reports"`
	EvidenceLinkBase  string `env:"EVIDENCE_LINK_BASE" envDefault:"https://sentinel.example/report"`
	FactLinkBase      string `env:"FACT_LINK_BASE" envDefault:"https://sentinel.example/facts"`
	DashboardLinkBase string `env:"DASHBOARD_LINK_BASE" envDefault:"https://sentinel.example/dash"`

	// URL expansion
	URLExpandBatchSize   int           `env:"URL_EXPAND_BATCH_SIZE" envDefault:"50"`
	URLExpandConcurrency int           `env:"URL_EXPAND_CONCURRENCY" envDefault:"8"`
	URLCacheTTL          time.Duration `env:"URL_CACHE_TTL" envDefault:"168h"`
	URLErrorCacheTTL     time.Duration `env:"URL_ERROR_CACHE_TTL" envDefault:"1h"`
	WebFetchTimeout      time.Duration `env:"WEB_FETCH_TIMEOUT" envDefault:"5s"`
	SuspiciousDomains    []string      `env:"SUSPICIOUS_DOMAINS" envSeparator:"," envDefault:"bit.ly,tinyurl.com"`
	SuspiciousTLDs       []string      `env:"SUSPICIOUS_TLDS" envSeparator:"," envDefault:".tk,.ml,.ga,.cf,.gq"`

	// Analyzer sweep cadences
	ClusteringInterval   time.Duration `env:"CLUSTERING_INTERVAL" envDefault:"1m"`
	BotScoringInterval   time.Duration `env:"BOT_SCORING_INTERVAL" envDefault:"2m"`
	URLExpansionInterval time.Duration `env:"URL_EXPANSION_INTERVAL" envDefault:"3m"`
	CoordinationInterval time.Duration `env:"COORDINATION_INTERVAL" envDefault:"5m"`
	GraphInterval        time.Duration `env:"GRAPH_INTERVAL" envDefault:"10m"`
	OriginInterval       time.Duration `env:"ORIGIN_INTERVAL" envDefault:"10m"`
	AdvisoryInterval     time.Duration `env:"ADVISORY_INTERVAL" envDefault:"5m"`
	SchedulerInterval    time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"30s"`
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	return cfg, nil
}

// TermBucket is one named group of search terms sharing a base priority.
type TermBucket struct {
	Name     string
	Priority float64
	Terms    []string
}

// ParseSearchTerms parses the SEARCH_TERMS value. The format is
// "bucket=priority:term1|term2;bucket2=priority:term3". Malformed segments
// are skipped rather than failing the whole configuration.
func ParseSearchTerms(raw string) []TermBucket {
	var buckets []TermBucket

	for _, segment := range strings.Split(raw, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		name, rest, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}

		prioStr, termsStr, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}

		priority, err := strconv.ParseFloat(strings.TrimSpace(prioStr), 64)
		if err != nil || priority <= 0 {
			continue
		}

		var terms []string

		for _, t := range strings.Split(termsStr, "|") {
			if t = strings.TrimSpace(t); t != "" {
				terms = append(terms, t)
			}
		}

		if len(terms) == 0 {
			continue
		}

		buckets = append(buckets, TermBucket{
			Name:     strings.TrimSpace(name),
			Priority: priority,
			Terms:    terms,
		})
	}

	return buckets
}
