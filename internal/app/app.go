// Package app wires the dependencies and exposes the service run modes:
//
//   - Worker mode: ingestion merger consuming the Redis post streams
//   - Analyzer mode: detection sweeps on independent tickers, the adaptive
//     scheduler bridge, and the advisory engine
//
// Both modes share the health/metrics server and can run side by side in
// separate processes against the same store.
package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/advisor"
	"github.com/sentinelgraph/sentinel-core/internal/detect/botscore"
	"github.com/sentinelgraph/sentinel-core/internal/detect/community"
	"github.com/sentinelgraph/sentinel-core/internal/detect/coordination"
	"github.com/sentinelgraph/sentinel-core/internal/detect/narrative"
	"github.com/sentinelgraph/sentinel-core/internal/detect/origin"
	"github.com/sentinelgraph/sentinel-core/internal/embeddings"
	"github.com/sentinelgraph/sentinel-core/internal/ingest"
	"github.com/sentinelgraph/sentinel-core/internal/linkresolver"
	"github.com/sentinelgraph/sentinel-core/internal/platform/config"
	"github.com/sentinelgraph/sentinel-core/internal/platform/observability"
	"github.com/sentinelgraph/sentinel-core/internal/platform/worker"
	"github.com/sentinelgraph/sentinel-core/internal/scheduler"
	"github.com/sentinelgraph/sentinel-core/internal/suspects"
	db "github.com/sentinelgraph/sentinel-core/internal/storage"
)

// App holds the shared dependencies for all run modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	redis    redis.UniversalClient
	logger   *zerolog.Logger
}

// New creates an App. The Redis client is shared across the stream source,
// the suspect queue, the URL cache, and the scheduler bridge.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	return &App{
		cfg:      cfg,
		database: database,
		redis:    rdb,
		logger:   logger,
	}
}

// Close releases the Redis client. The database pool is owned by the caller.
func (a *App) Close() {
	if err := a.redis.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("redis close error")
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	return observability.NewServer(a.database, a.cfg.HealthPort, a.logger).Start(ctx)
}

// RunWorker runs the ingestion worker: a poll loop merging bounded batches
// from the post streams into the store.
func (a *App) RunWorker(ctx context.Context) error {
	a.logger.Info().Msg("starting worker mode")

	streams := []string{
		a.cfg.StreamMicro,
		a.cfg.StreamMinute,
		a.cfg.StreamHourly,
		a.cfg.StreamDefault,
	}

	source := ingest.NewSource(a.redis, streams)
	embedder := embeddings.New(a.cfg, a.logger)
	merger := ingest.NewMerger(source, a.database, embedder, a.redis, a.cfg, a.logger)

	return worker.Loop(ctx, worker.Config{
		Name:         "ingestion",
		PollInterval: a.cfg.WorkerBlockTimeout,
		Process:      merger.ProcessBatch,
		Logger:       a.logger,
	})
}

// RunAnalyzer runs the detection sweeps, the scheduler bridge, and the
// advisory engine as independent ticker tasks sharing the store, the Redis
// client, and the suspect queue.
func (a *App) RunAnalyzer(ctx context.Context) error {
	a.logger.Info().Msg("starting analyzer mode")

	queue := suspects.New(a.redis, a.cfg.SuspectSetKey)

	botSweep := botscore.NewSweep(a.database, a.cfg.BotScoreBatchSize, a.cfg.RecentPostsLimit, a.logger)

	coordDetector := coordination.New(a.cfg.CoordinationWindow, a.cfg.SimilarityThreshold)
	coordSweep := coordination.NewSweep(a.database, coordDetector, a.cfg.CoordinationFetchLimit, a.logger)

	clusterer := narrative.NewClusterer(a.cfg.ClusterEpsilon, a.cfg.ClusterMinSamples, a.cfg.ClusterMinSize)
	clusterSweep := narrative.NewSweep(a.database, clusterer,
		a.cfg.ClusterFetchLimit, a.cfg.SpikeVelocityThreshold, a.cfg.SpikeMinRate, a.logger)

	graphDetector := community.New(community.Params{
		MentionEdgeWeight:   a.cfg.MentionEdgeWeight,
		SimilarityThreshold: a.cfg.GraphSimilarityThreshold,
		BotScoreThreshold:   a.cfg.BotClusterScoreThreshold,
		CoordinatedMinSize:  a.cfg.CoordinatedMinSize,
		CoordinatedRatio:    a.cfg.CoordinatedEdgeRatio,
	})
	graphSweep := community.NewSweep(a.database, graphDetector, queue,
		a.cfg.GraphFetchLimit, a.cfg.CommunityFlagWeight, a.logger)

	tracer := origin.New(a.cfg.OriginSeedWindow, a.cfg.TimelineBucketWidth)
	originSweep := origin.NewSweep(a.database, tracer, queue, a.cfg.OriginSeedFlagWeight, a.logger)

	resolver := linkresolver.NewResolver(a.redis, a.cfg, a.logger)
	urlSweep := linkresolver.NewSweep(a.database, resolver, queue,
		a.cfg.URLExpandBatchSize, a.cfg.BadURLFlagWeight, a.logger)

	adviser := advisor.New(advisor.Links{
		Evidence:  a.cfg.EvidenceLinkBase,
		Facts:     a.cfg.FactLinkBase,
		Dashboard: a.cfg.DashboardLinkBase,
	}, a.logger)
	advisorySweep := advisor.NewSweep(a.database, adviser, coordDetector, resolver,
		a.redis, a.cfg.AdviceStream, 1.0, a.logger)

	sched := scheduler.New(config.ParseSearchTerms(a.cfg.SearchTerms), a.cfg.SpikeResultThreshold, a.logger)
	bridge := scheduler.NewBridge(sched, a.redis, a.cfg.ScanDirectiveStream, a.cfg.ScanFeedbackStream, a.logger)

	tasks := []worker.TickerTask{
		a.sweepTask("clustering", a.cfg.ClusteringInterval, clusterSweep.Run),
		a.sweepTask("bot_scoring", a.cfg.BotScoringInterval, botSweep.Run),
		a.sweepTask("url_expansion", a.cfg.URLExpansionInterval, urlSweep.Run),
		a.sweepTask("coordination", a.cfg.CoordinationInterval, coordSweep.Run),
		a.sweepTask("graph", a.cfg.GraphInterval, graphSweep.Run),
		a.sweepTask("origin", a.cfg.OriginInterval, originSweep.Run),
		a.sweepTask("advisory", a.cfg.AdvisoryInterval, advisorySweep.Run),
		a.sweepTask("scheduler", a.cfg.SchedulerInterval, func(ctx context.Context) error {
			if err := bridge.DrainFeedback(ctx); err != nil {
				return err
			}

			return bridge.Dispatch(ctx)
		}),
	}

	return worker.TickerLoop(ctx, worker.TickerConfig{
		Name:   "analyzer",
		Tasks:  tasks,
		Logger: a.logger,
	})
}

// sweepTask wraps a sweep into a ticker task with panic recovery, duration
// metrics, and error logging. Sweep failures are transient by design and
// retried on the next tick.
func (a *App) sweepTask(name string, interval time.Duration, run func(ctx context.Context) error) worker.TickerTask {
	return worker.TickerTask{
		Name:     name,
		Interval: interval,
		Run: func(ctx context.Context) {
			defer worker.RecoverPanic(a.logger, name)

			start := time.Now()

			if err := run(ctx); err != nil {
				a.logger.Error().Err(err).Str("sweep", name).Msg("sweep failed")

				return
			}

			observability.SweepDurationSeconds.WithLabelValues(name).Observe(time.Since(start).Seconds())
		},
	}
}
