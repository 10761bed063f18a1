package ingest

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/cleaner"
	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
	"github.com/sentinelgraph/sentinel-core/internal/embeddings"
	"github.com/sentinelgraph/sentinel-core/internal/platform/config"
	"github.com/sentinelgraph/sentinel-core/internal/platform/observability"
)

// Stream message field names.
const (
	fieldPostID    = "post_id"
	fieldHandle    = "handle"
	fieldTextRaw   = "text_raw"
	fieldTimestamp = "timestamp_absolute"
	fieldFollowers = "followers_count"
	fieldFollowing = "following_count"
	fieldPostCount = "post_count"
	fieldCreatedAt = "account_created_at"
)

// Skip reasons for the ingest metrics.
const (
	skipReasonMissingField = "missing_field"
	skipReasonBadTimestamp = "bad_timestamp"
	skipReasonStoreError   = "store_error"
)

// Store is the persistence surface the merger needs.
type Store interface {
	UpsertAuthor(ctx context.Context, a *domain.Author) error
	UpsertPost(ctx context.Context, p *domain.Post) error
}

// Merger reads bounded batches from the stream source, deduplicates within
// the batch (last-write-wins per post id), vectorizes surviving items in one
// call, and upserts authors and posts item by item. One bad item never
// aborts its batch.
type Merger struct {
	source   *Source
	store    Store
	embedder embeddings.Client
	redis    redis.UniversalClient
	cfg      *config.Config
	logger   *zerolog.Logger
}

// NewMerger wires a merger. The embedding client is constructed once at
// startup and passed in; the merger never creates its own.
func NewMerger(source *Source, store Store, embedder embeddings.Client, rdb redis.UniversalClient, cfg *config.Config, logger *zerolog.Logger) *Merger {
	return &Merger{
		source:   source,
		store:    store,
		embedder: embedder,
		redis:    rdb,
		cfg:      cfg,
		logger:   logger,
	}
}

type pending struct {
	post   domain.Post
	author domain.Author
	stream string
}

// ProcessBatch runs one merge iteration. It is the ProcessFunc of the
// ingestion worker loop.
func (m *Merger) ProcessBatch(ctx context.Context) error {
	items, err := m.source.Read(ctx, m.cfg.WorkerBatchSize, m.cfg.WorkerBlockTimeout)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		return nil
	}

	start := time.Now()
	defer func() {
		observability.IngestBatchDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	// Within-batch dedup: items normalize in read order, so a later
	// duplicate replaces the earlier one wholesale.
	unique := make(map[string]pending, len(items))
	order := make([]string, 0, len(items))

	for _, item := range items {
		p, ok := m.normalize(item)
		if !ok {
			continue
		}

		if _, seen := unique[p.post.ID]; !seen {
			order = append(order, p.post.ID)
		}

		unique[p.post.ID] = p
	}

	if len(unique) == 0 {
		return nil
	}

	batch := make([]pending, 0, len(unique))
	texts := make([]string, 0, len(unique))

	for _, id := range order {
		p := unique[id]
		batch = append(batch, p)
		texts = append(texts, p.post.TextClean)
	}

	// One embedding call per batch; a vectorizer outage degrades to
	// storing posts without embeddings rather than dropping the batch.
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		m.logger.Warn().Err(err).Int("batch", len(batch)).Msg("embedding batch failed, storing without vectors")

		vectors = nil
	}

	stored := 0

	for i := range batch {
		p := &batch[i]
		if vectors != nil && i < len(vectors) {
			p.post.Embedding = vectors[i]
		}

		if err := m.upsertItem(ctx, p); err != nil {
			observability.IngestItemsSkipped.WithLabelValues(skipReasonStoreError).Inc()
			m.logger.Error().Err(err).Str("post_id", p.post.ID).Msg("failed to merge post")

			continue
		}

		observability.PostsIngested.WithLabelValues(p.stream).Inc()

		stored++
	}

	m.logger.Info().Int("read", len(items)).Int("stored", stored).Msg("merged ingestion batch")

	return nil
}

func (m *Merger) normalize(item Item) (pending, bool) {
	postID := item.Fields[fieldPostID]
	handle := item.Fields[fieldHandle]

	if postID == "" || handle == "" {
		observability.IngestItemsSkipped.WithLabelValues(skipReasonMissingField).Inc()

		return pending{}, false
	}

	postedAt, err := cleaner.ParseTimestamp(item.Fields[fieldTimestamp])
	if err != nil {
		observability.IngestItemsSkipped.WithLabelValues(skipReasonBadTimestamp).Inc()
		m.logger.Debug().Str("post_id", postID).Msg("skipping post with unusable timestamp")

		return pending{}, false
	}

	cleaned := cleaner.Clean(item.Fields[fieldTextRaw])

	author := domain.Author{
		ID:             handle,
		Handle:         handle,
		FollowersCount: atoiField(item.Fields, fieldFollowers),
		FollowingCount: atoiField(item.Fields, fieldFollowing),
		PostCount:      atoiField(item.Fields, fieldPostCount),
	}

	if created, err := cleaner.ParseTimestamp(item.Fields[fieldCreatedAt]); err == nil {
		author.CreatedAt = created
	}

	return pending{
		post: domain.Post{
			ID:          postID,
			AuthorID:    handle,
			TextRaw:     cleaned.TextRaw,
			TextClean:   cleaned.TextClean,
			Fingerprint: cleaned.Fingerprint,
			Hashtags:    cleaned.Hashtags,
			Mentions:    cleaned.Mentions,
			Links:       cleaned.Links,
			PostedAt:    postedAt,
			NarrativeID: domain.NarrativeNone,
		},
		author: author,
		stream: item.Stream,
	}, true
}

func (m *Merger) upsertItem(ctx context.Context, p *pending) error {
	if err := m.store.UpsertAuthor(ctx, &p.author); err != nil {
		return err
	}

	if err := m.store.UpsertPost(ctx, &p.post); err != nil {
		return err
	}

	// Membership-add is commutative; concurrent workers never conflict.
	if err := m.redis.SAdd(ctx, m.cfg.SeenSetKey, p.post.ID).Err(); err != nil {
		m.logger.Warn().Err(err).Str("post_id", p.post.ID).Msg("failed to record seen post id")
	}

	return nil
}

func atoiField(fields map[string]string, key string) int {
	n, err := strconv.Atoi(fields[key])
	if err != nil {
		return 0
	}

	return n
}
