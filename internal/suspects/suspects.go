// Package suspects maintains the shared priority structure that feeds
// detection results back into collection: a Redis sorted set mapping author
// handle to cumulative risk weight. All writes are commutative increments
// (ZINCRBY), so concurrent sweeps never need mutual exclusion; weight only
// decreases when an external profiler pops entries.
package suspects

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sentinelgraph/sentinel-core/internal/platform/observability"
)

// ErrEmpty indicates the priority structure holds no entries.
var ErrEmpty = errors.New("suspect queue is empty")

// Flagger is the write side used by the detection sweeps.
type Flagger interface {
	Flag(ctx context.Context, authorID string, weight float64, source string) error
}

// Entry is one (author, cumulative weight) pair.
type Entry struct {
	AuthorID string
	Weight   float64
}

// Queue is the Redis-backed suspect priority structure.
type Queue struct {
	client redis.UniversalClient
	key    string
}

// New creates a queue on the given sorted-set key.
func New(client redis.UniversalClient, key string) *Queue {
	return &Queue{client: client, key: key}
}

// Flag atomically adds weight to the author's cumulative risk. The source
// label is only used for metrics.
func (q *Queue) Flag(ctx context.Context, authorID string, weight float64, source string) error {
	if authorID == "" || weight <= 0 {
		return nil
	}

	if err := q.client.ZIncrBy(ctx, q.key, weight, authorID).Err(); err != nil {
		return fmt.Errorf("flag suspect %s: %w", authorID, err)
	}

	observability.SuspectsFlagged.WithLabelValues(source).Inc()

	return nil
}

// PopTop removes and returns the highest-weight entry.
func (q *Queue) PopTop(ctx context.Context) (Entry, error) {
	members, err := q.client.ZPopMax(ctx, q.key, 1).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("pop suspect: %w", err)
	}

	if len(members) == 0 {
		return Entry{}, ErrEmpty
	}

	id, _ := members[0].Member.(string)

	return Entry{AuthorID: id, Weight: members[0].Score}, nil
}

// Top returns the n highest-weight entries without removing them.
func (q *Queue) Top(ctx context.Context, n int) ([]Entry, error) {
	members, err := q.client.ZRevRangeWithScores(ctx, q.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read suspects: %w", err)
	}

	entries := make([]Entry, 0, len(members))

	for _, m := range members {
		id, _ := m.Member.(string)
		entries = append(entries, Entry{AuthorID: id, Weight: m.Score})
	}

	return entries, nil
}
