// Package ingest consumes post batches from the priority-tiered Redis
// streams and merges them into the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Item is one raw message read from a stream.
type Item struct {
	Stream    string
	MessageID string
	Fields    map[string]string
}

// Source reads from multiple Redis streams with per-stream cursor tracking.
// Cursors only move forward, to the last message id read from each stream,
// and advance even when individual items later fail to merge
// (at-least-once: a crash before commit redelivers from the old cursor).
type Source struct {
	client  redis.UniversalClient
	streams []string
	cursors map[string]string
}

// NewSource creates a source over the given streams, starting each cursor at
// the beginning of the stream so a restart reprocesses the backlog.
func NewSource(client redis.UniversalClient, streams []string) *Source {
	cursors := make(map[string]string, len(streams))
	for _, s := range streams {
		cursors[s] = "0-0"
	}

	return &Source{
		client:  client,
		streams: streams,
		cursors: cursors,
	}
}

// Read returns up to count items per stream, blocking up to block when all
// streams are empty. Returns no items and no error on timeout.
func (s *Source) Read(ctx context.Context, count int, block time.Duration) ([]Item, error) {
	args := &redis.XReadArgs{
		Streams: s.readArgs(),
		Count:   int64(count),
		Block:   block,
	}

	results, err := s.client.XRead(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("read streams: %w", err)
	}

	var items []Item

	for _, stream := range results {
		if len(stream.Messages) == 0 {
			continue
		}

		s.cursors[stream.Stream] = stream.Messages[len(stream.Messages)-1].ID

		for _, msg := range stream.Messages {
			fields := make(map[string]string, len(msg.Values))

			for k, v := range msg.Values {
				if str, ok := v.(string); ok {
					fields[k] = str
				}
			}

			items = append(items, Item{
				Stream:    stream.Stream,
				MessageID: msg.ID,
				Fields:    fields,
			})
		}
	}

	return items, nil
}

// Cursor returns the current cursor for one stream. Exposed for tests and
// the readiness probe.
func (s *Source) Cursor(stream string) string {
	return s.cursors[stream]
}

func (s *Source) readArgs() []string {
	args := make([]string, 0, len(s.streams)*2)
	args = append(args, s.streams...)

	for _, stream := range s.streams {
		args = append(args, s.cursors[stream])
	}

	return args
}
