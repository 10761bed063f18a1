package scheduler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Stream field names shared with the collectors.
const (
	fieldTerm    = "term"
	fieldBucket  = "bucket"
	fieldResults = "result_count"
)

// Bridge connects the in-process scheduler to external collectors over two
// Redis streams: selected terms go out as scan directives, collectors report
// result counts back on the feedback stream.
type Bridge struct {
	scheduler       *Scheduler
	redis           redis.UniversalClient
	directiveStream string
	feedbackStream  string
	cursor          string
	logger          *zerolog.Logger
}

// NewBridge creates a bridge on the given stream keys.
func NewBridge(s *Scheduler, rdb redis.UniversalClient, directiveStream, feedbackStream string, logger *zerolog.Logger) *Bridge {
	return &Bridge{
		scheduler:       s,
		redis:           rdb,
		directiveStream: directiveStream,
		feedbackStream:  feedbackStream,
		cursor:          "0-0",
		logger:          logger,
	}
}

// Dispatch selects the most urgent term and publishes it as a scan
// directive. A nil selection (no terms configured) is a no-op.
func (b *Bridge) Dispatch(ctx context.Context) error {
	term := b.scheduler.SelectNext(time.Now().UTC())
	if term == nil {
		return nil
	}

	err := b.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: b.directiveStream,
		Values: map[string]any{
			fieldTerm:   term.Name,
			fieldBucket: term.Bucket,
		},
	}).Err()
	if err != nil {
		return err
	}

	b.logger.Debug().Str("term", term.Name).Str("bucket", term.Bucket).Msg("scan directive published")

	return nil
}

// DrainFeedback consumes pending feedback entries and applies them to the
// scheduler. Malformed entries are skipped.
func (b *Bridge) DrainFeedback(ctx context.Context) error {
	streams, err := b.redis.XRead(ctx, &redis.XReadArgs{
		Streams: []string{b.feedbackStream, b.cursor},
		Block:   time.Millisecond,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return err
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			b.cursor = msg.ID

			term, _ := msg.Values[fieldTerm].(string)
			raw, _ := msg.Values[fieldResults].(string)

			count, convErr := strconv.Atoi(raw)
			if term == "" || convErr != nil {
				continue
			}

			b.scheduler.Feedback(term, count)
		}
	}

	return nil
}
