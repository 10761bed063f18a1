// Package botscore computes the per-author bot likelihood score: four
// independently normalized signals combined by fixed weights.
package botscore

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
	"github.com/sentinelgraph/sentinel-core/internal/platform/observability"
)

// Signal weights. These sum to 1.0.
const (
	weightPostingFrequency = 0.30
	weightAccountAge       = 0.25
	weightFollowerRatio    = 0.20
	weightRepeatContent    = 0.25
)

// Label thresholds on the combined score.
const (
	botThreshold        = 0.7
	suspiciousThreshold = 0.4
)

const hoursPerDay = 24

// Details is the per-signal breakdown attached to a score.
type Details struct {
	FreqScore      float64 `json:"freq_score"`
	PostsPerDay    float64 `json:"posts_per_day"`
	AgeScore       float64 `json:"age_score"`
	AccountAgeDays int     `json:"account_age_days"`
	RatioScore     float64 `json:"ratio_score"`
	FollowerRatio  float64 `json:"follower_ratio"`
	RepeatScore    float64 `json:"repeat_score"`
	RepeatRatio    float64 `json:"repeat_ratio"`
}

// Score combines the four signals for one author. The fingerprints are the
// author's most recent post fingerprints (bounded by the caller). Missing
// data degrades each signal to zero; Score never fails.
func Score(author *domain.Author, fingerprints []string, now time.Time) (float64, string, Details) {
	var details Details

	ageDays := 1
	if !author.CreatedAt.IsZero() {
		ageDays = int(now.Sub(author.CreatedAt).Hours() / hoursPerDay)
		if ageDays < 1 {
			ageDays = 1
		}
	}

	details.AccountAgeDays = ageDays

	// Posting frequency: 100 posts/day saturates the signal.
	postsPerDay := float64(author.PostCount) / float64(ageDays)
	freq := math.Min(postsPerDay/100.0, 1.0)
	details.PostsPerDay = round1(postsPerDay)
	details.FreqScore = round2(freq)

	details.AgeScore = ageScore(ageDays)

	ratio := float64(author.FollowersCount) / math.Max(float64(author.FollowingCount), 1)
	details.FollowerRatio = round2(ratio)
	details.RatioScore = ratioScore(ratio)

	repeatRatio := repeatContentRatio(fingerprints)
	repeat := math.Min(repeatRatio/0.5, 1.0)
	details.RepeatRatio = round2(repeatRatio)
	details.RepeatScore = round2(repeat)

	// The combined score weights the unrounded signals; the details carry
	// the rounded display values.
	score := freq*weightPostingFrequency +
		details.AgeScore*weightAccountAge +
		details.RatioScore*weightFollowerRatio +
		repeat*weightRepeatContent

	score = math.Round(score*1000) / 1000

	return score, labelFor(score), details
}

func ageScore(ageDays int) float64 {
	switch {
	case ageDays < 7:
		return 1.0
	case ageDays < 30:
		return 0.7
	case ageDays < 90:
		return 0.3
	default:
		return 0.0
	}
}

func ratioScore(ratio float64) float64 {
	switch {
	case ratio < 0.1 || ratio > 10:
		return 0.8
	case ratio < 0.3 || ratio > 5:
		return 0.5
	default:
		return 0.0
	}
}

// repeatContentRatio is 1 - unique/total over the recent fingerprints.
// No posts degrades to 0.
func repeatContentRatio(fingerprints []string) float64 {
	if len(fingerprints) == 0 {
		return 0
	}

	unique := make(map[string]struct{}, len(fingerprints))
	total := 0

	for _, fp := range fingerprints {
		if fp == "" {
			continue
		}

		unique[fp] = struct{}{}
		total++
	}

	if total == 0 {
		return 0
	}

	return 1.0 - float64(len(unique))/float64(total)
}

func labelFor(score float64) string {
	switch {
	case score >= botThreshold:
		return domain.LabelBot
	case score >= suspiciousThreshold:
		return domain.LabelSuspicious
	default:
		return domain.LabelOrganic
	}
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Store is the persistence surface of the scoring sweep.
type Store interface {
	GetUnlabeledAuthors(ctx context.Context, limit int) ([]domain.Author, error)
	GetRecentFingerprints(ctx context.Context, authorID string, limit int) ([]string, error)
	SetBotScore(ctx context.Context, authorID string, score float64, label string) error
}

// Sweep scores unlabeled authors in bounded batches.
type Sweep struct {
	store            Store
	batchSize        int
	recentPostsLimit int
	logger           *zerolog.Logger
}

// NewSweep creates a scoring sweep.
func NewSweep(store Store, batchSize, recentPostsLimit int, logger *zerolog.Logger) *Sweep {
	return &Sweep{
		store:            store,
		batchSize:        batchSize,
		recentPostsLimit: recentPostsLimit,
		logger:           logger,
	}
}

// Run scores one batch of unlabeled authors. Per-author failures are logged
// and skipped; the sweep retries them on the next cadence.
func (s *Sweep) Run(ctx context.Context) error {
	authors, err := s.store.GetUnlabeledAuthors(ctx, s.batchSize)
	if err != nil {
		return err
	}

	for i := range authors {
		author := &authors[i]

		fingerprints, err := s.store.GetRecentFingerprints(ctx, author.ID, s.recentPostsLimit)
		if err != nil {
			s.logger.Error().Err(err).Str("author", author.ID).Msg("failed to load fingerprints")

			continue
		}

		score, label, details := Score(author, fingerprints, time.Now().UTC())

		if err := s.store.SetBotScore(ctx, author.ID, score, label); err != nil {
			s.logger.Error().Err(err).Str("author", author.ID).Msg("failed to persist bot score")

			continue
		}

		observability.AuthorsScored.WithLabelValues(label).Inc()

		s.logger.Debug().
			Str("author", author.ID).
			Float64("score", score).
			Str("label", label).
			Interface("details", details).
			Msg("author scored")
	}

	if len(authors) > 0 {
		s.logger.Info().Int("scored", len(authors)).Msg("bot scoring sweep complete")
	}

	return nil
}
