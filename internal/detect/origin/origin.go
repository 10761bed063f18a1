// Package origin traces a narrative back to its earliest posts and measures
// how fast it spread. Authors of the origin seeds are prime targets for
// deeper profiling and get flagged into the suspect queue.
package origin

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
	"github.com/sentinelgraph/sentinel-core/internal/suspects"
)

// ErrNoPosts indicates the narrative has no posts to trace.
var ErrNoPosts = errors.New("narrative has no posts")

// minVelocityFloor keeps the average velocity finite for timelines shorter
// than six minutes.
const minVelocityFloor = 0.1

// Tracer builds origin reports for narratives.
type Tracer struct {
	seedWindow  time.Duration
	bucketWidth time.Duration
}

// New creates a tracer. Posts within seedWindow of the narrative's first
// post count as origin seeds; the timeline is bucketed at bucketWidth.
func New(seedWindow, bucketWidth time.Duration) *Tracer {
	return &Tracer{seedWindow: seedWindow, bucketWidth: bucketWidth}
}

// Trace builds the origin report for one narrative. Posts must be ordered
// by timestamp ascending, as stored.
func (t *Tracer) Trace(narrativeID int, posts []domain.Post) (*domain.OriginReport, error) {
	if len(posts) == 0 {
		return nil, ErrNoPosts
	}

	firstSeen := posts[0].PostedAt
	seedCutoff := firstSeen.Add(t.seedWindow)

	var seedIDs []string

	for i := range posts {
		if posts[i].PostedAt.After(seedCutoff) {
			break
		}

		seedIDs = append(seedIDs, posts[i].ID)
	}

	timeline := t.bucketize(posts)

	return &domain.OriginReport{
		NarrativeID:   narrativeID,
		FirstSeen:     firstSeen,
		OriginSeedIDs: seedIDs,
		TotalVolume:   len(posts),
		Timeline:      timeline,
		Velocity:      spreadMetrics(timeline),
	}, nil
}

// SeedAuthors returns the distinct authors of the origin seeds, in first
// appearance order.
func (t *Tracer) SeedAuthors(report *domain.OriginReport, posts []domain.Post) []string {
	seeds := make(map[string]bool, len(report.OriginSeedIDs))
	for _, id := range report.OriginSeedIDs {
		seeds[id] = true
	}

	seen := make(map[string]bool)

	var authors []string

	for i := range posts {
		p := &posts[i]
		if seeds[p.ID] && !seen[p.AuthorID] {
			seen[p.AuthorID] = true
			authors = append(authors, p.AuthorID)
		}
	}

	return authors
}

// bucketize counts posts into fixed-width intervals anchored at the first
// post. Empty intervals between occupied ones are materialized with zero
// counts so the timeline is contiguous.
func (t *Tracer) bucketize(posts []domain.Post) []domain.TimelineBucket {
	first := posts[0].PostedAt
	counts := make(map[int]int)
	maxIdx := 0

	for i := range posts {
		idx := int(posts[i].PostedAt.Sub(first) / t.bucketWidth)
		counts[idx]++

		if idx > maxIdx {
			maxIdx = idx
		}
	}

	timeline := make([]domain.TimelineBucket, maxIdx+1)
	for i := range timeline {
		timeline[i] = domain.TimelineBucket{
			Start: first.Add(time.Duration(i) * t.bucketWidth),
			Count: counts[i],
		}
	}

	return timeline
}

// spreadMetrics summarizes a timeline. Fewer than two buckets give no
// meaningful velocity, so the metrics stay nil.
func spreadMetrics(timeline []domain.TimelineBucket) *domain.SpreadMetrics {
	if len(timeline) < 2 {
		return nil
	}

	peak := timeline[0]
	total := 0

	for _, b := range timeline {
		total += b.Count

		if b.Count > peak.Count {
			peak = b
		}
	}

	duration := timeline[len(timeline)-1].Start.Sub(timeline[0].Start).Hours()

	return &domain.SpreadMetrics{
		PeakTime:           peak.Start,
		PeakVolume:         peak.Count,
		DurationHours:      math.Round(duration*100) / 100,
		AvgVelocityPerHour: math.Round(float64(total)/math.Max(duration, minVelocityFloor)*100) / 100,
	}
}

// Store is the read surface of the tracing sweep.
type Store interface {
	GetNarrativeIDs(ctx context.Context) ([]int, error)
	GetPostsByNarrative(ctx context.Context, narrativeID int) ([]domain.Post, error)
}

// Sweep traces every current narrative and flags origin seed authors.
type Sweep struct {
	store      Store
	tracer     *Tracer
	flagger    suspects.Flagger
	flagWeight float64
	logger     *zerolog.Logger

	latest []domain.OriginReport
}

// NewSweep creates a tracing sweep.
func NewSweep(store Store, tracer *Tracer, flagger suspects.Flagger, flagWeight float64, logger *zerolog.Logger) *Sweep {
	return &Sweep{
		store:      store,
		tracer:     tracer,
		flagger:    flagger,
		flagWeight: flagWeight,
		logger:     logger,
	}
}

// Run traces each narrative in turn. Per-narrative failures are logged and
// skipped; narrative ids shift between clustering passes, so a miss here is
// recovered on the next cadence.
func (s *Sweep) Run(ctx context.Context) error {
	ids, err := s.store.GetNarrativeIDs(ctx)
	if err != nil {
		return err
	}

	reports := make([]domain.OriginReport, 0, len(ids))

	for _, id := range ids {
		posts, err := s.store.GetPostsByNarrative(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Int("narrative", id).Msg("failed to load narrative posts")

			continue
		}

		report, err := s.tracer.Trace(id, posts)
		if err != nil {
			continue
		}

		for _, author := range s.tracer.SeedAuthors(report, posts) {
			if err := s.flagger.Flag(ctx, author, s.flagWeight, "origin_seed"); err != nil {
				s.logger.Error().Err(err).Str("author", author).Msg("failed to flag origin author")
			}
		}

		reports = append(reports, *report)

		s.logger.Info().
			Int("narrative", id).
			Time("first_seen", report.FirstSeen).
			Int("seeds", len(report.OriginSeedIDs)).
			Int("volume", report.TotalVolume).
			Msg("narrative origin traced")
	}

	s.latest = reports

	return nil
}

// Latest returns the reports from the most recent pass.
func (s *Sweep) Latest() []domain.OriginReport {
	return s.latest
}
