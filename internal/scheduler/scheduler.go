// Package scheduler decides which search term to scan next. Every term
// carries a priority multiplier that spike feedback raises and quiet scans
// lower, so collection capacity drifts toward terms that keep producing.
package scheduler

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/platform/config"
)

// Multiplier adjustment bounds.
const (
	spikeBoost      = 1.5
	quietDecay      = 0.9
	driftFactor     = 0.05
	multiplierCeil  = 5.0
	multiplierFloor = 0.5
)

// Term is one scannable search term with its adaptive state.
type Term struct {
	Name         string
	Bucket       string
	BasePriority float64
	Multiplier   float64
	LastScanned  time.Time // Zero until the first scan completes
	ScanCount    int
}

// Urgency ranks the term for selection. Never-scanned terms rank above
// everything else.
func (t *Term) Urgency(now time.Time) float64 {
	if t.LastScanned.IsZero() {
		return math.Inf(1)
	}

	return now.Sub(t.LastScanned).Seconds() * t.BasePriority * t.Multiplier
}

// Scheduler owns the term set. Safe for concurrent use: the selection loop
// and the feedback path run on different goroutines.
type Scheduler struct {
	mu              sync.Mutex
	terms           []*Term
	resultThreshold int
	logger          *zerolog.Logger
}

// New builds a scheduler from the configured term buckets.
func New(buckets []config.TermBucket, resultThreshold int, logger *zerolog.Logger) *Scheduler {
	s := &Scheduler{resultThreshold: resultThreshold, logger: logger}

	for _, b := range buckets {
		for _, term := range b.Terms {
			s.terms = append(s.terms, &Term{
				Name:         term,
				Bucket:       b.Name,
				BasePriority: b.Priority,
				Multiplier:   1.0,
			})
		}
	}

	return s
}

// SelectNext returns the most urgent term and marks it scanned. Returns nil
// when no terms are configured.
func (s *Scheduler) SelectNext(now time.Time) *Term {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Term

	bestUrgency := math.Inf(-1)

	for _, t := range s.terms {
		if u := t.Urgency(now); u > bestUrgency {
			best, bestUrgency = t, u
		}
	}

	if best == nil {
		return nil
	}

	best.LastScanned = now
	best.ScanCount++

	selected := *best

	return &selected
}

// Feedback reports the result count of a completed scan. A result count at
// or above the spike threshold boosts the term; an empty scan decays it;
// anything in between drifts the multiplier back toward neutral. The term's
// last-scanned time moves to now, so staleness measures from scan
// completion rather than from dispatch.
func (s *Scheduler) Feedback(name string, resultCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.terms {
		if t.Name != name {
			continue
		}

		before := t.Multiplier
		t.LastScanned = time.Now().UTC()

		switch {
		case resultCount >= s.resultThreshold:
			t.Multiplier = math.Min(t.Multiplier*spikeBoost, multiplierCeil)
		case resultCount == 0:
			t.Multiplier = math.Max(t.Multiplier*quietDecay, multiplierFloor)
		default:
			t.Multiplier += (1.0 - t.Multiplier) * driftFactor
		}

		s.logger.Debug().
			Str("term", name).
			Int("results", resultCount).
			Float64("multiplier_before", before).
			Float64("multiplier_after", t.Multiplier).
			Msg("scan feedback applied")

		return
	}
}

// Terms returns a snapshot of the current term state.
func (s *Scheduler) Terms() []Term {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Term, len(s.terms))
	for i, t := range s.terms {
		out[i] = *t
	}

	return out
}
