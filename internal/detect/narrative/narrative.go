// Package narrative groups embedded posts into narratives by density
// clustering over cosine distance, persists the assignments, and watches
// each narrative's posting rate for spikes.
package narrative

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
	"github.com/sentinelgraph/sentinel-core/internal/core/vectors"
	"github.com/sentinelgraph/sentinel-core/internal/platform/observability"
	db "github.com/sentinelgraph/sentinel-core/internal/storage"
)

const (
	// baselineFloor keeps the velocity ratio finite for young narratives.
	baselineFloor = 0.1

	noise      = -1
	unassigned = -2
)

// Clusterer runs one density clustering pass over embedded posts.
type Clusterer struct {
	epsilon        float32 // Max cosine distance between neighbors
	minSamples     int     // Neighborhood size that makes a post a core point
	minClusterSize int     // Clusters below this dissolve into noise
}

// NewClusterer creates a clusterer with the given density parameters.
func NewClusterer(epsilon float32, minSamples, minClusterSize int) *Clusterer {
	return &Clusterer{
		epsilon:        epsilon,
		minSamples:     minSamples,
		minClusterSize: minClusterSize,
	}
}

// Cluster assigns a narrative id to every post. Posts without a dense enough
// neighborhood get domain.NarrativeNone. Ids are contiguous from zero and
// only meaningful within one pass.
func (c *Clusterer) Cluster(posts []domain.Post) []int {
	n := len(posts)
	labels := make([]int, n)

	for i := range labels {
		labels[i] = unassigned
	}

	next := 0

	for i := 0; i < n; i++ {
		if labels[i] != unassigned {
			continue
		}

		neighbors := c.regionQuery(posts, i)
		if len(neighbors) < c.minSamples {
			labels[i] = noise

			continue
		}

		labels[i] = next
		c.expand(posts, labels, neighbors, next)
		next++
	}

	c.dissolveSmall(labels, next)

	return labels
}

// expand grows one cluster by flood fill from the seed's neighborhood.
// Border points join the cluster but do not extend the frontier.
func (c *Clusterer) expand(posts []domain.Post, labels, frontier []int, cluster int) {
	for len(frontier) > 0 {
		j := frontier[0]
		frontier = frontier[1:]

		if labels[j] == noise {
			labels[j] = cluster
		}

		if labels[j] != unassigned {
			continue
		}

		labels[j] = cluster

		neighbors := c.regionQuery(posts, j)
		if len(neighbors) >= c.minSamples {
			frontier = append(frontier, neighbors...)
		}
	}
}

func (c *Clusterer) regionQuery(posts []domain.Post, i int) []int {
	var neighbors []int

	for j := range posts {
		if vectors.CosineDistance(posts[i].Embedding, posts[j].Embedding) <= c.epsilon {
			neighbors = append(neighbors, j)
		}
	}

	return neighbors
}

// dissolveSmall relabels members of undersized clusters as noise.
func (c *Clusterer) dissolveSmall(labels []int, clusters int) {
	sizes := make([]int, clusters)

	for _, l := range labels {
		if l >= 0 {
			sizes[l]++
		}
	}

	for i, l := range labels {
		if l >= 0 && sizes[l] < c.minClusterSize {
			labels[i] = noise
		}
	}
}

// Stats computes the per-narrative rate summary for one clustering pass.
// The velocity compares the last hour's volume against the narrative's
// lifetime hourly baseline.
func Stats(posts []domain.Post, labels []int, now time.Time, velocityThreshold float64, minRate int) []domain.NarrativeStats {
	type window struct {
		count   int
		current int
		first   time.Time
		last    time.Time
	}

	windows := make(map[int]*window)

	for i, l := range labels {
		if l < 0 {
			continue
		}

		w, ok := windows[l]
		if !ok {
			w = &window{first: posts[i].PostedAt, last: posts[i].PostedAt}
			windows[l] = w
		}

		w.count++

		if posts[i].PostedAt.Before(w.first) {
			w.first = posts[i].PostedAt
		}

		if posts[i].PostedAt.After(w.last) {
			w.last = posts[i].PostedAt
		}

		if now.Sub(posts[i].PostedAt) <= time.Hour {
			w.current++
		}
	}

	ids := make([]int, 0, len(windows))
	for id := range windows {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	stats := make([]domain.NarrativeStats, 0, len(ids))

	for _, id := range ids {
		w := windows[id]

		durationHours := w.last.Sub(w.first).Hours()
		baseline := float64(w.count) / math.Max(durationHours, 1.0)
		velocity := float64(w.current) / math.Max(baseline, baselineFloor)

		stats = append(stats, domain.NarrativeStats{
			NarrativeID:  id,
			PostCount:    w.count,
			CurrentRate:  w.current,
			BaselineRate: baseline,
			Velocity:     velocity,
			Spike:        velocity >= velocityThreshold && w.current > minRate,
		})
	}

	return stats
}

// Store is the persistence surface of the clustering sweep.
type Store interface {
	GetEmbeddedPosts(ctx context.Context, limit int) ([]domain.Post, error)
	AssignNarratives(ctx context.Context, assignments []db.NarrativeAssignment) error
}

// Sweep reclusters the recent embedded posts and persists the assignments.
type Sweep struct {
	store             Store
	clusterer         *Clusterer
	fetchLimit        int
	velocityThreshold float64
	minRate           int
	logger            *zerolog.Logger

	latest []domain.NarrativeStats
}

// NewSweep creates a clustering sweep.
func NewSweep(store Store, clusterer *Clusterer, fetchLimit int, velocityThreshold float64, minRate int, logger *zerolog.Logger) *Sweep {
	return &Sweep{
		store:             store,
		clusterer:         clusterer,
		fetchLimit:        fetchLimit,
		velocityThreshold: velocityThreshold,
		minRate:           minRate,
		logger:            logger,
	}
}

// Run executes one clustering pass. Assignments from the previous pass are
// overwritten wholesale; narrative ids are not stable across passes.
func (s *Sweep) Run(ctx context.Context) error {
	posts, err := s.store.GetEmbeddedPosts(ctx, s.fetchLimit)
	if err != nil {
		return err
	}

	if len(posts) == 0 {
		return nil
	}

	labels := s.clusterer.Cluster(posts)

	assignments := make([]db.NarrativeAssignment, len(posts))
	for i := range posts {
		id := labels[i]
		if id < 0 {
			id = domain.NarrativeNone
		}

		assignments[i] = db.NarrativeAssignment{PostID: posts[i].ID, NarrativeID: id}
	}

	if err := s.store.AssignNarratives(ctx, assignments); err != nil {
		return err
	}

	stats := Stats(posts, labels, time.Now().UTC(), s.velocityThreshold, s.minRate)
	s.latest = stats

	observability.NarrativesDetected.Set(float64(len(stats)))

	for _, st := range stats {
		if !st.Spike {
			continue
		}

		observability.NarrativeSpikes.Inc()
		s.logger.Warn().
			Int("narrative", st.NarrativeID).
			Int("current_rate", st.CurrentRate).
			Float64("velocity", st.Velocity).
			Msg("narrative spike detected")
	}

	s.logger.Info().Int("posts", len(posts)).Int("narratives", len(stats)).Msg("clustering pass complete")

	return nil
}

// Latest returns the stats from the most recent pass.
func (s *Sweep) Latest() []domain.NarrativeStats {
	return s.latest
}
