// Package coordination finds groups of accounts posting identical or
// near-identical content within a tight time window. Two independent passes
// run over the same window of posts: exact fingerprint grouping and
// greedy semantic grouping over embeddings. Results are unioned.
package coordination

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
	"github.com/sentinelgraph/sentinel-core/internal/core/vectors"
	"github.com/sentinelgraph/sentinel-core/internal/platform/observability"
)

// minAuthors is the floor on distinct authors per cluster. Three posts from
// one account are repetition, not coordination.
const minAuthors = 3

// Detector holds the tuning for one detection pass.
type Detector struct {
	window              time.Duration
	similarityThreshold float32
}

// New creates a detector with the given time window and cosine similarity
// threshold for the semantic pass.
func New(window time.Duration, similarityThreshold float32) *Detector {
	return &Detector{
		window:              window,
		similarityThreshold: similarityThreshold,
	}
}

// Detect runs both passes over the given window of posts.
func (d *Detector) Detect(posts []domain.Post) []domain.CoordinationCluster {
	clusters := d.exactMatches(posts)

	return append(clusters, d.semanticMatches(posts)...)
}

func (d *Detector) exactMatches(posts []domain.Post) []domain.CoordinationCluster {
	groups := make(map[string][]*domain.Post)

	for i := range posts {
		p := &posts[i]
		if p.Fingerprint == "" || p.PostedAt.IsZero() {
			continue
		}

		groups[p.Fingerprint] = append(groups[p.Fingerprint], p)
	}

	var clusters []domain.CoordinationCluster

	// Map iteration order is random; sort fingerprints for stable output.
	fingerprints := make([]string, 0, len(groups))
	for fp := range groups {
		fingerprints = append(fingerprints, fp)
	}

	sort.Strings(fingerprints)

	for _, fp := range fingerprints {
		group := groups[fp]
		if len(group) < minAuthors {
			continue
		}

		sort.Slice(group, func(i, j int) bool {
			return group[i].PostedAt.Before(group[j].PostedAt)
		})

		span := group[len(group)-1].PostedAt.Sub(group[0].PostedAt)
		if span > d.window {
			continue
		}

		authors := distinctAuthors(group)
		if len(authors) < minAuthors {
			continue
		}

		clusters = append(clusters, domain.CoordinationCluster{
			Type:        domain.ClusterExactMatch,
			Fingerprint: fp,
			AuthorIDs:   authors,
			PostIDs:     postIDs(group),
			TimeSpan:    span,
			SampleText:  group[0].TextClean,
		})
	}

	return clusters
}

// semanticMatches greedily clusters embedded posts: for each unprocessed
// post, every post above the similarity threshold joins its candidate set;
// accepted members are not re-clustered within the pass (first-found-wins,
// order-dependent by construction).
func (d *Detector) semanticMatches(posts []domain.Post) []domain.CoordinationCluster {
	var valid []*domain.Post

	for i := range posts {
		p := &posts[i]
		if len(p.Embedding) > 0 && !p.PostedAt.IsZero() {
			valid = append(valid, p)
		}
	}

	if len(valid) < minAuthors {
		return nil
	}

	var clusters []domain.CoordinationCluster

	processed := make([]bool, len(valid))

	for i := range valid {
		if processed[i] {
			continue
		}

		var (
			members []int
			simSum  float64
		)

		for j := range valid {
			sim := vectors.CosineSimilarity(valid[i].Embedding, valid[j].Embedding)
			if sim > d.similarityThreshold {
				members = append(members, j)
				simSum += float64(sim)
			}
		}

		if len(members) < minAuthors {
			continue
		}

		group := make([]*domain.Post, len(members))
		for k, j := range members {
			group[k] = valid[j]
		}

		sort.Slice(group, func(a, b int) bool {
			return group[a].PostedAt.Before(group[b].PostedAt)
		})

		span := group[len(group)-1].PostedAt.Sub(group[0].PostedAt)
		if span > d.window {
			continue
		}

		authors := distinctAuthors(group)
		if len(authors) < minAuthors {
			continue
		}

		clusters = append(clusters, domain.CoordinationCluster{
			Type:          domain.ClusterSemanticSimilarity,
			AvgSimilarity: simSum / float64(len(members)),
			AuthorIDs:     authors,
			PostIDs:       postIDs(group),
			TimeSpan:      span,
			SampleText:    group[0].TextClean,
		})

		for _, j := range members {
			processed[j] = true
		}
	}

	return clusters
}

func distinctAuthors(group []*domain.Post) []string {
	seen := make(map[string]struct{}, len(group))

	var authors []string

	for _, p := range group {
		if _, ok := seen[p.AuthorID]; ok {
			continue
		}

		seen[p.AuthorID] = struct{}{}
		authors = append(authors, p.AuthorID)
	}

	return authors
}

func postIDs(group []*domain.Post) []string {
	ids := make([]string, len(group))
	for i, p := range group {
		ids[i] = p.ID
	}

	return ids
}

// Store is the read surface of the coordination sweep.
type Store interface {
	GetRecentPosts(ctx context.Context, limit int) ([]domain.Post, error)
}

// Sweep runs the detector over the most recent window of posts.
type Sweep struct {
	store      Store
	detector   *Detector
	fetchLimit int
	logger     *zerolog.Logger

	latest []domain.CoordinationCluster
}

// NewSweep creates a coordination sweep.
func NewSweep(store Store, detector *Detector, fetchLimit int, logger *zerolog.Logger) *Sweep {
	return &Sweep{
		store:      store,
		detector:   detector,
		fetchLimit: fetchLimit,
		logger:     logger,
	}
}

// Run executes one detection pass and retains the results for readers.
func (s *Sweep) Run(ctx context.Context) error {
	posts, err := s.store.GetRecentPosts(ctx, s.fetchLimit)
	if err != nil {
		return err
	}

	clusters := s.detector.Detect(posts)
	s.latest = clusters

	for _, c := range clusters {
		observability.CoordinationClusters.WithLabelValues(c.Type).Inc()
		s.logger.Info().
			Str("type", c.Type).
			Int("authors", len(c.AuthorIDs)).
			Dur("span", c.TimeSpan).
			Msg("coordination cluster detected")
	}

	return nil
}

// Latest returns the clusters from the most recent pass.
func (s *Sweep) Latest() []domain.CoordinationCluster {
	return s.latest
}
