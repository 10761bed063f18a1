// Package community builds the author interaction graph from recent posts
// and partitions it by modularity optimization. Partitions dominated by
// high bot-score members, or unusually dense large groups, are classified
// and their members fed back into the suspect queue.
package community

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
	"github.com/sentinelgraph/sentinel-core/internal/core/vectors"
	"github.com/sentinelgraph/sentinel-core/internal/platform/observability"
	"github.com/sentinelgraph/sentinel-core/internal/suspects"
)

// minCommunitySize is the floor below which a partition is discarded.
const minCommunitySize = 3

// Params tunes graph construction and classification.
type Params struct {
	MentionEdgeWeight   float64
	SimilarityThreshold float32
	BotScoreThreshold   float64 // Average score above which a group is a bot cluster
	CoordinatedMinSize  int
	CoordinatedRatio    float64 // Internal edges per member above which a large group is coordinated
}

// Detector partitions the author interaction graph.
type Detector struct {
	params Params
}

// New creates a detector.
func New(params Params) *Detector {
	return &Detector{params: params}
}

// BuildGraph constructs the interaction graph: one node per known author,
// plus any post author the table has not caught up with yet. Mentioning
// another known author adds a fixed-weight edge even when the target posted
// nothing in the window; authors whose mean content embeddings are nearly
// parallel get a similarity edge weighted by the cosine value.
func (d *Detector) BuildGraph(posts []domain.Post, authors []domain.Author) *Graph {
	g := NewGraph()

	for i := range authors {
		if authors[i].ID != "" {
			g.Node(authors[i].ID)
		}
	}

	byAuthor := make(map[string][][]float32)

	for i := range posts {
		p := &posts[i]
		if p.AuthorID == "" {
			continue
		}

		g.Node(p.AuthorID)

		if len(p.Embedding) > 0 {
			byAuthor[p.AuthorID] = append(byAuthor[p.AuthorID], p.Embedding)
		}
	}

	for i := range posts {
		p := &posts[i]
		for _, mention := range p.Mentions {
			if _, known := g.index[mention]; known {
				g.AddEdge(p.AuthorID, mention, d.params.MentionEdgeWeight)
			}
		}
	}

	// Content similarity edges over per-author mean embeddings.
	authorIDs := make([]string, 0, len(byAuthor))
	means := make(map[string][]float32, len(byAuthor))

	for _, id := range g.ids {
		if embs, ok := byAuthor[id]; ok {
			authorIDs = append(authorIDs, id)
			means[id] = vectors.Mean(embs)
		}
	}

	for i := 0; i < len(authorIDs); i++ {
		for j := i + 1; j < len(authorIDs); j++ {
			sim := vectors.CosineSimilarity(means[authorIDs[i]], means[authorIDs[j]])
			if sim > d.params.SimilarityThreshold {
				g.AddEdge(authorIDs[i], authorIDs[j], float64(sim))
			}
		}
	}

	return g
}

// Detect partitions the graph and classifies each surviving community.
// botScores maps author handle to scored bot likelihood; unscored authors
// count as zero.
func (d *Detector) Detect(g *Graph, botScores map[string]float64) []domain.Community {
	labels := g.Louvain()
	groups := Members(labels)

	var communities []domain.Community

	next := 0

	for _, label := range orderedLabels(labels) {
		nodes := groups[label]
		if len(nodes) < minCommunitySize {
			continue
		}

		members := make([]string, len(nodes))
		inGroup := make(map[int]bool, len(nodes))

		var scoreSum float64

		for k, n := range nodes {
			members[k] = g.ID(n)
			inGroup[n] = true
			scoreSum += botScores[g.ID(n)]
		}

		internal := 0

		for _, n := range nodes {
			for nbr := range g.weights[n] {
				if inGroup[nbr] {
					internal++
				}
			}
		}

		internal /= 2

		size := len(nodes)
		possible := size * (size - 1) / 2
		density := 0.0

		if possible > 0 {
			density = float64(internal) / float64(possible)
		}

		avgScore := scoreSum / float64(size)

		communities = append(communities, domain.Community{
			ID:            next,
			MemberIDs:     members,
			Type:          d.classify(size, internal, avgScore),
			AvgBotScore:   math.Round(avgScore*1000) / 1000,
			InternalEdges: internal,
			Density:       density,
		})
		next++
	}

	return communities
}

func (d *Detector) classify(size, internalEdges int, avgBotScore float64) string {
	if avgBotScore > d.params.BotScoreThreshold {
		return domain.CommunityBotCluster
	}

	if size > d.params.CoordinatedMinSize &&
		float64(internalEdges)/float64(size) > d.params.CoordinatedRatio {
		return domain.CommunityCoordinated
	}

	return domain.CommunityOrganic
}

// orderedLabels returns the distinct labels in first-appearance order.
func orderedLabels(labels []int) []int {
	seen := make(map[int]bool)

	var out []int

	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}

	return out
}

// Store is the read surface of the graph sweep.
type Store interface {
	GetRecentPosts(ctx context.Context, limit int) ([]domain.Post, error)
	GetAllAuthors(ctx context.Context) ([]domain.Author, error)
}

// Sweep rebuilds the graph on its cadence and flags members of suspicious
// communities.
type Sweep struct {
	store      Store
	detector   *Detector
	flagger    suspects.Flagger
	fetchLimit int
	flagWeight float64
	logger     *zerolog.Logger

	latest []domain.Community
}

// NewSweep creates a graph sweep.
func NewSweep(store Store, detector *Detector, flagger suspects.Flagger, fetchLimit int, flagWeight float64, logger *zerolog.Logger) *Sweep {
	return &Sweep{
		store:      store,
		detector:   detector,
		flagger:    flagger,
		fetchLimit: fetchLimit,
		flagWeight: flagWeight,
		logger:     logger,
	}
}

// Run executes one graph pass. Every member of a non-organic community gets
// a suspect flag; flagging failures are logged without aborting the pass.
func (s *Sweep) Run(ctx context.Context) error {
	posts, err := s.store.GetRecentPosts(ctx, s.fetchLimit)
	if err != nil {
		return err
	}

	if len(posts) == 0 {
		return nil
	}

	authors, err := s.store.GetAllAuthors(ctx)
	if err != nil {
		return err
	}

	botScores := make(map[string]float64, len(authors))
	for i := range authors {
		botScores[authors[i].ID] = authors[i].BotScore
	}

	g := s.detector.BuildGraph(posts, authors)
	communities := s.detector.Detect(g, botScores)
	s.latest = communities

	for _, c := range communities {
		observability.CommunitiesDetected.WithLabelValues(c.Type).Inc()

		if c.Type == domain.CommunityOrganic {
			continue
		}

		s.logger.Warn().
			Str("type", c.Type).
			Int("members", len(c.MemberIDs)).
			Float64("avg_bot_score", c.AvgBotScore).
			Int("internal_edges", c.InternalEdges).
			Msg("suspicious community detected")

		for _, member := range c.MemberIDs {
			if err := s.flagger.Flag(ctx, member, s.flagWeight, "community"); err != nil {
				s.logger.Error().Err(err).Str("author", member).Msg("failed to flag community member")
			}
		}
	}

	s.logger.Info().
		Int("nodes", g.Order()).
		Int("edges", g.EdgeCount()).
		Int("communities", len(communities)).
		Msg("graph pass complete")

	return nil
}

// Latest returns the communities from the most recent pass.
func (s *Sweep) Latest() []domain.Community {
	return s.latest
}
