package coordination

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
)

var base = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

func post(id, author, fingerprint string, offset time.Duration) domain.Post {
	return domain.Post{
		ID:          id,
		AuthorID:    author,
		TextClean:   "jio network is down everywhere",
		Fingerprint: fingerprint,
		PostedAt:    base.Add(offset),
	}
}

func TestExactMatch_FiveAuthorsInWindow(t *testing.T) {
	d := New(10*time.Minute, 0.85)

	posts := []domain.Post{
		post("p1", "a1", "fp", 0),
		post("p2", "a2", "fp", 10*time.Second),
		post("p3", "a3", "fp", 20*time.Second),
		post("p4", "a4", "fp", 30*time.Second),
		post("p5", "a5", "fp", 40*time.Second),
	}

	clusters := d.Detect(posts)

	if len(clusters) != 1 {
		t.Fatalf("Detect() = %d clusters, want 1", len(clusters))
	}

	c := clusters[0]
	if c.Type != domain.ClusterExactMatch {
		t.Errorf("Type = %q, want EXACT_MATCH", c.Type)
	}

	if len(c.AuthorIDs) != 5 {
		t.Errorf("AuthorIDs = %v, want 5 distinct authors", c.AuthorIDs)
	}

	if c.TimeSpan != 40*time.Second {
		t.Errorf("TimeSpan = %v, want 40s", c.TimeSpan)
	}
}

func TestExactMatch_OutsideWindowYieldsNothing(t *testing.T) {
	d := New(10*time.Minute, 0.85)

	posts := []domain.Post{
		post("p1", "a1", "fp", 0),
		post("p2", "a2", "fp", 6*time.Minute),
		post("p3", "a3", "fp", 12*time.Minute),
	}

	if clusters := d.Detect(posts); len(clusters) != 0 {
		t.Fatalf("Detect() = %d clusters, want 0 when span exceeds window", len(clusters))
	}
}

func TestExactMatch_RequiresDistinctAuthors(t *testing.T) {
	d := New(10*time.Minute, 0.85)

	// Five posts but only two distinct authors.
	posts := []domain.Post{
		post("p1", "a1", "fp", 0),
		post("p2", "a1", "fp", 5*time.Second),
		post("p3", "a1", "fp", 10*time.Second),
		post("p4", "a2", "fp", 15*time.Second),
		post("p5", "a2", "fp", 20*time.Second),
	}

	if clusters := d.Detect(posts); len(clusters) != 0 {
		t.Fatalf("Detect() = %d clusters, want 0 for repetition by two accounts", len(clusters))
	}
}

func TestSemantic_NearDuplicatesCluster(t *testing.T) {
	d := New(15*time.Minute, 0.85)

	// Three nearly parallel vectors plus one orthogonal outlier. Distinct
	// fingerprints keep the exact pass out of the way.
	posts := []domain.Post{
		{ID: "p1", AuthorID: "a1", Fingerprint: "f1", Embedding: []float32{1, 0.01, 0}, PostedAt: base},
		{ID: "p2", AuthorID: "a2", Fingerprint: "f2", Embedding: []float32{1, 0.02, 0}, PostedAt: base.Add(time.Minute)},
		{ID: "p3", AuthorID: "a3", Fingerprint: "f3", Embedding: []float32{1, 0, 0.01}, PostedAt: base.Add(2 * time.Minute)},
		{ID: "p4", AuthorID: "a4", Fingerprint: "f4", Embedding: []float32{0, 1, 0}, PostedAt: base.Add(3 * time.Minute)},
	}

	clusters := d.Detect(posts)

	if len(clusters) != 1 {
		t.Fatalf("Detect() = %d clusters, want 1", len(clusters))
	}

	c := clusters[0]
	if c.Type != domain.ClusterSemanticSimilarity {
		t.Errorf("Type = %q, want SEMANTIC_SIMILARITY", c.Type)
	}

	if len(c.AuthorIDs) != 3 {
		t.Errorf("AuthorIDs = %v, want the 3 near-duplicate authors", c.AuthorIDs)
	}

	if c.AvgSimilarity <= 0.85 {
		t.Errorf("AvgSimilarity = %v, want above the threshold", c.AvgSimilarity)
	}
}

func TestSemantic_FirstFoundWins(t *testing.T) {
	d := New(15*time.Minute, 0.85)

	// Four mutually similar embedded posts form one cluster; members are
	// not re-seeded into a second overlapping one.
	var posts []domain.Post
	for i, a := range []string{"a1", "a2", "a3", "a4"} {
		posts = append(posts, domain.Post{
			ID:          "p" + a,
			AuthorID:    a,
			Fingerprint: "f" + a,
			Embedding:   []float32{1, float32(i) * 0.01, 0},
			PostedAt:    base.Add(time.Duration(i) * time.Minute),
		})
	}

	clusters := d.Detect(posts)

	if len(clusters) != 1 {
		t.Fatalf("Detect() = %d clusters, want 1 (no overlapping duplicates)", len(clusters))
	}
}

func TestDetect_SkipsPostsWithoutEmbeddings(t *testing.T) {
	d := New(15*time.Minute, 0.85)

	posts := []domain.Post{
		{ID: "p1", AuthorID: "a1", Fingerprint: "f1", PostedAt: base},
		{ID: "p2", AuthorID: "a2", Fingerprint: "f2", PostedAt: base},
	}

	if clusters := d.Detect(posts); len(clusters) != 0 {
		t.Fatalf("Detect() = %d clusters, want 0 without embeddings", len(clusters))
	}
}

type fakePostStore struct {
	posts []domain.Post
}

func (s *fakePostStore) GetRecentPosts(_ context.Context, _ int) ([]domain.Post, error) {
	return s.posts, nil
}

func TestSweepRetainsLatest(t *testing.T) {
	store := &fakePostStore{posts: []domain.Post{
		post("p1", "a1", "fp", 0),
		post("p2", "a2", "fp", 10*time.Second),
		post("p3", "a3", "fp", 20*time.Second),
	}}
	logger := zerolog.Nop()
	sweep := NewSweep(store, New(10*time.Minute, 0.85), 500, &logger)

	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := sweep.Latest(); len(got) != 1 {
		t.Fatalf("Latest() = %d clusters, want 1", len(got))
	}
}
