package narrative

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
	db "github.com/sentinelgraph/sentinel-core/internal/storage"
)

var now = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

// embeddedPosts builds n posts sharing a base direction, each nudged by a
// tiny per-post offset so the vectors are near-identical, not identical.
func embeddedPosts(prefix string, n int, direction []float32, at time.Time) []domain.Post {
	posts := make([]domain.Post, n)

	for i := range posts {
		v := make([]float32, len(direction))
		copy(v, direction)
		v[len(v)-1] += float32(i) * 0.001

		posts[i] = domain.Post{
			ID:        prefix + string(rune('a'+i)),
			AuthorID:  "author-" + prefix,
			Embedding: v,
			PostedAt:  at.Add(time.Duration(i) * time.Minute),
		}
	}

	return posts
}

func TestCluster_TwoDenseGroupsAndNoise(t *testing.T) {
	c := NewClusterer(0.30, 3, 5)

	posts := embeddedPosts("x", 6, []float32{1, 0, 0}, now.Add(-time.Hour))
	posts = append(posts, embeddedPosts("y", 5, []float32{0, 1, 0}, now.Add(-time.Hour))...)
	// Isolated outlier.
	posts = append(posts, domain.Post{ID: "lone", Embedding: []float32{0, 0, 1}, PostedAt: now})

	labels := c.Cluster(posts)

	groups := make(map[int]int)
	for _, l := range labels {
		groups[l]++
	}

	if groups[labels[0]] != 6 {
		t.Errorf("first group size = %d, want 6", groups[labels[0]])
	}

	if groups[labels[6]] != 5 {
		t.Errorf("second group size = %d, want 5", groups[labels[6]])
	}

	if labels[0] == labels[6] {
		t.Error("orthogonal groups merged into one narrative")
	}

	if labels[len(labels)-1] != noise {
		t.Errorf("outlier label = %d, want noise", labels[len(labels)-1])
	}
}

func TestCluster_SmallGroupDissolvesToNoise(t *testing.T) {
	c := NewClusterer(0.30, 3, 5)

	// Four near-identical posts: dense enough to cluster, below the
	// minimum narrative size.
	posts := embeddedPosts("x", 4, []float32{1, 0, 0}, now)

	for i, l := range c.Cluster(posts) {
		if l != noise {
			t.Errorf("labels[%d] = %d, want noise for an undersized group", i, l)
		}
	}
}

func TestStats_SpikeDetection(t *testing.T) {
	// Narrative 0: 6 posts in the last hour against a 12-hour lifetime of
	// 12 posts. Baseline 1/h, current 6 so velocity 6 >= 3 and rate > 5.
	var posts []domain.Post

	var labels []int

	for i := 0; i < 6; i++ {
		posts = append(posts, domain.Post{PostedAt: now.Add(-12 * time.Hour).Add(time.Duration(i) * 90 * time.Minute)})
		labels = append(labels, 0)
	}

	for i := 0; i < 6; i++ {
		posts = append(posts, domain.Post{PostedAt: now.Add(-time.Duration(i) * time.Minute)})
		labels = append(labels, 0)
	}

	stats := Stats(posts, labels, now, 3.0, 5)

	if len(stats) != 1 {
		t.Fatalf("Stats() = %d narratives, want 1", len(stats))
	}

	st := stats[0]
	if st.PostCount != 12 || st.CurrentRate != 6 {
		t.Errorf("counts = %d total / %d current, want 12 / 6", st.PostCount, st.CurrentRate)
	}

	if st.Velocity < 3.0 {
		t.Errorf("Velocity = %v, want >= 3.0", st.Velocity)
	}

	if !st.Spike {
		t.Error("Spike = false, want true")
	}
}

func TestStats_SteadyNarrativeDoesNotSpike(t *testing.T) {
	// One post per hour for 12 hours: current rate 1 equals baseline.
	var posts []domain.Post

	var labels []int

	for i := 0; i < 12; i++ {
		posts = append(posts, domain.Post{PostedAt: now.Add(-time.Duration(i) * time.Hour)})
		labels = append(labels, 0)
	}

	stats := Stats(posts, labels, now, 3.0, 5)

	if len(stats) != 1 || stats[0].Spike {
		t.Fatalf("stats = %+v, want one non-spiking narrative", stats)
	}
}

func TestStats_IgnoresNoise(t *testing.T) {
	posts := []domain.Post{{PostedAt: now}, {PostedAt: now}}
	labels := []int{noise, noise}

	if stats := Stats(posts, labels, now, 3.0, 5); len(stats) != 0 {
		t.Fatalf("Stats() = %d narratives for pure noise, want 0", len(stats))
	}
}

type fakeStore struct {
	posts       []domain.Post
	assignments []db.NarrativeAssignment
}

func (s *fakeStore) GetEmbeddedPosts(_ context.Context, _ int) ([]domain.Post, error) {
	return s.posts, nil
}

func (s *fakeStore) AssignNarratives(_ context.Context, assignments []db.NarrativeAssignment) error {
	s.assignments = assignments
	return nil
}

func TestSweepAssignsEveryFetchedPost(t *testing.T) {
	posts := embeddedPosts("x", 6, []float32{1, 0, 0}, now)
	posts = append(posts, domain.Post{ID: "lone", Embedding: []float32{0, 1, 0}, PostedAt: now})

	store := &fakeStore{posts: posts}
	logger := zerolog.Nop()
	sweep := NewSweep(store, NewClusterer(0.30, 3, 5), 500, 3.0, 5, &logger)

	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(store.assignments) != len(posts) {
		t.Fatalf("assigned %d posts, want %d", len(store.assignments), len(posts))
	}

	clustered := 0

	for _, a := range store.assignments {
		if a.PostID == "lone" && a.NarrativeID != domain.NarrativeNone {
			t.Errorf("outlier assigned narrative %d, want none", a.NarrativeID)
		}

		if a.NarrativeID != domain.NarrativeNone {
			clustered++
		}
	}

	if clustered != 6 {
		t.Errorf("clustered %d posts, want 6", clustered)
	}
}
