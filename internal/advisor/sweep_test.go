package advisor

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
)

type fakeStore struct {
	narratives map[int][]domain.Post
	authors    []domain.Author
}

func (s *fakeStore) GetNarrativeIDs(_ context.Context) ([]int, error) {
	ids := make([]int, 0, len(s.narratives))
	for id := range s.narratives {
		ids = append(ids, id)
	}

	return ids, nil
}

func (s *fakeStore) GetPostsByNarrative(_ context.Context, id int) ([]domain.Post, error) {
	return s.narratives[id], nil
}

func (s *fakeStore) GetAllAuthors(_ context.Context) ([]domain.Author, error) {
	return s.authors, nil
}

type fakeCoordination struct {
	clusters []domain.CoordinationCluster
}

func (f *fakeCoordination) Detect(_ []domain.Post) []domain.CoordinationCluster {
	return f.clusters
}

type fakeChecker struct{ bad map[string]bool }

func (f *fakeChecker) IsSuspicious(domain string) bool { return f.bad[domain] }

func TestSweepPublishesAdviceForHotNarrative(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	logger := zerolog.Nop()
	now := time.Now().UTC()

	// A burst of recent posts from bot-labeled authors, all carrying a
	// suspicious expanded link.
	var posts []domain.Post

	var authors []domain.Author

	handles := []string{"b1", "b2", "b3", "b4", "b5"}
	for i, h := range handles {
		posts = append(posts, domain.Post{
			ID:            "p" + h,
			AuthorID:      h,
			TextClean:     "guaranteed crypto double your money",
			Hashtags:      []string{"#crypto"},
			ExpandedLinks: []string{"http://evil.tk/claim"},
			PostedAt:      now.Add(-time.Duration(i) * time.Minute),
		})
		authors = append(authors, domain.Author{ID: h, BotLabel: domain.LabelBot})
	}

	store := &fakeStore{narratives: map[int][]domain.Post{3: posts}, authors: authors}
	coordination := &fakeCoordination{clusters: []domain.CoordinationCluster{
		{Type: domain.ClusterSemanticSimilarity, AvgSimilarity: 0.92},
	}}
	checker := &fakeChecker{bad: map[string]bool{"evil.tk": true}}

	sweep := NewSweep(store, New(Links{}, &logger), coordination, checker, client, "advice:reports", 1.0, &logger)

	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	msgs, err := client.XRange(context.Background(), "advice:reports", "-", "+").Result()
	if err != nil || len(msgs) != 1 {
		t.Fatalf("advice stream = %d entries (%v), want 1", len(msgs), err)
	}

	if msgs[0].Values["risk_level"] != RiskHigh {
		t.Errorf("risk_level = %v, want HIGH for a botted scam burst", msgs[0].Values["risk_level"])
	}

	if msgs[0].Values["payload"] == "" {
		t.Error("payload missing from published advice")
	}
}

func TestSweepSkipsQuietNarratives(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	logger := zerolog.Nop()
	now := time.Now().UTC()

	// Old posts: nothing in the last hour, velocity zero.
	posts := []domain.Post{
		{ID: "p1", AuthorID: "a1", TextClean: "old news", PostedAt: now.Add(-48 * time.Hour)},
		{ID: "p2", AuthorID: "a2", TextClean: "old news", PostedAt: now.Add(-47 * time.Hour)},
	}

	store := &fakeStore{narratives: map[int][]domain.Post{0: posts}}
	sweep := NewSweep(store, New(Links{}, &logger), &fakeCoordination{}, &fakeChecker{}, client, "advice:reports", 1.0, &logger)

	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if mr.Exists("advice:reports") {
		t.Error("advice published for a narrative with no recent activity")
	}
}
