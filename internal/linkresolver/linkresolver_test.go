package linkresolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
	"github.com/sentinelgraph/sentinel-core/internal/platform/config"
)

func testResolver(t *testing.T) (*Resolver, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	logger := zerolog.Nop()

	cfg := &config.Config{
		URLCachePrefix:       "url:",
		URLCacheTTL:          168 * time.Hour,
		URLErrorCacheTTL:     time.Hour,
		WebFetchTimeout:      2 * time.Second,
		URLExpandConcurrency: 4,
		SuspiciousDomains:    []string{"bit.ly", "tinyurl.com"},
		SuspiciousTLDs:       []string{".tk", ".ml", ".ga", ".cf", ".gq"},
	}

	return NewResolver(client, cfg, &logger), mr
}

func TestResolve_FollowsRedirects(t *testing.T) {
	var target *httptest.Server

	target = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/short" {
			http.Redirect(w, r, target.URL+"/final", http.StatusMovedPermanently)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	r, _ := testResolver(t)

	res, err := r.Resolve(context.Background(), target.URL+"/short")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if res.FinalURL != target.URL+"/final" {
		t.Errorf("FinalURL = %q, want the redirect target", res.FinalURL)
	}

	if res.StatusCode != http.StatusOK || res.Error != "" {
		t.Errorf("result = %+v, want clean 200", res)
	}
}

func TestResolve_ServesFromCache(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r, mr := testResolver(t)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, server.URL); err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}

	if _, err := r.Resolve(ctx, server.URL); err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}

	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1 (second resolve cached)", hits.Load())
	}

	// Success results carry the long TTL.
	ttl := mr.TTL("url:" + server.URL)
	if ttl != 168*time.Hour {
		t.Errorf("cache TTL = %v, want 168h", ttl)
	}
}

func TestResolve_ErrorCachedBriefly(t *testing.T) {
	r, mr := testResolver(t)

	// Unroutable port: the HEAD request fails.
	dead := "http://127.0.0.1:1/x"

	res, err := r.Resolve(context.Background(), dead)
	if err != nil {
		t.Fatalf("Resolve() error = %v, want error captured in result", err)
	}

	if res.Error == "" || res.FinalURL != dead {
		t.Errorf("result = %+v, want error state with original url", res)
	}

	if ttl := mr.TTL("url:" + dead); ttl != time.Hour {
		t.Errorf("error cache TTL = %v, want 1h", ttl)
	}
}

func TestIsSuspicious(t *testing.T) {
	r, _ := testResolver(t)

	tests := []struct {
		domain string
		want   bool
	}{
		{"bit.ly", true},
		{"evil.tk", true},
		{"phish.ga", true},
		{"example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := r.IsSuspicious(tt.domain); got != tt.want {
			t.Errorf("IsSuspicious(%q) = %v, want %v", tt.domain, got, tt.want)
		}
	}

	r.MarkSuspicious("newly-bad.com")

	if !r.IsSuspicious("newly-bad.com") {
		t.Error("runtime-added domain not treated as suspicious")
	}
}

type fakeStore struct {
	posts    []domain.Post
	expanded map[string][]string
}

func (s *fakeStore) GetPostsWithUnexpandedLinks(_ context.Context, _ int) ([]domain.Post, error) {
	return s.posts, nil
}

func (s *fakeStore) SetExpandedLinks(_ context.Context, postID string, expanded []string) error {
	if s.expanded == nil {
		s.expanded = make(map[string][]string)
	}

	s.expanded[postID] = expanded

	return nil
}

type fakeFlagger struct {
	flagged map[string]float64
}

func (f *fakeFlagger) Flag(_ context.Context, authorID string, weight float64, _ string) error {
	if f.flagged == nil {
		f.flagged = make(map[string]float64)
	}

	f.flagged[authorID] += weight

	return nil
}

func TestSweepFlagsSuspiciousSpreaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	r, _ := testResolver(t)
	r.MarkSuspicious("127.0.0.1")

	clean, _ := testResolver(t)

	store := &fakeStore{posts: []domain.Post{
		{ID: "p1", AuthorID: "spreader", Links: []string{server.URL}},
	}}
	flagger := &fakeFlagger{}
	logger := zerolog.Nop()

	sweep := NewSweep(store, r, flagger, 50, 40, &logger)
	if err := sweep.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if flagger.flagged["spreader"] != 40 {
		t.Errorf("flag weight = %v, want 40", flagger.flagged["spreader"])
	}

	if got := store.expanded["p1"]; len(got) != 1 {
		t.Errorf("expanded links = %v, want the resolved url persisted", got)
	}

	// A clean resolver over the same post flags nobody.
	store2 := &fakeStore{posts: []domain.Post{
		{ID: "p1", AuthorID: "innocent", Links: []string{server.URL}},
	}}
	flagger2 := &fakeFlagger{}

	sweep2 := NewSweep(store2, clean, flagger2, 50, 40, &logger)
	if err := sweep2.Run(context.Background()); err != nil {
		t.Fatalf("clean Run() error = %v", err)
	}

	if len(flagger2.flagged) != 0 {
		t.Errorf("flagged = %v, want nobody for clean links", flagger2.flagged)
	}
}
