// Package linkresolver follows shortened URLs to their final destination,
// caches results in Redis, and flags authors spreading links that resolve
// to known-bad domains or throwaway TLDs.
package linkresolver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
	"github.com/sentinelgraph/sentinel-core/internal/platform/config"
	"github.com/sentinelgraph/sentinel-core/internal/platform/observability"
	"github.com/sentinelgraph/sentinel-core/internal/suspects"
)

// Result is one resolved URL, as cached.
type Result struct {
	FinalURL   string `json:"final_url"`
	Domain     string `json:"domain"`
	StatusCode int    `json:"status,omitempty"`
	Suspicious bool   `json:"is_suspicious"`
	Error      string `json:"error,omitempty"`
}

// Resolver expands URLs with a shared HTTP client and a Redis result cache.
// Errors are cached briefly so a dead shortener does not trigger retry
// storms.
type Resolver struct {
	client      *http.Client
	redis       redis.UniversalClient
	cachePrefix string
	cacheTTL    time.Duration
	errorTTL    time.Duration
	concurrency int
	logger      *zerolog.Logger

	mu          sync.RWMutex
	badDomains  map[string]bool
	freeTLDs    []string
}

// NewResolver creates a resolver from configuration.
func NewResolver(rdb redis.UniversalClient, cfg *config.Config, logger *zerolog.Logger) *Resolver {
	bad := make(map[string]bool, len(cfg.SuspiciousDomains))
	for _, d := range cfg.SuspiciousDomains {
		bad[strings.ToLower(d)] = true
	}

	return &Resolver{
		client: &http.Client{
			Timeout: cfg.WebFetchTimeout,
		},
		redis:       rdb,
		cachePrefix: cfg.URLCachePrefix,
		cacheTTL:    cfg.URLCacheTTL,
		errorTTL:    cfg.URLErrorCacheTTL,
		concurrency: cfg.URLExpandConcurrency,
		logger:      logger,
		badDomains:  bad,
		freeTLDs:    cfg.SuspiciousTLDs,
	}
}

// Resolve expands one URL, serving from cache when possible.
func (r *Resolver) Resolve(ctx context.Context, shortURL string) (Result, error) {
	key := r.cachePrefix + shortURL

	if cached, err := r.redis.Get(ctx, key).Result(); err == nil {
		var result Result
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			observability.URLsExpanded.WithLabelValues("cached").Inc()

			return result, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return Result{}, err
	}

	result, ttl := r.expand(ctx, shortURL)

	payload, err := json.Marshal(result)
	if err != nil {
		return result, err
	}

	if err := r.redis.SetEx(ctx, key, payload, ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("url", shortURL).Msg("failed to cache expanded url")
	}

	return result, nil
}

func (r *Resolver) expand(ctx context.Context, shortURL string) (Result, time.Duration) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, shortURL, nil)
	if err != nil {
		return r.errorResult(shortURL, err), r.errorTTL
	}

	resp, err := r.client.Do(req)
	if err != nil {
		observability.URLsExpanded.WithLabelValues("error").Inc()

		return r.errorResult(shortURL, err), r.errorTTL
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	final := resp.Request.URL.String()
	domain := strings.ToLower(resp.Request.URL.Hostname())

	observability.URLsExpanded.WithLabelValues("ok").Inc()

	return Result{
		FinalURL:   final,
		Domain:     domain,
		StatusCode: resp.StatusCode,
		Suspicious: r.IsSuspicious(domain),
	}, r.cacheTTL
}

func (r *Resolver) errorResult(shortURL string, err error) Result {
	domain := ""
	if u, parseErr := url.Parse(shortURL); parseErr == nil {
		domain = strings.ToLower(u.Hostname())
	}

	return Result{
		FinalURL:   shortURL,
		Domain:     domain,
		Suspicious: r.IsSuspicious(domain),
		Error:      err.Error(),
	}
}

// IsSuspicious checks a domain against the blocklist and the free-TLD
// heuristic.
func (r *Resolver) IsSuspicious(domain string) bool {
	if domain == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.badDomains[domain] {
		return true
	}

	for _, tld := range r.freeTLDs {
		if strings.HasSuffix(domain, tld) {
			return true
		}
	}

	return false
}

// MarkSuspicious adds a domain to the blocklist at runtime.
func (r *Resolver) MarkSuspicious(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.badDomains[strings.ToLower(domain)] = true
}

// ResolveAll expands a batch of URLs with bounded concurrency, preserving
// input order. Individual failures surface as error results, never as a
// batch failure.
func (r *Resolver) ResolveAll(ctx context.Context, urls []string) ([]Result, error) {
	results := make([]Result, len(urls))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			res, err := r.Resolve(ctx, u)
			if err != nil {
				return err
			}

			results[i] = res

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// Store is the persistence surface of the expansion sweep.
type Store interface {
	GetPostsWithUnexpandedLinks(ctx context.Context, limit int) ([]domain.Post, error)
	SetExpandedLinks(ctx context.Context, postID string, expanded []string) error
}

// Sweep expands pending links and flags authors of suspicious ones.
type Sweep struct {
	store      Store
	resolver   *Resolver
	flagger    suspects.Flagger
	batchSize  int
	flagWeight float64
	logger     *zerolog.Logger
}

// NewSweep creates an expansion sweep.
func NewSweep(store Store, resolver *Resolver, flagger suspects.Flagger, batchSize int, flagWeight float64, logger *zerolog.Logger) *Sweep {
	return &Sweep{
		store:      store,
		resolver:   resolver,
		flagger:    flagger,
		batchSize:  batchSize,
		flagWeight: flagWeight,
		logger:     logger,
	}
}

// Run expands one batch of posts. Each post's links resolve together; the
// author is flagged once per post no matter how many of its links are bad.
func (s *Sweep) Run(ctx context.Context) error {
	posts, err := s.store.GetPostsWithUnexpandedLinks(ctx, s.batchSize)
	if err != nil {
		return err
	}

	for i := range posts {
		p := &posts[i]

		results, err := s.resolver.ResolveAll(ctx, p.Links)
		if err != nil {
			s.logger.Error().Err(err).Str("post_id", p.ID).Msg("failed to expand links")

			continue
		}

		expanded := make([]string, len(results))
		suspicious := false

		for j, res := range results {
			expanded[j] = res.FinalURL
			suspicious = suspicious || res.Suspicious
		}

		if err := s.store.SetExpandedLinks(ctx, p.ID, expanded); err != nil {
			s.logger.Error().Err(err).Str("post_id", p.ID).Msg("failed to persist expanded links")

			continue
		}

		if suspicious {
			if err := s.flagger.Flag(ctx, p.AuthorID, s.flagWeight, "bad_url"); err != nil {
				s.logger.Error().Err(err).Str("author", p.AuthorID).Msg("failed to flag url spreader")
			}
		}
	}

	if len(posts) > 0 {
		s.logger.Info().Int("posts", len(posts)).Msg("url expansion batch complete")
	}

	return nil
}
