package advisor

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
)

// CoordinationDetector is the piece of the coordination pass the advisory
// sweep reuses to score how coordinated one narrative's posting is.
type CoordinationDetector interface {
	Detect(posts []domain.Post) []domain.CoordinationCluster
}

// DomainChecker reports whether a final URL domain looks suspicious.
type DomainChecker interface {
	IsSuspicious(domain string) bool
}

// Store is the read surface of the advisory sweep.
type Store interface {
	GetNarrativeIDs(ctx context.Context) ([]int, error)
	GetPostsByNarrative(ctx context.Context, narrativeID int) ([]domain.Post, error)
	GetAllAuthors(ctx context.Context) ([]domain.Author, error)
}

// Sweep converges the detection outputs per narrative into advisory
// bundles and publishes them on a Redis stream for downstream consumers.
type Sweep struct {
	store        Store
	advisor      *Advisor
	coordination CoordinationDetector
	urls         DomainChecker
	redis        redis.UniversalClient
	adviceStream string
	minVelocity  float64
	logger       *zerolog.Logger
}

// NewSweep creates an advisory sweep. Narratives below minVelocity are not
// worth advising on and are skipped.
func NewSweep(store Store, advisor *Advisor, coordination CoordinationDetector, urls DomainChecker,
	rdb redis.UniversalClient, adviceStream string, minVelocity float64, logger *zerolog.Logger) *Sweep {
	return &Sweep{
		store:        store,
		advisor:      advisor,
		coordination: coordination,
		urls:         urls,
		redis:        rdb,
		adviceStream: adviceStream,
		minVelocity:  minVelocity,
		logger:       logger,
	}
}

// Run assembles a narrative packet for every active narrative and publishes
// advice for the ones spreading fast enough to matter.
func (s *Sweep) Run(ctx context.Context) error {
	ids, err := s.store.GetNarrativeIDs(ctx)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	authors, err := s.store.GetAllAuthors(ctx)
	if err != nil {
		return err
	}

	labels := make(map[string]string, len(authors))
	for i := range authors {
		labels[authors[i].ID] = authors[i].BotLabel
	}

	now := time.Now().UTC()

	for _, id := range ids {
		posts, err := s.store.GetPostsByNarrative(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Int("narrative", id).Msg("failed to load narrative posts")

			continue
		}

		in := s.assemble(posts, labels, now)
		if in == nil || in.Velocity < s.minVelocity {
			continue
		}

		advice := s.advisor.Advise(in)

		if err := s.publish(ctx, id, advice); err != nil {
			s.logger.Error().Err(err).Int("narrative", id).Msg("failed to publish advice")
		}
	}

	return nil
}

// assemble derives the narrative packet from its posts: bot ratio over
// distinct authors, velocity against the lifetime baseline, coordination
// from a detection pass restricted to this narrative, and the suspicious
// count over expanded links.
func (s *Sweep) assemble(posts []domain.Post, labels map[string]string, now time.Time) *NarrativeInput {
	if len(posts) == 0 {
		return nil
	}

	distinct := make(map[string]bool)
	bots := 0
	current := 0
	suspiciousURLs := 0
	hashtags := make(map[string]int)

	for i := range posts {
		p := &posts[i]

		if !distinct[p.AuthorID] {
			distinct[p.AuthorID] = true

			if labels[p.AuthorID] == domain.LabelBot {
				bots++
			}
		}

		if now.Sub(p.PostedAt) <= time.Hour {
			current++
		}

		for _, link := range p.ExpandedLinks {
			if s.urls.IsSuspicious(hostOf(link)) {
				suspiciousURLs++
			}
		}

		for _, tag := range p.Hashtags {
			hashtags[strings.ToLower(tag)]++
		}
	}

	duration := posts[len(posts)-1].PostedAt.Sub(posts[0].PostedAt).Hours()
	baseline := float64(len(posts)) / math.Max(duration, 1.0)

	coordination := 0.0

	for _, c := range s.coordination.Detect(posts) {
		score := c.AvgSimilarity
		if c.Type == domain.ClusterExactMatch {
			score = 1.0
		}

		if score > coordination {
			coordination = score
		}
	}

	keywords := topHashtags(hashtags, 5)

	title := posts[0].TextClean
	if len(keywords) > 0 {
		title = keywords[0]
	}

	return &NarrativeInput{
		Title:              title,
		Summary:            posts[0].TextClean,
		Keywords:           keywords,
		BotRatio:           float64(bots) / float64(len(distinct)),
		Velocity:           float64(current) / math.Max(baseline, 0.1),
		CoordinationScore:  coordination,
		SuspiciousURLCount: suspiciousURLs,
		PostCount:          len(posts),
	}
}

func (s *Sweep) publish(ctx context.Context, narrativeID int, advice Advice) error {
	payload, err := json.Marshal(advice)
	if err != nil {
		return err
	}

	return s.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: s.adviceStream,
		Values: map[string]any{
			"narrative_id": narrativeID,
			"report_id":    advice.Evidence.ReportID,
			"risk_level":   advice.Risk.Level,
			"payload":      payload,
		},
	}).Err()
}

func hostOf(link string) string {
	link = strings.TrimPrefix(link, "https://")
	link = strings.TrimPrefix(link, "http://")

	if i := strings.IndexAny(link, "/?#"); i >= 0 {
		link = link[:i]
	}

	return strings.ToLower(link)
}

func topHashtags(counts map[string]int, n int) []string {
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}

	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}

		return tags[i] < tags[j]
	})

	if len(tags) > n {
		tags = tags[:n]
	}

	return tags
}
