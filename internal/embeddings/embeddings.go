// Package embeddings wraps the external vectorization service. The merger
// requests embeddings for a whole batch in one call; per-text calls would
// not sustain ingestion throughput.
package embeddings

import (
	"context"
	"hash/fnv"

	"github.com/rs/zerolog"

	"github.com/sentinelgraph/sentinel-core/internal/platform/config"
)

// Client produces fixed-length embedding vectors for post text.
type Client interface {
	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// New selects the real client or, for the "mock"/empty API key, a
// deterministic offline client.
func New(cfg *config.Config, logger *zerolog.Logger) Client {
	if cfg.EmbeddingAPIKey == "" || cfg.EmbeddingAPIKey == "mock" {
		return &mockClient{dimensions: cfg.EmbeddingDimensions}
	}

	return newOpenAI(cfg, logger)
}

type mockClient struct {
	dimensions int
}

// EmbedBatch returns deterministic pseudo-embeddings so that identical texts
// embed identically and different texts rarely collide.
func (c *mockClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for i, text := range texts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(text))
		seed := h.Sum64()

		vec := make([]float32, c.dimensions)
		for j := range vec {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[j] = float32(int64(seed>>33))/float32(1<<31) - 0.5
		}

		out[i] = vec
	}

	return out, nil
}
