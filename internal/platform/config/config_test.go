package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPostgresDSN = "postgres://localhost/test"

func TestLoad_MissingRequired(t *testing.T) {
	os.Unsetenv("POSTGRES_DSN")

	_, err := Load()
	require.Error(t, err, "Load() should fail without POSTGRES_DSN")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", testPostgresDSN)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.AppEnv)
	assert.Equal(t, 100, cfg.WorkerBatchSize)
	assert.Equal(t, float32(0.85), cfg.SimilarityThreshold)
	assert.Equal(t, "mock", cfg.EmbeddingAPIKey)
}

func TestParseSearchTerms(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantBuckets int
		wantTerms   int
	}{
		{
			name:        "two buckets",
			raw:         "Entity: Jio=5:jio|jio down|jio scam;Risk: High=10:riot|fraud",
			wantBuckets: 2,
			wantTerms:   3,
		},
		{name: "empty", raw: "", wantBuckets: 0},
		{name: "malformed segment skipped", raw: "nocolon=5;ok=2:term", wantBuckets: 1, wantTerms: 1},
		{name: "non-numeric priority skipped", raw: "b=abc:term", wantBuckets: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseSearchTerms(tt.raw)
			require.Len(t, got, tt.wantBuckets)

			if tt.wantBuckets > 0 {
				assert.Len(t, got[0].Terms, tt.wantTerms)
			}
		})
	}
}
