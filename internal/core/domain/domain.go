// Package domain holds the shared records exchanged between the ingestion
// merger, the detection sweeps, and the advisory engine. All records are
// plain structs; cross-references are by stable string id, never pointers.
package domain

import "time"

// NarrativeNone is the sentinel narrative id for posts that have not been
// assigned to any narrative (or were labeled noise by the clusterer).
const NarrativeNone = -1

// Post is a single ingested social-media post. Immutable after ingestion
// except for Embedding (set once), NarrativeID (set per clustering pass)
// and ExpandedLinks (set once by the URL expansion sweep).
type Post struct {
	ID            string    // Platform-unique post identifier
	AuthorID      string    // Stable author handle
	TextRaw       string    // Original text, whitespace-collapsed
	TextClean     string    // Normalized text (ASCII, cleaned)
	Fingerprint   string    // Hash of normalized text for exact-duplicate grouping
	Hashtags      []string  // Extracted #tags
	Mentions      []string  // Extracted @handles (with the @ stripped)
	Links         []string  // Extracted URLs
	ExpandedLinks []string  // Final URLs after redirect expansion
	Embedding     []float32 // Semantic embedding, nil until vectorized
	PostedAt      time.Time // Absolute post timestamp
	NarrativeID   int       // Assigned narrative, NarrativeNone if unclustered
}

// Author bot labels.
const (
	LabelOrganic    = "ORGANIC"
	LabelSuspicious = "SUSPICIOUS"
	LabelBot        = "BOT"
)

// Author is an account observed posting. Upserted idempotently by ID.
type Author struct {
	ID             string // Stable handle
	Handle         string
	FollowersCount int
	FollowingCount int
	PostCount      int
	CreatedAt      time.Time // Account creation time, zero if unknown
	BotScore       float64
	BotLabel       string // One of the Label* constants, empty until scored
}

// Coordination cluster types.
const (
	ClusterExactMatch         = "EXACT_MATCH"
	ClusterSemanticSimilarity = "SEMANTIC_SIMILARITY"
)

// CoordinationCluster is a group of at least three distinct authors posting
// identical or near-identical content within a short time window.
type CoordinationCluster struct {
	Type          string // ClusterExactMatch or ClusterSemanticSimilarity
	Fingerprint   string // Set for exact-match clusters
	AvgSimilarity float64
	AuthorIDs     []string
	PostIDs       []string
	TimeSpan      time.Duration
	SampleText    string
}

// Community classifications.
const (
	CommunityOrganic     = "ORGANIC"
	CommunityBotCluster  = "BOT_CLUSTER"
	CommunityCoordinated = "COORDINATED_GROUP"
)

// Community is a partition of the author interaction graph.
type Community struct {
	ID            int
	MemberIDs     []string
	Type          string // One of the Community* constants
	AvgBotScore   float64
	InternalEdges int
	Density       float64
}

// TimelineBucket is one fixed-width interval of a spread timeline.
type TimelineBucket struct {
	Start time.Time
	Count int
}

// SpreadMetrics summarizes narrative velocity. Only populated when the
// timeline has at least two buckets.
type SpreadMetrics struct {
	PeakTime           time.Time
	PeakVolume         int
	DurationHours      float64
	AvgVelocityPerHour float64
}

// OriginReport traces a narrative back to its earliest posts.
type OriginReport struct {
	NarrativeID   int
	FirstSeen     time.Time
	OriginSeedIDs []string // Posts within 30 minutes of the first post, time-ordered
	TotalVolume   int
	Timeline      []TimelineBucket
	Velocity      *SpreadMetrics // nil when fewer than two timeline buckets exist
}

// NarrativeStats is the per-narrative output of a clustering pass.
type NarrativeStats struct {
	NarrativeID  int
	PostCount    int
	CurrentRate  int     // Posts in the last hour
	BaselineRate float64 // Posts per hour over the observed duration
	Velocity     float64 // CurrentRate / max(BaselineRate, 0.1)
	Spike        bool
}
