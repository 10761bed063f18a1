package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
)

// Post is an alias for the domain type.
type Post = domain.Post

const postColumns = `id, author_id, text_raw, text_clean, fingerprint,
	hashtags, mentions, links, expanded_links, embedding, posted_at, narrative_id`

// UpsertPost inserts a post or replaces an existing row with the same id.
// Re-ingesting the same post id is idempotent: exactly one row remains.
func (db *DB) UpsertPost(ctx context.Context, p *Post) error {
	var embedding any
	if len(p.Embedding) > 0 {
		embedding = pgvector.NewVector(p.Embedding)
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO posts (id, author_id, text_raw, text_clean, fingerprint,
			hashtags, mentions, links, embedding, posted_at, narrative_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			author_id = EXCLUDED.author_id,
			text_raw = EXCLUDED.text_raw,
			text_clean = EXCLUDED.text_clean,
			fingerprint = EXCLUDED.fingerprint,
			hashtags = EXCLUDED.hashtags,
			mentions = EXCLUDED.mentions,
			links = EXCLUDED.links,
			embedding = EXCLUDED.embedding,
			posted_at = EXCLUDED.posted_at
	`, p.ID, p.AuthorID, p.TextRaw, p.TextClean, p.Fingerprint,
		p.Hashtags, p.Mentions, p.Links, embedding, p.PostedAt, narrativeToDB(p.NarrativeID))
	if err != nil {
		return fmt.Errorf("upsert post: %w", err)
	}

	return nil
}

// GetRecentPosts returns the most recent posts by timestamp descending.
func (db *DB) GetRecentPosts(ctx context.Context, limit int) ([]Post, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		ORDER BY posted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent posts: %w", err)
	}

	return scanPosts(rows)
}

// GetEmbeddedPosts returns posts that have an embedding, most recent first.
func (db *DB) GetEmbeddedPosts(ctx context.Context, limit int) ([]Post, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE embedding IS NOT NULL
		ORDER BY posted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get embedded posts: %w", err)
	}

	return scanPosts(rows)
}

// GetPostsByNarrative returns a narrative's posts ordered by time ascending.
func (db *DB) GetPostsByNarrative(ctx context.Context, narrativeID int) ([]Post, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE narrative_id = $1
		ORDER BY posted_at ASC
	`, narrativeID)
	if err != nil {
		return nil, fmt.Errorf("get posts by narrative: %w", err)
	}

	return scanPosts(rows)
}

// GetNarrativeIDs returns the distinct narrative ids currently assigned.
func (db *DB) GetNarrativeIDs(ctx context.Context) ([]int, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT narrative_id
		FROM posts
		WHERE narrative_id IS NOT NULL
		ORDER BY narrative_id
	`)
	if err != nil {
		return nil, fmt.Errorf("get narrative ids: %w", err)
	}
	defer rows.Close()

	var ids []int

	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan narrative id: %w", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// GetRecentFingerprints returns the newest content fingerprints for one
// author, up to limit.
func (db *DB) GetRecentFingerprints(ctx context.Context, authorID string, limit int) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT fingerprint
		FROM posts
		WHERE author_id = $1 AND fingerprint <> ''
		ORDER BY posted_at DESC
		LIMIT $2
	`, authorID, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent fingerprints: %w", err)
	}
	defer rows.Close()

	var fingerprints []string

	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}

		fingerprints = append(fingerprints, fp)
	}

	return fingerprints, rows.Err()
}

// NarrativeAssignment pairs a post with its new narrative id.
type NarrativeAssignment struct {
	PostID      string
	NarrativeID int
}

// AssignNarratives persists narrative ids from one clustering pass in a
// single batch.
func (db *DB) AssignNarratives(ctx context.Context, assignments []NarrativeAssignment) error {
	if len(assignments) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range assignments {
		batch.Queue(`UPDATE posts SET narrative_id = $1 WHERE id = $2`, a.NarrativeID, a.PostID)
	}

	results := db.Pool.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()

	for range assignments {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("assign narratives: %w", err)
		}
	}

	return nil
}

// GetPostsWithUnexpandedLinks returns posts that carry links but have not
// been through URL expansion yet.
func (db *DB) GetPostsWithUnexpandedLinks(ctx context.Context, limit int) ([]Post, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE cardinality(links) > 0 AND expanded_links IS NULL
		ORDER BY posted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get posts with unexpanded links: %w", err)
	}

	return scanPosts(rows)
}

// SetExpandedLinks stores the final URLs for one post.
func (db *DB) SetExpandedLinks(ctx context.Context, postID string, expanded []string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE posts SET expanded_links = $1 WHERE id = $2
	`, expanded, postID); err != nil {
		return fmt.Errorf("set expanded links: %w", err)
	}

	return nil
}

// CountPosts returns the total number of stored posts.
func (db *DB) CountPosts(ctx context.Context) (int, error) {
	var count int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM posts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}

	return count, nil
}

func scanPosts(rows pgx.Rows) ([]Post, error) {
	defer rows.Close()

	var posts []Post

	for rows.Next() {
		var (
			p           Post
			embedding   *pgvector.Vector
			narrativeID *int
			postedAt    time.Time
		)

		if err := rows.Scan(&p.ID, &p.AuthorID, &p.TextRaw, &p.TextClean, &p.Fingerprint,
			&p.Hashtags, &p.Mentions, &p.Links, &p.ExpandedLinks, &embedding, &postedAt, &narrativeID); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}

		p.PostedAt = postedAt
		p.NarrativeID = domain.NarrativeNone

		if narrativeID != nil {
			p.NarrativeID = *narrativeID
		}

		if embedding != nil {
			p.Embedding = embedding.Slice()
		}

		posts = append(posts, p)
	}

	return posts, rows.Err()
}

func narrativeToDB(id int) *int {
	if id == domain.NarrativeNone {
		return nil
	}

	return &id
}
