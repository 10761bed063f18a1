package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sentinelgraph/sentinel-core/internal/core/domain"
)

// Author is an alias for the domain type.
type Author = domain.Author

// UpsertAuthor inserts an author or, on conflict, fills in profile fields
// that the existing row is missing. Bot score and label are never touched
// here; they belong to the scoring sweep. Re-ingesting the same handle never
// duplicates records.
func (db *DB) UpsertAuthor(ctx context.Context, a *Author) error {
	var createdAt *time.Time
	if !a.CreatedAt.IsZero() {
		createdAt = &a.CreatedAt
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO authors (id, handle, followers_count, following_count, post_count, account_created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			handle = COALESCE(NULLIF(EXCLUDED.handle, ''), authors.handle),
			followers_count = GREATEST(authors.followers_count, EXCLUDED.followers_count),
			following_count = GREATEST(authors.following_count, EXCLUDED.following_count),
			post_count = GREATEST(authors.post_count, EXCLUDED.post_count),
			account_created_at = COALESCE(authors.account_created_at, EXCLUDED.account_created_at)
	`, a.ID, a.Handle, a.FollowersCount, a.FollowingCount, a.PostCount, createdAt)
	if err != nil {
		return fmt.Errorf("upsert author: %w", err)
	}

	return nil
}

// GetUnlabeledAuthors returns authors that have not been bot-scored yet.
func (db *DB) GetUnlabeledAuthors(ctx context.Context, limit int) ([]Author, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, handle, followers_count, following_count, post_count,
			account_created_at, bot_score, bot_label
		FROM authors
		WHERE bot_label IS NULL
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("get unlabeled authors: %w", err)
	}

	return scanAuthors(rows)
}

// GetAllAuthors returns every known author.
func (db *DB) GetAllAuthors(ctx context.Context) ([]Author, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, handle, followers_count, following_count, post_count,
			account_created_at, bot_score, bot_label
		FROM authors
	`)
	if err != nil {
		return nil, fmt.Errorf("get all authors: %w", err)
	}

	return scanAuthors(rows)
}

// GetAuthor returns one author by id, or pgx.ErrNoRows wrapped.
func (db *DB) GetAuthor(ctx context.Context, id string) (*Author, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, handle, followers_count, following_count, post_count,
			account_created_at, bot_score, bot_label
		FROM authors
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get author: %w", err)
	}

	authors, err := scanAuthors(rows)
	if err != nil {
		return nil, err
	}

	if len(authors) == 0 {
		return nil, fmt.Errorf("get author %s: %w", id, pgx.ErrNoRows)
	}

	return &authors[0], nil
}

// SetBotScore persists the bot likelihood result for one author.
func (db *DB) SetBotScore(ctx context.Context, authorID string, score float64, label string) error {
	if _, err := db.Pool.Exec(ctx, `
		UPDATE authors SET bot_score = $1, bot_label = $2 WHERE id = $3
	`, score, label, authorID); err != nil {
		return fmt.Errorf("set bot score: %w", err)
	}

	return nil
}

func scanAuthors(rows pgx.Rows) ([]Author, error) {
	defer rows.Close()

	var authors []Author

	for rows.Next() {
		var (
			a         Author
			createdAt *time.Time
			botLabel  *string
		)

		if err := rows.Scan(&a.ID, &a.Handle, &a.FollowersCount, &a.FollowingCount,
			&a.PostCount, &createdAt, &a.BotScore, &botLabel); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}

		if createdAt != nil {
			a.CreatedAt = *createdAt
		}

		if botLabel != nil {
			a.BotLabel = *botLabel
		}

		authors = append(authors, a)
	}

	return authors, rows.Err()
}
