package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PlaylistRepository handles playlist usage counters and likes.
type PlaylistRepository struct {
	pool *pgxpool.Pool
}

// IncrementUsed bumps used_count by one, creating the counter row if needed.
func (r *PlaylistRepository) IncrementUsed(ctx context.Context, playlistID string) error {
	query := `
		INSERT INTO playlist_usage (playlist_id, used_count, completed_count, updated_at)
		VALUES ($1, 1, 0, NOW())
		ON CONFLICT (playlist_id) DO UPDATE SET
			used_count = playlist_usage.used_count + 1,
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, playlistID); err != nil {
		return fmt.Errorf("incrementing playlist used count: %w", err)
	}
	return nil
}

// IncrementCompleted bumps completed_count by delta. The counter never
// exceeds used_count.
func (r *PlaylistRepository) IncrementCompleted(ctx context.Context, playlistID string, delta int) error {
	query := `
		INSERT INTO playlist_usage (playlist_id, used_count, completed_count, updated_at)
		VALUES ($1, 0, 0, NOW())
		ON CONFLICT (playlist_id) DO UPDATE SET
			completed_count = LEAST(playlist_usage.completed_count + $2, playlist_usage.used_count),
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, playlistID, delta); err != nil {
		return fmt.Errorf("incrementing playlist completed count: %w", err)
	}
	return nil
}

// Usage returns the counters for the given playlists. Playlists without a
// counter row are absent from the result.
func (r *PlaylistRepository) Usage(ctx context.Context, playlistIDs []string) (map[string]PlaylistUsage, error) {
	result := make(map[string]PlaylistUsage, len(playlistIDs))
	if len(playlistIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT playlist_id, used_count, completed_count, updated_at
		FROM playlist_usage
		WHERE playlist_id = ANY($1)
	`
	rows, err := r.pool.Query(ctx, query, playlistIDs)
	if err != nil {
		return nil, fmt.Errorf("querying playlist usage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u PlaylistUsage
		if err := rows.Scan(&u.PlaylistID, &u.UsedCount, &u.CompletedCount, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning playlist usage: %w", err)
		}
		result[u.PlaylistID] = u
	}
	return result, rows.Err()
}

// Like records that a user liked a playlist. Liking twice is a no-op.
func (r *PlaylistRepository) Like(ctx context.Context, username, playlistID string) error {
	query := `
		INSERT INTO playlist_likes (username, playlist_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (username, playlist_id) DO NOTHING
	`
	if _, err := r.pool.Exec(ctx, query, username, playlistID); err != nil {
		return fmt.Errorf("inserting playlist like: %w", err)
	}
	return nil
}

// Unlike removes a like. Removing a missing like is a no-op.
func (r *PlaylistRepository) Unlike(ctx context.Context, username, playlistID string) error {
	query := `DELETE FROM playlist_likes WHERE username = $1 AND playlist_id = $2`
	if _, err := r.pool.Exec(ctx, query, username, playlistID); err != nil {
		return fmt.Errorf("deleting playlist like: %w", err)
	}
	return nil
}

// LikedIDs returns the playlist IDs a user has liked, oldest first.
func (r *PlaylistRepository) LikedIDs(ctx context.Context, username string) ([]string, error) {
	query := `
		SELECT playlist_id
		FROM playlist_likes
		WHERE username = $1
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("querying playlist likes: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning playlist like: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
