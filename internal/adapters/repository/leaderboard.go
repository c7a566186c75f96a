package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/affinity/internal/domain/model"
	"github.com/okian/affinity/internal/domain/types"
)

// RebuildLeaderboard replaces the materialized view for one (category,
// window) pair wholesale. A zero cutoff means all-time. Ranking is by
// summed effective delta descending with entity id as the deterministic
// tiebreak.
func (s *Store) RebuildLeaderboard(ctx context.Context, category model.Category, window string, cutoff, now time.Time) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rebuild leaderboard %s/%s: %w", category, window, err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM leaderboard_entries WHERE category = ? AND window = ?
	`, string(category), window); err != nil {
		tx.Rollback()
		return fmt.Errorf("rebuild leaderboard %s/%s: %w", category, window, err)
	}

	query := `
		INSERT INTO leaderboard_entries (category, window, rank, entity_id, total_delta, refreshed_at)
		SELECT ?, ?,
		       ROW_NUMBER() OVER (ORDER BY SUM(effective_delta) DESC, entity_id ASC),
		       entity_id, SUM(effective_delta), ?
		FROM mutations
		WHERE category = ?
	`
	args := []any{string(category), window, toMillis(now), string(category)}
	if !cutoff.IsZero() {
		query += " AND occurred_at >= ?"
		args = append(args, toMillis(cutoff))
	}
	query += " GROUP BY entity_id"

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("rebuild leaderboard %s/%s: %w", category, window, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rebuild leaderboard %s/%s: %w", category, window, err)
	}
	return nil
}

// Leaderboard reads the top entries of one materialized view.
func (s *Store) Leaderboard(ctx context.Context, category model.Category, window string, limit int) ([]types.LeaderboardEntry, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT rank, entity_id, total_delta
		FROM leaderboard_entries
		WHERE category = ? AND window = ?
		ORDER BY rank ASC
		LIMIT ?
	`, string(category), window, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard %s/%s: %w", category, window, err)
	}
	defer rows.Close()

	var out []types.LeaderboardEntry
	for rows.Next() {
		e := types.LeaderboardEntry{Category: string(category), Window: window}
		if err := rows.Scan(&e.Rank, &e.EntityID, &e.TotalDelta); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
