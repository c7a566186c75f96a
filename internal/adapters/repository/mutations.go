package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okian/affinity/internal/domain/model"
	"github.com/okian/affinity/internal/domain/types"
)

// InsertMutations appends mutation rows for one event. INSERT OR IGNORE
// against the (event_id, category) uniqueness constraint makes redelivery
// a no-op: the returned count only includes rows actually written.
func (s *Store) InsertMutations(ctx context.Context, rows []model.DomainMutation) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert mutations: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO mutations (
			event_id, entity_id, user_id, category,
			base_delta, weight, decay, effective_delta,
			occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("insert mutations: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, m := range rows {
		res, err := stmt.ExecContext(ctx,
			m.EventID, m.EntityID, m.UserID, string(m.Category),
			m.BaseDelta, m.Weight, m.Decay, m.EffectiveDelta,
			toMillis(m.OccurredAt), toMillis(m.CreatedAt))
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("insert mutation %s/%s: %w", m.EventID, m.Category, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert mutations: %w", err)
	}
	return inserted, nil
}

// CountMutations returns the number of rows for one (event, category)
// pair; used to verify idempotency.
func (s *Store) CountMutations(ctx context.Context, eventID string, category model.Category) (int, error) {
	var n int
	err := s.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM mutations WHERE event_id = ? AND category = ?
	`, eventID, string(category)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count mutations: %w", err)
	}
	return n, nil
}

// MutationBreakdown aggregates an entity's mutations per category inside
// a trailing window. windowDays <= 0 means unrestricted.
func (s *Store) MutationBreakdown(ctx context.Context, entityID string, category model.Category, windowDays int, now time.Time) ([]types.BreakdownRow, error) {
	query := `
		SELECT category, COUNT(*), COALESCE(SUM(effective_delta), 0)
		FROM mutations
		WHERE entity_id = ?
	`
	args := []any{entityID}
	if category != "" {
		query += " AND category = ?"
		args = append(args, string(category))
	}
	if windowDays > 0 {
		query += " AND occurred_at >= ?"
		args = append(args, toMillis(now.AddDate(0, 0, -windowDays)))
	}
	query += " GROUP BY category ORDER BY category ASC"

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mutation breakdown %s: %w", entityID, err)
	}
	defer rows.Close()

	var out []types.BreakdownRow
	for rows.Next() {
		var r types.BreakdownRow
		if err := rows.Scan(&r.Category, &r.Count, &r.TotalDelta); err != nil {
			return nil, fmt.Errorf("scan breakdown: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecomputeStrength re-derives every (category) total for one entity as a
// pure fold over the mutation ledger and upserts the results. Stale
// strength rows for categories that no longer have mutations are removed
// so a from-scratch rebuild always converges to the same state.
func (s *Store) RecomputeStrength(ctx context.Context, entityID string) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("recompute strength %s: %w", entityID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM domain_strength WHERE entity_id = ?`, entityID); err != nil {
		tx.Rollback()
		return fmt.Errorf("recompute strength %s: %w", entityID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO domain_strength (entity_id, category, total_delta, mutation_count, last_mutation_at)
		SELECT entity_id, category, SUM(effective_delta), COUNT(*), MAX(occurred_at)
		FROM mutations
		WHERE entity_id = ?
		GROUP BY entity_id, category
	`, entityID); err != nil {
		tx.Rollback()
		return fmt.Errorf("recompute strength %s: %w", entityID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recompute strength %s: %w", entityID, err)
	}
	return nil
}

// GetStrength returns the running total for one (entity, category).
func (s *Store) GetStrength(ctx context.Context, entityID string, category model.Category) (*model.DomainStrength, error) {
	var (
		st             model.DomainStrength
		category2      string
		lastMutationAt sql.NullInt64
	)
	err := s.QueryRowContext(ctx, `
		SELECT entity_id, category, total_delta, mutation_count, last_mutation_at
		FROM domain_strength WHERE entity_id = ? AND category = ?
	`, entityID, string(category)).Scan(&st.EntityID, &category2, &st.TotalDelta, &st.MutationCount, &lastMutationAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("strength %s/%s: %w", entityID, category, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get strength %s/%s: %w", entityID, category, err)
	}
	st.Category = model.Category(category2)
	if lastMutationAt.Valid {
		st.LastMutationAt = fromMillis(lastMutationAt.Int64)
	}
	return &st, nil
}
