package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okian/affinity/internal/domain/model"
)

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func nullMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// AppendEvent inserts one immutable event row. The payload must already
// be validated; nothing is persisted on encode failure.
func (s *Store) AppendEvent(ctx context.Context, ev *model.InteractionEvent) error {
	payload, err := ev.Payload.Encode()
	if err != nil {
		return err
	}
	_, err = s.ExecContext(ctx, `
		INSERT INTO events (id, user_id, event_type, payload, occurred_at, source)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.UserID, string(ev.Type), string(payload), toMillis(ev.OccurredAt), string(ev.Source))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ClaimUnprocessed returns up to limit unprocessed, non-permanently-failed
// events ordered by occurrence time ascending. Ordering matters: the
// embedding EMA must see each user's events in timestamp order.
func (s *Store) ClaimUnprocessed(ctx context.Context, limit int) ([]model.InteractionEvent, error) {
	rows, err := s.QueryContext(ctx, `
		SELECT id, user_id, event_type, payload, occurred_at, source, attempts
		FROM events
		WHERE processed = 0 AND permanently_failed = 0
		ORDER BY occurred_at ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim unprocessed: %w", err)
	}
	defer rows.Close()

	var events []model.InteractionEvent
	for rows.Next() {
		var (
			ev         model.InteractionEvent
			eventType  string
			payload    string
			occurredAt int64
			source     string
		)
		if err := rows.Scan(&ev.ID, &ev.UserID, &eventType, &payload, &occurredAt, &source, &ev.Attempts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		p, err := model.DecodePayload([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		ev.Type = model.EventType(eventType)
		ev.Payload = p
		ev.OccurredAt = fromMillis(occurredAt)
		ev.Source = model.Source(source)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// MarkProcessed flips the processed flag for the given events. Processed
// events are never reselected by ClaimUnprocessed.
func (s *Store) MarkProcessed(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		UPDATE events SET processed = 1, processed_at = ?, last_error = NULL
		WHERE id = ?
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("mark processed: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, toMillis(at), id); err != nil {
			tx.Rollback()
			return fmt.Errorf("mark processed %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// RecordFailure bumps the attempt counter and stores the failure reason.
// Once attempts reach maxAttempts the event is flagged permanently failed
// and surfaced through stats; it is never silently dropped.
func (s *Store) RecordFailure(ctx context.Context, id, reason string, maxAttempts int) (permanent bool, err error) {
	res, err := s.ExecContext(ctx, `
		UPDATE events
		SET attempts = attempts + 1,
		    last_error = ?,
		    permanently_failed = CASE WHEN attempts + 1 >= ? THEN 1 ELSE 0 END
		WHERE id = ?
	`, reason, maxAttempts, id)
	if err != nil {
		return false, fmt.Errorf("record failure %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, fmt.Errorf("record failure %s: %w", id, ErrNotFound)
	}

	var flagged int
	if err := s.QueryRowContext(ctx, `SELECT permanently_failed FROM events WHERE id = ?`, id).Scan(&flagged); err != nil {
		return false, fmt.Errorf("record failure %s: %w", id, err)
	}
	return flagged == 1, nil
}

// GetEvent returns one event row including its processing bookkeeping.
func (s *Store) GetEvent(ctx context.Context, id string) (*model.InteractionEvent, error) {
	var (
		ev          model.InteractionEvent
		eventType   string
		payload     string
		occurredAt  int64
		source      string
		processed   int
		processedAt sql.NullInt64
		lastError   sql.NullString
		permanent   int
	)
	err := s.QueryRowContext(ctx, `
		SELECT id, user_id, event_type, payload, occurred_at, source,
		       processed, processed_at, attempts, last_error, permanently_failed
		FROM events WHERE id = ?
	`, id).Scan(&ev.ID, &ev.UserID, &eventType, &payload, &occurredAt, &source,
		&processed, &processedAt, &ev.Attempts, &lastError, &permanent)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}

	p, err := model.DecodePayload([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", id, err)
	}
	ev.Type = model.EventType(eventType)
	ev.Payload = p
	ev.OccurredAt = fromMillis(occurredAt)
	ev.Source = model.Source(source)
	ev.Processed = processed == 1
	if processedAt.Valid {
		ev.ProcessedAt = fromMillis(processedAt.Int64)
	}
	if lastError.Valid {
		ev.LastError = lastError.String
	}
	ev.PermanentlyFailed = permanent == 1
	return &ev, nil
}

// CountUnprocessed returns the current ledger backlog.
func (s *Store) CountUnprocessed(ctx context.Context) (int, error) {
	var n int
	err := s.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE processed = 0 AND permanently_failed = 0
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unprocessed: %w", err)
	}
	return n, nil
}

// CountPermanentlyFailed returns the number of events parked for manual
// inspection.
func (s *Store) CountPermanentlyFailed(ctx context.Context) (int, error) {
	var n int
	err := s.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE permanently_failed = 1
	`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count permanently failed: %w", err)
	}
	return n, nil
}
