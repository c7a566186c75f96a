package repository

import (
	"context"
	"fmt"
	"time"
)

// AcquireLease claims the single-row run lease for holder until now+ttl.
// It succeeds when no lease exists, the previous lease expired, or the
// same holder renews. Returns ErrLeaseHeld when another live holder owns
// it, so two coordinator runs can never claim overlapping events.
func (s *Store) AcquireLease(ctx context.Context, holder string, ttl time.Duration, now time.Time) error {
	res, err := s.ExecContext(ctx, `
		INSERT INTO run_lease (id, holder, expires_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		WHERE run_lease.expires_at < ? OR run_lease.holder = excluded.holder
	`, holder, toMillis(now.Add(ttl)), toMillis(now))
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// ReleaseLease drops the lease if holder still owns it. Releasing a lease
// lost to expiry is a no-op.
func (s *Store) ReleaseLease(ctx context.Context, holder string) error {
	if _, err := s.ExecContext(ctx, `
		DELETE FROM run_lease WHERE id = 1 AND holder = ?
	`, holder); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
