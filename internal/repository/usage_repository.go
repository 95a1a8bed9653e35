package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Koksbox/dream-interpreter/internal/entities"
)

// SetUsage overwrites the daily counter of a user. Callers hold the user row
// lock, so a plain write is enough.
func (r *UserRepository) SetUsage(ctx context.Context, userID int64, count int, date string) error {
	_, err := r.db.ExecContext(ctx, r.d.Rebind(
		`UPDATE users SET usage_count = ?, usage_date = ? WHERE id = ?`),
		count, date, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// SetPremium toggles premium. A nil until means no expiry.
func (r *UserRepository) SetPremium(ctx context.Context, userID int64, premium bool, until *time.Time) error {
	var untilArg any
	if until != nil {
		untilArg = until.UTC()
	}
	res, err := r.db.ExecContext(ctx, r.d.Rebind(
		`UPDATE users SET is_premium = ?, premium_until = ? WHERE id = ?`),
		premium, untilArg, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", userID, entities.ErrNotFound)
	}
	return nil
}
