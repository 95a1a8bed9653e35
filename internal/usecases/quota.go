package usecases

import (
	"context"
	"fmt"
	"time"

	"github.com/Koksbox/dream-interpreter/internal/dbx"
	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/repository"
)

const ReasonLimitReached = "limit reached"

// Decision is the outcome of a quota charge. A rejection is not an error.
type Decision struct {
	Allowed     bool      `json:"allowed"`
	Reason      string    `json:"reason,omitempty"`
	ResetsAt    *time.Time `json:"resets_at,omitempty"`
	ShowUpgrade bool      `json:"show_upgrade"`
	Remaining   int       `json:"remaining"` // -1 for premium
}

// QuotaLedger counts dreams per user per calendar day.
type QuotaLedger struct {
	store repository.Manager
	locks UserLocker
	cfg   EngineConfig
	log   logging.Logger
	now   func() time.Time
}

func NewQuotaLedger(store repository.Manager, locks UserLocker, cfg EngineConfig, log logging.Logger) *QuotaLedger {
	return &QuotaLedger{store: store, locks: locks, cfg: cfg, log: log, now: time.Now}
}

// ChargeOrReject consumes one unit of today's allowance, or rejects.
func (q *QuotaLedger) ChargeOrReject(ctx context.Context, userID int64, now time.Time) (Decision, error) {
	unlock := q.locks.Lock(userID)
	defer unlock()

	var d Decision
	err := q.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := q.store.Users(tx).LockByID(ctx, userID)
		if err != nil {
			return err
		}
		d, err = q.charge(ctx, tx, u, now)
		return err
	})
	return d, err
}

// charge runs inside a transaction that holds the user row lock and keeps u
// in sync with what it writes.
func (q *QuotaLedger) charge(ctx context.Context, tx dbx.DBTX, u *entities.User, now time.Time) (Decision, error) {
	users := q.store.Users(tx)
	today := q.cfg.day(now)

	if u.UsageDate != today {
		if err := users.SetUsage(ctx, u.ID, 0, today); err != nil {
			return Decision{}, err
		}
		u.UsageCount, u.UsageDate = 0, today
	}

	if u.HasPremium(now) {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	if u.UsageCount >= q.cfg.DailyLimit {
		q.log.Info(ctx, "daily limit reached", "user_id", u.ID, "usage_count", u.UsageCount)
		return q.rejected(now), nil
	}

	if err := users.SetUsage(ctx, u.ID, u.UsageCount+1, today); err != nil {
		return Decision{}, err
	}
	u.UsageCount++
	return Decision{Allowed: true, Remaining: q.cfg.DailyLimit - u.UsageCount}, nil
}

// Status reports today's allowance without consuming it.
func (q *QuotaLedger) Status(u *entities.User, now time.Time) Decision {
	if u.HasPremium(now) {
		return Decision{Allowed: true, Remaining: -1}
	}
	used := u.UsageCount
	if u.UsageDate != q.cfg.day(now) {
		used = 0
	}
	remaining := q.cfg.DailyLimit - used
	if remaining <= 0 {
		return q.rejected(now)
	}
	return Decision{Allowed: true, Remaining: remaining}
}

func (q *QuotaLedger) rejected(now time.Time) Decision {
	resets := q.cfg.nextMidnight(now)
	return Decision{Reason: ReasonLimitReached, ResetsAt: &resets, ShowUpgrade: true}
}

// SetPremium grants premium until the given time, or forever when until is
// nil. Payment verification happens before this is called.
func (q *QuotaLedger) SetPremium(ctx context.Context, userID int64, until *time.Time) error {
	unlock := q.locks.Lock(userID)
	defer unlock()

	if err := q.store.Users(q.store.DB()).SetPremium(ctx, userID, true, until); err != nil {
		return fmt.Errorf("set premium: %w", err)
	}
	q.log.Info(ctx, "premium granted", "user_id", userID, "until", until)
	return nil
}

// RevokePremium clears premium.
func (q *QuotaLedger) RevokePremium(ctx context.Context, userID int64) error {
	unlock := q.locks.Lock(userID)
	defer unlock()

	if err := q.store.Users(q.store.DB()).SetPremium(ctx, userID, false, nil); err != nil {
		return fmt.Errorf("revoke premium: %w", err)
	}
	q.log.Info(ctx, "premium revoked", "user_id", userID)
	return nil
}
