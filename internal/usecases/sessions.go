package usecases

import (
	"context"
	"time"

	"github.com/Koksbox/dream-interpreter/internal/dbx"
	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/repository"
)

// SessionRotator keeps at most one active session per user and rolls it
// over when the calendar day changes.
type SessionRotator struct {
	store repository.Manager
	locks UserLocker
	cfg   EngineConfig
	log   logging.Logger
	now   func() time.Time
}

func NewSessionRotator(store repository.Manager, locks UserLocker, cfg EngineConfig, log logging.Logger) *SessionRotator {
	return &SessionRotator{store: store, locks: locks, cfg: cfg, log: log, now: time.Now}
}

// EnsureActiveSession returns today's active session, creating it when the
// user has none or the active one belongs to an earlier day.
func (r *SessionRotator) EnsureActiveSession(ctx context.Context, userID int64) (*entities.Session, error) {
	unlock := r.locks.Lock(userID)
	defer unlock()

	var session *entities.Session
	err := r.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := r.store.Users(tx).LockByID(ctx, userID); err != nil {
			return err
		}
		s, err := r.ensure(ctx, tx, userID, r.now())
		session = s
		return err
	})
	return session, err
}

// ResetActiveSession retires the current session unconditionally and opens a
// new one. Nothing is deleted.
func (r *SessionRotator) ResetActiveSession(ctx context.Context, userID int64) (*entities.Session, error) {
	unlock := r.locks.Lock(userID)
	defer unlock()

	var session *entities.Session
	err := r.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := r.store.Users(tx).LockByID(ctx, userID); err != nil {
			return err
		}
		sessions := r.store.Sessions(tx)
		if _, err := sessions.DeactivateAll(ctx, userID); err != nil {
			return err
		}
		s, err := sessions.Create(ctx, userID, r.now())
		session = s
		return err
	})
	if err != nil {
		return nil, err
	}
	r.log.Info(ctx, "session reset", "user_id", userID, "session_id", session.ID)
	return session, nil
}

// ensure runs inside a transaction that already holds the user row lock.
func (r *SessionRotator) ensure(ctx context.Context, tx dbx.DBTX, userID int64, now time.Time) (*entities.Session, error) {
	sessions := r.store.Sessions(tx)
	active, err := sessions.GetActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active != nil && active.Day(r.cfg.Location) == r.cfg.day(now) {
		return active, nil
	}
	if active != nil {
		if _, err := sessions.DeactivateAll(ctx, userID); err != nil {
			return nil, err
		}
	}
	created, err := sessions.Create(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	r.log.Debug(ctx, "session opened", "user_id", userID, "session_id", created.ID, "rotated", active != nil)
	return created, nil
}
