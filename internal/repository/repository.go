package repository

import (
	"context"
	"time"

	"github.com/Koksbox/dream-interpreter/internal/dbx"
	"github.com/Koksbox/dream-interpreter/internal/entities"
)

// Users persists User rows. Lookups return (nil, nil) when nothing matches.
type Users interface {
	GetByID(ctx context.Context, id int64) (*entities.User, error)
	// LockByID reads the user row and holds a write lock on it until the
	// surrounding transaction ends. Returns entities.ErrNotFound when missing.
	LockByID(ctx context.Context, id int64) (*entities.User, error)
	GetByPhone(ctx context.Context, phone string) (*entities.User, error)
	GetByTelegramID(ctx context.Context, telegramID string) (*entities.User, error)
	GetOrCreateByPhone(ctx context.Context, phone string, now time.Time) (*entities.User, bool, error)
	AttachTelegramID(ctx context.Context, userID int64, telegramID string) error
	UpdateProfile(ctx context.Context, userID int64, name string, birthDate *time.Time) error
	SetUsage(ctx context.Context, userID int64, count int, date string) error
	SetPremium(ctx context.Context, userID int64, premium bool, until *time.Time) error
}

type Sessions interface {
	GetByID(ctx context.Context, id int64) (*entities.Session, error)
	GetActive(ctx context.Context, userID int64) (*entities.Session, error)
	Create(ctx context.Context, userID int64, now time.Time) (*entities.Session, error)
	DeactivateAll(ctx context.Context, userID int64) (int64, error)
	// ListRecentWithTurns returns sessions holding at least one user turn,
	// newest first, skipping excludeID.
	ListRecentWithTurns(ctx context.Context, userID, excludeID int64, limit int) ([]entities.Session, error)
}

type Messages interface {
	Create(ctx context.Context, sessionID int64, isUser bool, content string, now time.Time) (*entities.Message, error)
	ListBySession(ctx context.Context, sessionID int64) ([]entities.Message, error)
	// LastBefore returns up to limit messages with id < beforeID, oldest first.
	// beforeID <= 0 means no upper bound.
	LastBefore(ctx context.Context, sessionID, beforeID int64, limit int) ([]entities.Message, error)
	FirstUserTurn(ctx context.Context, sessionID int64) (*entities.Message, error)
}

// Manager binds repositories to a DBTX so the same code runs against the pool
// or inside a transaction.
type Manager interface {
	Users(db dbx.DBTX) Users
	Sessions(db dbx.DBTX) Sessions
	Messages(db dbx.DBTX) Messages

	DB() dbx.DBTX
	WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error
	RunMigrations(ctx context.Context) error
}
