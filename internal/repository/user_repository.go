package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Koksbox/dream-interpreter/internal/dbx"
	"github.com/Koksbox/dream-interpreter/internal/entities"
)

type UserRepository struct {
	db dbx.DBTX
	d  Dialect
}

func NewUserRepository(db dbx.DBTX, d Dialect) *UserRepository {
	return &UserRepository{db: db, d: d}
}

const userColumns = `id, phone, telegram_id, name, birth_date, is_premium, premium_until, usage_count, usage_date, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*entities.User, error) {
	var (
		u            entities.User
		telegramID   sql.NullString
		name         sql.NullString
		birthDate    sql.NullTime
		premiumUntil sql.NullTime
		usageDate    sql.NullString
	)
	err := row.Scan(&u.ID, &u.Phone, &telegramID, &name, &birthDate, &u.IsPremium,
		&premiumUntil, &u.UsageCount, &usageDate, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.TelegramID = telegramID.String
	u.Name = name.String
	u.UsageDate = usageDate.String
	if birthDate.Valid {
		bd := time.Date(birthDate.Time.Year(), birthDate.Time.Month(), birthDate.Time.Day(), 0, 0, 0, 0, time.UTC)
		u.BirthDate = &bd
	}
	if premiumUntil.Valid {
		pu := premiumUntil.Time
		u.PremiumUntil = &pu
	}
	return &u, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (*entities.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, r.d.Rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *UserRepository) LockByID(ctx context.Context, id int64) (*entities.User, error) {
	u, err := r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`+r.d.ForUpdate(), id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %d: %w", id, entities.ErrNotFound)
	}
	return u, nil
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*entities.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone = ?`, phone)
}

func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID string) (*entities.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = ?`, telegramID)
}

// GetOrCreateByPhone inserts a bare user for phone unless one exists and
// reports whether the row was created by this call.
func (r *UserRepository) GetOrCreateByPhone(ctx context.Context, phone string, now time.Time) (*entities.User, bool, error) {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(
		`INSERT INTO users (phone, created_at) VALUES (?, ?) ON CONFLICT (phone) DO NOTHING`),
		phone, now.UTC())
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	u, err := r.GetByPhone(ctx, phone)
	if err != nil {
		return nil, false, err
	}
	if u == nil {
		return nil, false, fmt.Errorf("user %s vanished after upsert: %w", phone, entities.ErrNotFound)
	}
	return u, affected == 1, nil
}

// AttachTelegramID sets telegram_id only while it is still empty. A telegram
// id owned by another row surfaces as entities.ErrIdentityConflict.
func (r *UserRepository) AttachTelegramID(ctx context.Context, userID int64, telegramID string) error {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(
		`UPDATE users SET telegram_id = ? WHERE id = ? AND (telegram_id IS NULL OR telegram_id = ?)`),
		telegramID, userID, telegramID)
	if err != nil {
		if isUniqueViolation(err) {
			return entities.ErrIdentityConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return entities.ErrIdentityConflict
	}
	return nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, name string, birthDate *time.Time) error {
	var nameArg, birthArg any
	if name != "" {
		nameArg = name
	}
	if birthDate != nil {
		birthArg = time.Date(birthDate.Year(), birthDate.Month(), birthDate.Day(), 0, 0, 0, 0, time.UTC)
	}
	_, err := r.db.ExecContext(ctx, r.d.Rebind(
		`UPDATE users SET name = ?, birth_date = ? WHERE id = ?`),
		nameArg, birthArg, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
