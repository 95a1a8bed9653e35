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

type SessionRepository struct {
	db dbx.DBTX
	d  Dialect
}

func NewSessionRepository(db dbx.DBTX, d Dialect) *SessionRepository {
	return &SessionRepository{db: db, d: d}
}

const sessionColumns = `id, user_id, created_at, is_active`

func scanSession(row rowScanner) (*entities.Session, error) {
	var s entities.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.IsActive); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) getOne(ctx context.Context, query string, args ...any) (*entities.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, r.d.Rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*entities.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
}

// GetActive returns the newest active session of the user.
func (r *SessionRepository) GetActive(ctx context.Context, userID int64) (*entities.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND is_active = ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, userID, true)
}

func (r *SessionRepository) Create(ctx context.Context, userID int64, now time.Time) (*entities.Session, error) {
	created := now.UTC()
	var id int64
	err := r.db.QueryRowContext(ctx, r.d.Rebind(
		`INSERT INTO sessions (user_id, created_at, is_active) VALUES (?, ?, ?) RETURNING id`),
		userID, created, true).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &entities.Session{ID: id, UserID: userID, CreatedAt: created, IsActive: true}, nil
}

// DeactivateAll retires every active session of the user.
func (r *SessionRepository) DeactivateAll(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.d.Rebind(
		`UPDATE sessions SET is_active = ? WHERE user_id = ? AND is_active = ?`),
		false, userID, true)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *SessionRepository) ListRecentWithTurns(ctx context.Context, userID, excludeID int64, limit int) ([]entities.Session, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(`SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND id <> ?
		  AND EXISTS (SELECT 1 FROM messages m WHERE m.session_id = sessions.id AND m.is_user = ?)
		ORDER BY created_at DESC, id DESC LIMIT ?`), userID, excludeID, true, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []entities.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
