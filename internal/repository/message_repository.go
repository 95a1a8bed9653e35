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

type MessageRepository struct {
	db dbx.DBTX
	d  Dialect
}

func NewMessageRepository(db dbx.DBTX, d Dialect) *MessageRepository {
	return &MessageRepository{db: db, d: d}
}

const messageColumns = `id, session_id, is_user, content, created_at`

func scanMessage(row rowScanner) (*entities.Message, error) {
	var m entities.Message
	if err := row.Scan(&m.ID, &m.SessionID, &m.IsUser, &m.Content, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepository) Create(ctx context.Context, sessionID int64, isUser bool, content string, now time.Time) (*entities.Message, error) {
	created := now.UTC()
	var id int64
	err := r.db.QueryRowContext(ctx, r.d.Rebind(
		`INSERT INTO messages (session_id, is_user, content, created_at) VALUES (?, ?, ?, ?) RETURNING id`),
		sessionID, isUser, content, created).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &entities.Message{ID: id, SessionID: sessionID, IsUser: isUser, Content: content, CreatedAt: created}, nil
}

func (r *MessageRepository) ListBySession(ctx context.Context, sessionID int64) ([]entities.Message, error) {
	return r.list(ctx, `SELECT `+messageColumns+` FROM messages
		WHERE session_id = ? ORDER BY created_at, id`, sessionID)
}

func (r *MessageRepository) LastBefore(ctx context.Context, sessionID, beforeID int64, limit int) ([]entities.Message, error) {
	var (
		msgs []entities.Message
		err  error
	)
	if beforeID > 0 {
		msgs, err = r.list(ctx, `SELECT `+messageColumns+` FROM messages
			WHERE session_id = ? AND id < ? ORDER BY created_at DESC, id DESC LIMIT ?`, sessionID, beforeID, limit)
	} else {
		msgs, err = r.list(ctx, `SELECT `+messageColumns+` FROM messages
			WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, sessionID, limit)
	}
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepository) FirstUserTurn(ctx context.Context, sessionID int64) (*entities.Message, error) {
	m, err := scanMessage(r.db.QueryRowContext(ctx, r.d.Rebind(`SELECT `+messageColumns+` FROM messages
		WHERE session_id = ? AND is_user = ? ORDER BY created_at, id LIMIT 1`), sessionID, true))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]entities.Message, error) {
	rows, err := r.db.QueryContext(ctx, r.d.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []entities.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}
