package repository

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/logging"
)

func setupSQLite(t *testing.T) *SQLManager {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "repo.db") + "?_pragma=foreign_keys(1)&_time_format=sqlite"
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	m := NewSQLManager(db, SQLite)
	require.NoError(t, m.RunMigrations(context.Background()))
	return m
}

func TestSQLite_MigrationsLogThroughLogger(t *testing.T) {
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	var buf bytes.Buffer
	m := NewSQLManager(db, SQLite).WithLogger(logging.NewJSON(&buf, "debug"))
	require.NoError(t, m.RunMigrations(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `"component":"goose"`)
	assert.Contains(t, out, "00001_init.sql")
	assert.Contains(t, out, `"level":"INFO"`)
}

func TestSQLite_UserLifecycle(t *testing.T) {
	m := setupSQLite(t)
	ctx := context.Background()
	users := m.Users(m.DB())
	now := time.Date(2025, 3, 1, 7, 30, 0, 0, time.UTC)

	u, created, err := users.GetOrCreateByPhone(ctx, "+79990001122", now)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "+79990001122", u.Phone)
	assert.Equal(t, 0, u.UsageCount)
	assert.True(t, u.CreatedAt.Equal(now))

	again, created, err := users.GetOrCreateByPhone(ctx, "+79990001122", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)

	birth := time.Date(1990, 5, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, users.UpdateProfile(ctx, u.ID, "Анна", &birth))
	require.NoError(t, users.SetUsage(ctx, u.ID, 3, "2025-03-01"))
	until := now.Add(30 * 24 * time.Hour)
	require.NoError(t, users.SetPremium(ctx, u.ID, true, &until))

	got, err := users.LockByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Анна", got.Name)
	require.NotNil(t, got.BirthDate)
	assert.Equal(t, "1990-05-20", got.BirthDate.Format("2006-01-02"))
	assert.Equal(t, 3, got.UsageCount)
	assert.Equal(t, "2025-03-01", got.UsageDate)
	assert.True(t, got.IsPremium)
	require.NotNil(t, got.PremiumUntil)
	assert.True(t, got.PremiumUntil.Equal(until))

	require.NoError(t, users.UpdateProfile(ctx, u.ID, "", nil))
	got, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Name)
	assert.Nil(t, got.BirthDate)
}

func TestSQLite_AttachTelegramID_Conflicts(t *testing.T) {
	m := setupSQLite(t)
	ctx := context.Background()
	users := m.Users(m.DB())
	now := time.Date(2025, 3, 1, 7, 30, 0, 0, time.UTC)

	a, _, err := users.GetOrCreateByPhone(ctx, "+70000000001", now)
	require.NoError(t, err)
	b, _, err := users.GetOrCreateByPhone(ctx, "+70000000002", now)
	require.NoError(t, err)

	require.NoError(t, users.AttachTelegramID(ctx, a.ID, "100"))
	require.NoError(t, users.AttachTelegramID(ctx, a.ID, "100"), "re-attaching the same id is a no-op")

	err = users.AttachTelegramID(ctx, b.ID, "100")
	assert.True(t, errors.Is(err, entities.ErrIdentityConflict), "got %v", err)

	err = users.AttachTelegramID(ctx, a.ID, "200")
	assert.True(t, errors.Is(err, entities.ErrIdentityConflict), "existing link must not be replaced, got %v", err)

	byTG, err := users.GetByTelegramID(ctx, "100")
	require.NoError(t, err)
	require.NotNil(t, byTG)
	assert.Equal(t, a.ID, byTG.ID)
}

func TestSQLite_SessionsAndMessages(t *testing.T) {
	m := setupSQLite(t)
	ctx := context.Background()
	db := m.DB()
	now := time.Date(2025, 3, 1, 7, 30, 0, 0, time.UTC)

	u, _, err := m.Users(db).GetOrCreateByPhone(ctx, "+70000000001", now)
	require.NoError(t, err)

	sessions := m.Sessions(db)
	s1, err := sessions.Create(ctx, u.ID, now)
	require.NoError(t, err)

	_, err = sessions.Create(ctx, u.ID, now)
	require.Error(t, err, "a second active session must be rejected by the partial unique index")

	n, err := sessions.DeactivateAll(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	s2, err := sessions.Create(ctx, u.ID, now.Add(24*time.Hour))
	require.NoError(t, err)

	active, err := sessions.GetActive(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, s2.ID, active.ID)

	recent, err := sessions.ListRecentWithTurns(ctx, u.ID, s2.ID, 4)
	require.NoError(t, err)
	assert.Empty(t, recent, "sessions without a user turn are not listed")

	msgs := m.Messages(db)
	m1, err := msgs.Create(ctx, s2.ID, true, "снился лес", now)
	require.NoError(t, err)
	_, err = msgs.Create(ctx, s2.ID, false, "лес это", now)
	require.NoError(t, err)
	m3, err := msgs.Create(ctx, s2.ID, true, "ещё сон", now)
	require.NoError(t, err)

	all, err := msgs.ListBySession(ctx, s2.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, m1.ID, all[0].ID)
	assert.True(t, all[0].IsUser)
	assert.False(t, all[1].IsUser)

	prior, err := msgs.LastBefore(ctx, s2.ID, m3.ID, 4)
	require.NoError(t, err)
	require.Len(t, prior, 2)
	assert.Equal(t, m1.ID, prior[0].ID)

	first, err := msgs.FirstUserTurn(ctx, s2.ID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "снился лес", first.Content)

	none, err := msgs.FirstUserTurn(ctx, s1.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = msgs.Create(ctx, s1.ID, true, "старый сон", now)
	require.NoError(t, err)
	recent, err = sessions.ListRecentWithTurns(ctx, u.ID, s2.ID, 4)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, s1.ID, recent[0].ID)
	assert.False(t, recent[0].IsActive)

	recent, err = sessions.ListRecentWithTurns(ctx, u.ID, 0, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, s2.ID, recent[0].ID)
}
