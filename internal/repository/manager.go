package repository

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/Koksbox/dream-interpreter/internal/dbx"
	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/repository/migrations"
)

type SQLManager struct {
	db      *sql.DB
	dialect Dialect
	log     logging.Logger
}

func NewSQLManager(db *sql.DB, d Dialect) *SQLManager {
	return &SQLManager{db: db, dialect: d, log: logging.Nop{}}
}

// WithLogger sets the logger migration output goes to.
func (m *SQLManager) WithLogger(log logging.Logger) *SQLManager {
	m.log = log
	return m
}

func (m *SQLManager) Users(db dbx.DBTX) Users {
	return NewUserRepository(db, m.dialect)
}

func (m *SQLManager) Sessions(db dbx.DBTX) Sessions {
	return NewSessionRepository(db, m.dialect)
}

func (m *SQLManager) Messages(db dbx.DBTX) Messages {
	return NewMessageRepository(db, m.dialect)
}

func (m *SQLManager) DB() dbx.DBTX {
	return m.db
}

func (m *SQLManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, m.db, nil, fn)
}

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// RunMigrations applies the embedded schema for the manager's dialect.
func (m *SQLManager) RunMigrations(ctx context.Context) error {
	sub, err := fs.Sub(migrations.FS, m.dialect.Name)
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", m.dialect.Name, err)
	}
	goose.SetBaseFS(sub)
	goose.SetLogger(gooseLogger{ctx: ctx, log: m.log.With("component", "goose")})
	if err := goose.SetDialect(m.dialect.GooseDialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUp(ctx, m.db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// gooseLogger feeds goose's printf-style output into the structured logger.
type gooseLogger struct {
	ctx context.Context
	log logging.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Info(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}
