package usecases

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/infrastructure"
	"github.com/Koksbox/dream-interpreter/internal/interfaces"
	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/repository"
)

var moscow = mustLoadLocation("Europe/Moscow")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubGen struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	reqs  []interfaces.GenerationRequest
	block bool
}

func (g *stubGen) Generate(ctx context.Context, req interfaces.GenerationRequest) (string, error) {
	g.mu.Lock()
	g.calls++
	g.reqs = append(g.reqs, req)
	text, err, block := g.text, g.err, g.block
	g.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return text, err
}

func (g *stubGen) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newTestStore(t *testing.T) *repository.SQLManager {
	t.Helper()
	db, err := infrastructure.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "dreams.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := repository.NewSQLManager(db, repository.SQLite)
	require.NoError(t, store.RunMigrations(context.Background()))
	return store
}

type engine struct {
	store    *repository.SQLManager
	locks    *infrastructure.UserLocks
	cfg      EngineConfig
	clock    *fakeClock
	gen      *stubGen
	dreams   *DreamService
	identity *IdentityResolver
	profiles *ProfileService
}

// newEngine wires the services over a fresh SQLite database. The clock starts
// at 2025-03-01 10:00 Moscow time.
func newEngine(t *testing.T) *engine {
	t.Helper()
	store := newTestStore(t)
	locks := infrastructure.NewUserLocks()
	cfg := DefaultEngineConfig(moscow)
	clock := newClock(time.Date(2025, 3, 1, 10, 0, 0, 0, moscow))
	gen := &stubGen{text: "Падение во сне часто говорит о потере опоры."}
	log := logging.Nop{}

	dreams := NewDreamService(store, locks, gen, cfg, log)
	dreams.SetClock(clock.Now)
	identity := NewIdentityResolver(store, log)
	identity.now = clock.Now

	return &engine{
		store:    store,
		locks:    locks,
		cfg:      cfg,
		clock:    clock,
		gen:      gen,
		dreams:   dreams,
		identity: identity,
		profiles: NewProfileService(store, locks, log),
	}
}

func (e *engine) newUser(t *testing.T, phone string) *entities.User {
	t.Helper()
	u, created, err := e.identity.Resolve(context.Background(), Credential{Channel: ChannelWeb, Phone: phone})
	require.NoError(t, err)
	require.True(t, created)
	return u
}

func (e *engine) user(t *testing.T, id int64) *entities.User {
	t.Helper()
	u, err := e.store.Users(e.store.DB()).GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func (e *engine) countActive(t *testing.T, userID int64) int {
	t.Helper()
	var n int
	require.NoError(t, e.store.DB().QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM sessions WHERE user_id = ? AND is_active = 1`, userID).Scan(&n))
	return n
}

func (e *engine) messages(t *testing.T, sessionID int64) []entities.Message {
	t.Helper()
	msgs, err := e.store.Messages(e.store.DB()).ListBySession(context.Background(), sessionID)
	require.NoError(t, err)
	return msgs
}
