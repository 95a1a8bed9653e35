package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Koksbox/dream-interpreter/internal/dbx"
	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/interfaces"
	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/repository"
)

const historySessionLimit = 90

var errQuotaRejected = errors.New("quota rejected")

// Reply is the outcome of one dream turn. When Quota.Allowed is false nothing
// was stored and Text is empty.
type Reply struct {
	Text      string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
	SessionID int64     `json:"session_id"`
	Stored    bool      `json:"stored"`
	Fallback  bool      `json:"fallback"`
	Quota     Decision  `json:"quota"`
}

// DreamService runs the conversation flow shared by both channels.
type DreamService struct {
	store     repository.Manager
	locks     UserLocker
	rotator   *SessionRotator
	ledger    *QuotaLedger
	assembler *ContextAssembler
	gen       interfaces.GenerationClient
	cfg       EngineConfig
	log       logging.Logger
	now       func() time.Time
}

func NewDreamService(
	store repository.Manager,
	locks UserLocker,
	gen interfaces.GenerationClient,
	cfg EngineConfig,
	log logging.Logger,
) *DreamService {
	return &DreamService{
		store:     store,
		locks:     locks,
		rotator:   NewSessionRotator(store, locks, cfg, log),
		ledger:    NewQuotaLedger(store, locks, cfg, log),
		assembler: NewContextAssembler(store, cfg),
		gen:       gen,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// SetClock replaces the clock of the service and its components.
func (s *DreamService) SetClock(now func() time.Time) {
	s.now = now
	s.rotator.now = now
	s.ledger.now = now
	s.assembler.now = now
}

func (s *DreamService) Rotator() *SessionRotator { return s.rotator }
func (s *DreamService) Ledger() *QuotaLedger     { return s.ledger }

// Interpret stores the user's dream, asks the backend for an interpretation
// and stores the reply. Quota is charged before generation, so a failed
// generation still consumes it.
func (s *DreamService) Interpret(ctx context.Context, userID int64, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, entities.ErrEmptyMessage
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	log := s.log.With("user_id", userID)
	now := s.now()

	var (
		user     *entities.User
		session  *entities.Session
		turn     *entities.Message
		decision Decision
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		u, err := s.store.Users(tx).LockByID(ctx, userID)
		if err != nil {
			return err
		}
		sess, err := s.rotator.ensure(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		decision, err = s.ledger.charge(ctx, tx, u, now)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return errQuotaRejected
		}
		m, err := s.store.Messages(tx).Create(ctx, sess.ID, true, text, now)
		if err != nil {
			return err
		}
		user, session, turn = u, sess, m
		return nil
	})
	if errors.Is(err, errQuotaRejected) {
		return &Reply{Quota: decision}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("interpret: %w", err)
	}

	replyText, fallback := s.generate(ctx, log, user, session, *turn)

	reply := &Reply{
		Text:      replyText,
		CreatedAt: s.now(),
		SessionID: session.ID,
		Fallback:  fallback,
		Quota:     decision,
	}
	// The caller may be gone by now; the reply is still kept for history.
	stored, err := s.store.Messages(s.store.DB()).Create(context.WithoutCancel(ctx), session.ID, false, replyText, reply.CreatedAt)
	if err != nil {
		log.Error(ctx, "failed to store reply", "session_id", session.ID, "error", err)
		return reply, nil
	}
	reply.CreatedAt = stored.CreatedAt
	reply.Stored = true
	return reply, nil
}

func (s *DreamService) generate(ctx context.Context, log logging.Logger, user *entities.User, session *entities.Session, turn entities.Message) (string, bool) {
	pc, err := s.assembler.BuildContext(ctx, user, session, turn)
	if err != nil {
		log.Error(ctx, "failed to build context", "session_id", session.ID, "error", err)
		return s.cfg.Apology, true
	}

	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()

	started := time.Now()
	text, err := s.gen.Generate(genCtx, pc.Request(s.cfg))
	if err == nil && strings.TrimSpace(text) == "" {
		err = entities.ErrMalformedResponse
	}
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, entities.ErrGenerationTimeout) {
			err = fmt.Errorf("%w: %v", entities.ErrGenerationTimeout, err)
		}
		log.Warn(ctx, "generation failed", "session_id", session.ID, "error", err, "elapsed", time.Since(started))
		return s.cfg.Apology, true
	}
	log.Debug(ctx, "generation done", "session_id", session.ID, "elapsed", time.Since(started), "chars", len(text))
	return strings.TrimSpace(text), false
}

// ClearChat retires the active session; its messages stay in history.
func (s *DreamService) ClearChat(ctx context.Context, userID int64) (*entities.Session, error) {
	return s.rotator.ResetActiveSession(ctx, userID)
}

// ActiveChat returns today's session with its paired turns, oldest first.
func (s *DreamService) ActiveChat(ctx context.Context, userID int64) (*entities.Session, []entities.Turn, error) {
	session, err := s.rotator.EnsureActiveSession(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.store.Messages(s.store.DB()).ListBySession(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	return session, Pair(msgs, OldestFirst), nil
}

// History returns all stored turns grouped by day, newest day first.
func (s *DreamService) History(ctx context.Context, userID int64) ([]entities.DayGroup, error) {
	db := s.store.DB()
	sessions, err := s.store.Sessions(db).ListRecentWithTurns(ctx, userID, 0, historySessionLimit)
	if err != nil {
		return nil, err
	}
	var turns []entities.Turn
	for i := len(sessions) - 1; i >= 0; i-- {
		msgs, err := s.store.Messages(db).ListBySession(ctx, sessions[i].ID)
		if err != nil {
			return nil, err
		}
		turns = append(turns, Pair(msgs, OldestFirst)...)
	}
	return GroupByDate(turns, s.cfg.Location), nil
}

// RecentDreams returns the first answered dream of each of the last n
// sessions, newest session first.
func (s *DreamService) RecentDreams(ctx context.Context, userID int64, n int) ([]entities.Turn, error) {
	db := s.store.DB()
	sessions, err := s.store.Sessions(db).ListRecentWithTurns(ctx, userID, 0, n)
	if err != nil {
		return nil, err
	}
	var dreams []entities.Turn
	for _, sess := range sessions {
		msgs, err := s.store.Messages(db).ListBySession(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		if turns := Pair(msgs, OldestFirst); len(turns) > 0 {
			dreams = append(dreams, turns[0])
		}
	}
	return dreams, nil
}

// QuotaStatus reports today's allowance for the user.
func (s *DreamService) QuotaStatus(ctx context.Context, userID int64) (Decision, error) {
	u, err := s.store.Users(s.store.DB()).GetByID(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if u == nil {
		return Decision{}, entities.ErrNotFound
	}
	return s.ledger.Status(u, s.now()), nil
}
