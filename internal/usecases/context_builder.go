package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/interfaces"
	"github.com/Koksbox/dream-interpreter/internal/repository"
)

type Excerpt struct {
	IsUser bool
	Date   string
	Text   string
}

// PromptContext is the bounded context handed to the generation backend.
type PromptContext struct {
	Preamble        string
	Personalization string
	Current         []Excerpt
	CrossDay        []Excerpt
	Guidance        string
	NewMessage      string
}

// SessionSample is the representative turn of one earlier session.
type SessionSample struct {
	Day           string
	FirstUserTurn string
}

// ContextSnapshot is the stored state the assembler reads.
type ContextSnapshot struct {
	User   entities.User
	Prior  []entities.Message // current session, oldest first
	Others []SessionSample    // newest first
}

// Assemble builds the prompt context from a snapshot. Same input, same output.
func Assemble(cfg EngineConfig, snap ContextSnapshot, newText string, now time.Time) PromptContext {
	pc := PromptContext{
		Preamble:        cfg.Preamble,
		Personalization: personalization(snap.User, now.In(cfg.Location)),
		NewMessage:      strings.TrimSpace(newText),
	}

	prior := snap.Prior
	if len(prior) > cfg.CurrentTurns {
		prior = prior[len(prior)-cfg.CurrentTurns:]
	}
	for _, m := range prior {
		pc.Current = append(pc.Current, Excerpt{
			IsUser: m.IsUser,
			Text:   truncateRunes(m.Content, cfg.CurrentTurnChars),
		})
	}

	others := snap.Others
	if len(others) > cfg.CrossDaySessions {
		others = others[:cfg.CrossDaySessions]
	}
	for _, s := range others {
		if s.FirstUserTurn == "" {
			continue
		}
		pc.CrossDay = append(pc.CrossDay, Excerpt{
			IsUser: true,
			Date:   s.Day,
			Text:   truncateRunes(s.FirstUserTurn, cfg.CrossDayChars),
		})
	}

	switch {
	case len(pc.CrossDay) > 0:
		pc.Guidance = cfg.CrossDayGuidance
	case len(pc.Current) > 0:
		pc.Guidance = cfg.SameDayGuidance
	}
	return pc
}

// System is the instruction part: preamble plus personalization.
func (pc PromptContext) System() string {
	if pc.Personalization == "" {
		return pc.Preamble
	}
	return pc.Preamble + "\n\n" + pc.Personalization
}

// Prompt is the conversational part, ending with the new message.
func (pc PromptContext) Prompt() string {
	var sections []string
	if len(pc.CrossDay) > 0 {
		var b strings.Builder
		b.WriteString("Сны из прошлых дней:")
		for _, e := range pc.CrossDay {
			fmt.Fprintf(&b, "\n[%s] %s", e.Date, e.Text)
		}
		sections = append(sections, b.String())
	}
	if len(pc.Current) > 0 {
		var b strings.Builder
		b.WriteString("Сегодняшний разговор:")
		for _, e := range pc.Current {
			speaker := "Толкователь"
			if e.IsUser {
				speaker = "Пользователь"
			}
			fmt.Fprintf(&b, "\n%s: %s", speaker, e.Text)
		}
		sections = append(sections, b.String())
	}
	if pc.Guidance != "" {
		sections = append(sections, pc.Guidance)
	}
	sections = append(sections, pc.NewMessage)
	return strings.Join(sections, "\n\n")
}

// Render is the full context as one string.
func (pc PromptContext) Render() string {
	return pc.System() + "\n\n" + pc.Prompt()
}

func (pc PromptContext) Request(cfg EngineConfig) interfaces.GenerationRequest {
	return interfaces.GenerationRequest{
		System:          pc.System(),
		Prompt:          pc.Prompt(),
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
}

func personalization(u entities.User, now time.Time) string {
	var parts []string
	if u.Name != "" {
		parts = append(parts, fmt.Sprintf("Собеседника зовут %s.", u.Name))
	}
	if u.BirthDate != nil {
		if age := AgeAt(*u.BirthDate, now); age >= 0 {
			parts = append(parts, fmt.Sprintf("Возраст: %d.", age))
		}
	}
	return strings.Join(parts, " ")
}

// AgeAt returns full years between birth and now.
func AgeAt(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}

// ContextAssembler loads a ContextSnapshot from storage and assembles it.
// It only reads.
type ContextAssembler struct {
	store repository.Manager
	cfg   EngineConfig
	now   func() time.Time
}

func NewContextAssembler(store repository.Manager, cfg EngineConfig) *ContextAssembler {
	return &ContextAssembler{store: store, cfg: cfg, now: time.Now}
}

// BuildContext assembles the context for newTurn in session. newTurn may or
// may not be persisted yet; it never appears among its own prior turns.
func (a *ContextAssembler) BuildContext(ctx context.Context, user *entities.User, session *entities.Session, newTurn entities.Message) (PromptContext, error) {
	snap, err := a.snapshot(ctx, user, session, newTurn.ID)
	if err != nil {
		return PromptContext{}, err
	}
	return Assemble(a.cfg, snap, newTurn.Content, a.now()), nil
}

func (a *ContextAssembler) snapshot(ctx context.Context, user *entities.User, session *entities.Session, newTurnID int64) (ContextSnapshot, error) {
	db := a.store.DB()
	snap := ContextSnapshot{User: *user}

	prior, err := a.store.Messages(db).LastBefore(ctx, session.ID, newTurnID, a.cfg.CurrentTurns)
	if err != nil {
		return snap, fmt.Errorf("load current turns: %w", err)
	}
	snap.Prior = prior

	others, err := a.store.Sessions(db).ListRecentWithTurns(ctx, user.ID, session.ID, a.cfg.CrossDaySessions)
	if err != nil {
		return snap, fmt.Errorf("load recent sessions: %w", err)
	}
	for _, s := range others {
		first, err := a.store.Messages(db).FirstUserTurn(ctx, s.ID)
		if err != nil {
			return snap, fmt.Errorf("load first turn of session %d: %w", s.ID, err)
		}
		sample := SessionSample{Day: s.Day(a.cfg.Location)}
		if first != nil {
			sample.FirstUserTurn = first.Content
		}
		snap.Others = append(snap.Others, sample)
	}
	return snap, nil
}
