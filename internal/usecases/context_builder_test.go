package usecases

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Koksbox/dream-interpreter/internal/entities"
)

func TestAssemble_EmptyHistory(t *testing.T) {
	cfg := DefaultEngineConfig(moscow)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, moscow)

	pc := Assemble(cfg, ContextSnapshot{}, "  мне снилось, что я падаю  ", now)

	assert.Equal(t, cfg.Preamble, pc.Preamble)
	assert.Empty(t, pc.Personalization)
	assert.Empty(t, pc.Current)
	assert.Empty(t, pc.CrossDay)
	assert.Empty(t, pc.Guidance)
	assert.Equal(t, "мне снилось, что я падаю", pc.NewMessage)
	assert.Equal(t, cfg.Preamble, pc.System())
	assert.Equal(t, pc.NewMessage, pc.Prompt())
}

func TestAssemble_CapsCurrentTurns(t *testing.T) {
	cfg := DefaultEngineConfig(moscow)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, moscow)

	var prior []entities.Message
	for i := 0; i < 7; i++ {
		prior = append(prior, entities.Message{IsUser: i%2 == 0, Content: string(rune('a' + i))})
	}
	prior[6].Content = strings.Repeat("я", 500)

	pc := Assemble(cfg, ContextSnapshot{Prior: prior}, "новый сон", now)

	require.Len(t, pc.Current, cfg.CurrentTurns)
	assert.Equal(t, "d", pc.Current[0].Text, "keeps the most recent turns")
	assert.Equal(t, cfg.CurrentTurnChars, len([]rune(pc.Current[3].Text)))
	assert.Equal(t, cfg.SameDayGuidance, pc.Guidance)
}

func TestAssemble_CrossDayTakesPrecedence(t *testing.T) {
	cfg := DefaultEngineConfig(moscow)
	now := time.Date(2025, 3, 6, 10, 0, 0, 0, moscow)

	others := []SessionSample{
		{Day: "2025-03-05", FirstUserTurn: strings.Repeat("ж", 400)},
		{Day: "2025-03-04", FirstUserTurn: ""},
		{Day: "2025-03-03", FirstUserTurn: "вода"},
		{Day: "2025-03-02", FirstUserTurn: "лес"},
		{Day: "2025-03-01", FirstUserTurn: "горы"},
		{Day: "2025-02-28", FirstUserTurn: "слишком старый"},
	}
	snap := ContextSnapshot{
		Prior:  []entities.Message{{IsUser: true, Content: "утром"}, {Content: "ответ"}},
		Others: others,
	}

	pc := Assemble(cfg, snap, "опять вода", now)

	require.Len(t, pc.CrossDay, 3, "sessions without a user turn are skipped")
	assert.Equal(t, "2025-03-05", pc.CrossDay[0].Date)
	assert.Equal(t, cfg.CrossDayChars, len([]rune(pc.CrossDay[0].Text)))
	assert.Equal(t, "горы", pc.CrossDay[2].Text)
	assert.Equal(t, cfg.CrossDayGuidance, pc.Guidance)

	prompt := pc.Prompt()
	assert.NotContains(t, prompt, "слишком старый")
	assert.True(t, strings.HasSuffix(prompt, "опять вода"))
	assert.Less(t, strings.Index(prompt, "Сны из прошлых дней"), strings.Index(prompt, "Сегодняшний разговор"))
}

func TestAssemble_Deterministic(t *testing.T) {
	cfg := DefaultEngineConfig(moscow)
	now := time.Date(2025, 3, 6, 10, 0, 0, 0, moscow)
	birth := time.Date(1990, 5, 20, 0, 0, 0, 0, time.UTC)
	snap := ContextSnapshot{
		User:   entities.User{Name: "Аня", BirthDate: &birth},
		Prior:  []entities.Message{{IsUser: true, Content: "x"}, {Content: "y"}},
		Others: []SessionSample{{Day: "2025-03-05", FirstUserTurn: "z"}},
	}

	first := Assemble(cfg, snap, "сон", now).Render()
	second := Assemble(cfg, snap, "сон", now).Render()
	assert.Equal(t, first, second)
	assert.Contains(t, first, "Собеседника зовут Аня.")
	assert.Contains(t, first, "Возраст: 34.")
}

func TestAgeAt(t *testing.T) {
	birth := time.Date(2000, 3, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 24, AgeAt(birth, time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 25, AgeAt(birth, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 25, AgeAt(birth, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, AgeAt(birth, birth))
}

func TestBuildContext_ExcludesNewTurnWhetherStoredOrNot(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	u := e.newUser(t, "+79990000010")

	_, err := e.dreams.Interpret(ctx, u.ID, "первый сон")
	require.NoError(t, err)

	session, err := e.dreams.Rotator().EnsureActiveSession(ctx, u.ID)
	require.NoError(t, err)

	pending := entities.Message{SessionID: session.ID, IsUser: true, Content: "второй сон"}
	before, err := e.dreams.assembler.BuildContext(ctx, u, session, pending)
	require.NoError(t, err)

	stored, err := e.store.Messages(e.store.DB()).Create(ctx, session.ID, true, pending.Content, e.clock.Now())
	require.NoError(t, err)
	after, err := e.dreams.assembler.BuildContext(ctx, u, session, *stored)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	require.Len(t, after.Current, 2)
	assert.Equal(t, "первый сон", after.Current[0].Text)
	assert.False(t, after.Current[1].IsUser)
}

func TestBuildContext_SamplesEarlierSessions(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	u := e.newUser(t, "+79990000011")

	for _, dream := range []string{"змея", "дом", "поезд"} {
		_, err := e.dreams.Interpret(ctx, u.ID, dream)
		require.NoError(t, err)
		e.clock.Advance(24 * time.Hour)
	}

	session, err := e.dreams.Rotator().EnsureActiveSession(ctx, u.ID)
	require.NoError(t, err)

	pc, err := e.dreams.assembler.BuildContext(ctx, u, session, entities.Message{SessionID: session.ID, IsUser: true, Content: "снова змея"})
	require.NoError(t, err)

	require.Len(t, pc.CrossDay, 3)
	assert.Equal(t, "поезд", pc.CrossDay[0].Text)
	assert.Equal(t, "2025-03-03", pc.CrossDay[0].Date)
	assert.Equal(t, "змея", pc.CrossDay[2].Text)
	assert.Empty(t, pc.Current)
	assert.Equal(t, e.cfg.CrossDayGuidance, pc.Guidance)
}

func TestBuildContext_EmptySessionsDoNotCrowdOutDreams(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	u := e.newUser(t, "+79990000012")

	_, err := e.dreams.Interpret(ctx, u.ID, "змея")
	require.NoError(t, err)
	e.clock.Advance(24 * time.Hour)

	for i := 0; i < e.cfg.CrossDaySessions+1; i++ {
		_, err := e.dreams.ClearChat(ctx, u.ID)
		require.NoError(t, err)
	}

	session, err := e.dreams.Rotator().EnsureActiveSession(ctx, u.ID)
	require.NoError(t, err)

	pc, err := e.dreams.assembler.BuildContext(ctx, u, session, entities.Message{SessionID: session.ID, IsUser: true, Content: "опять змея"})
	require.NoError(t, err)
	require.Len(t, pc.CrossDay, 1)
	assert.Equal(t, "змея", pc.CrossDay[0].Text)
	assert.Equal(t, "2025-03-01", pc.CrossDay[0].Date)
}
