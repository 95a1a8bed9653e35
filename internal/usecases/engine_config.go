package usecases

import "time"

// EngineConfig is passed by value and never mutated after construction.
type EngineConfig struct {
	Location   *time.Location
	DailyLimit int

	Preamble         string
	CrossDayGuidance string
	SameDayGuidance  string
	Apology          string

	CurrentTurns     int // prior messages of the active session
	CurrentTurnChars int
	CrossDaySessions int // other sessions sampled for cross-day memory
	CrossDayChars    int

	Temperature       float32
	MaxOutputTokens   int32
	GenerationTimeout time.Duration
}

const (
	defaultPreamble = "Ты внимательный толкователь снов. Помогай человеку понять, что сон говорит о его чувствах, " +
		"переживаниях и текущей жизни. Не предсказывай будущее и не опирайся на эзотерику. " +
		"Отвечай по-русски, тепло и по существу, не длиннее нескольких абзацев."
	defaultCrossDayGuidance = "Ниже есть сны из прошлых дней. Если видишь повторяющиеся образы или темы, " +
		"свяжи их с сегодняшним сном и скажи об этом прямо."
	defaultSameDayGuidance = "Учитывай, о чём вы уже говорили сегодня, и продолжай разговор без повторов."
	defaultApology         = "Извини, сейчас я не могу истолковать сон. Попробуй ещё раз чуть позже."
)

func DefaultEngineConfig(loc *time.Location) EngineConfig {
	if loc == nil {
		loc = time.UTC
	}
	return EngineConfig{
		Location:          loc,
		DailyLimit:        5,
		Preamble:          defaultPreamble,
		CrossDayGuidance:  defaultCrossDayGuidance,
		SameDayGuidance:   defaultSameDayGuidance,
		Apology:           defaultApology,
		CurrentTurns:      4,
		CurrentTurnChars:  200,
		CrossDaySessions:  4,
		CrossDayChars:     150,
		Temperature:       0.7,
		MaxOutputTokens:   1024,
		GenerationTimeout: 60 * time.Second,
	}
}

func (c EngineConfig) day(t time.Time) string {
	return t.In(c.Location).Format("2006-01-02")
}

// nextMidnight is the first instant of the calendar day after t.
func (c EngineConfig) nextMidnight(t time.Time) time.Time {
	local := t.In(c.Location)
	return time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.Location)
}
