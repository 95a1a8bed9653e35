package usecases

import (
	"sort"
	"time"

	"github.com/Koksbox/dream-interpreter/internal/entities"
)

type PairOrder int

const (
	OldestFirst PairOrder = iota
	NewestFirst
)

type pairState int

const (
	awaitingUser pairState = iota
	awaitingAssistant
)

// Pair walks an ordered message log and emits a Turn for every user message
// directly followed by an assistant message. Anything out of alternation is
// dropped: a user message followed by another user message loses its
// predecessor, and an assistant message with no pending user message is
// ignored.
func Pair(messages []entities.Message, order PairOrder) []entities.Turn {
	turns := make([]entities.Turn, 0, len(messages)/2)
	state := awaitingUser
	var pending entities.Message

	for _, m := range messages {
		switch state {
		case awaitingUser:
			if m.IsUser {
				pending = m
				state = awaitingAssistant
			}
		case awaitingAssistant:
			if m.IsUser {
				pending = m
				continue
			}
			turns = append(turns, entities.Turn{
				Prompt:    pending.Content,
				Reply:     m.Content,
				Timestamp: pending.CreatedAt,
			})
			state = awaitingUser
		}
	}

	if order == NewestFirst {
		for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
			turns[i], turns[j] = turns[j], turns[i]
		}
	}
	return turns
}

// GroupByDate buckets turns by calendar date in loc, newest date first.
// Turns keep their relative order inside a bucket.
func GroupByDate(turns []entities.Turn, loc *time.Location) []entities.DayGroup {
	index := make(map[string]int)
	var groups []entities.DayGroup
	for _, t := range turns {
		day := t.Timestamp.In(loc).Format(entities.UsageDateLayout)
		i, ok := index[day]
		if !ok {
			i = len(groups)
			index[day] = i
			groups = append(groups, entities.DayGroup{Date: day})
		}
		groups[i].Turns = append(groups[i].Turns, t)
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Date > groups[j].Date })
	return groups
}
