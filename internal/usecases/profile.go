package usecases

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Koksbox/dream-interpreter/internal/entities"
	"github.com/Koksbox/dream-interpreter/internal/logging"
	"github.com/Koksbox/dream-interpreter/internal/repository"
)

const MaxNameLength = 100

var skipWords = map[string]struct{}{
	"пропустить": {},
	"skip":       {},
	"нет":        {},
}

var birthDateLayouts = []string{"02.01.2006", "2006-01-02"}

// IsSkipWord reports whether the input means "leave this field empty".
func IsSkipWord(s string) bool {
	_, ok := skipWords[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// NormalizeName trims the name and caps it at MaxNameLength runes.
// Skip words yield an empty name.
func NormalizeName(s string) string {
	s = strings.TrimSpace(s)
	if IsSkipWord(s) {
		return ""
	}
	if utf8.RuneCountInString(s) > MaxNameLength {
		s = string([]rune(s)[:MaxNameLength])
	}
	return s
}

// ParseBirthDate accepts DD.MM.YYYY or YYYY-MM-DD. Empty input and skip
// words yield (nil, nil). Dates in the future or before 1900 are rejected.
func ParseBirthDate(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || IsSkipWord(s) {
		return nil, nil
	}
	for _, layout := range birthDateLayouts {
		d, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if d.Year() < 1900 || d.After(now) {
			return nil, entities.ErrInvalidBirthDate
		}
		return &d, nil
	}
	return nil, entities.ErrInvalidBirthDate
}

type ProfileService struct {
	store repository.Manager
	locks UserLocker
	log   logging.Logger
}

func NewProfileService(store repository.Manager, locks UserLocker, log logging.Logger) *ProfileService {
	return &ProfileService{store: store, locks: locks, log: log}
}

func (p *ProfileService) Get(ctx context.Context, userID int64) (*entities.User, error) {
	u, err := p.store.Users(p.store.DB()).GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, entities.ErrNotFound
	}
	return u, nil
}

// Update replaces name and birth date. Empty values clear the field.
func (p *ProfileService) Update(ctx context.Context, userID int64, name string, birthDate *time.Time) (*entities.User, error) {
	unlock := p.locks.Lock(userID)
	defer unlock()

	name = NormalizeName(name)
	if err := p.store.Users(p.store.DB()).UpdateProfile(ctx, userID, name, birthDate); err != nil {
		return nil, err
	}
	p.log.Info(ctx, "profile updated", "user_id", userID, "has_name", name != "", "has_birth_date", birthDate != nil)
	return p.Get(ctx, userID)
}
