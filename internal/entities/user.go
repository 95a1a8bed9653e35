package entities

import "time"

// UsageDateLayout is the calendar-day format stored in users.usage_date.
const UsageDateLayout = "2006-01-02"

type User struct {
	ID           int64      `json:"id"`
	Phone        string     `json:"phone"`
	TelegramID   string     `json:"telegram_id,omitempty"`
	Name         string     `json:"name,omitempty"`
	BirthDate    *time.Time `json:"birth_date,omitempty"`
	IsPremium    bool       `json:"is_premium"`
	PremiumUntil *time.Time `json:"premium_until,omitempty"`
	UsageCount   int        `json:"usage_count"`
	UsageDate    string     `json:"usage_date,omitempty"` // YYYY-MM-DD in the engine time zone
	CreatedAt    time.Time  `json:"created_at"`
}

// HasPremium reports whether premium is in effect at now.
// A premium flag without an expiry never lapses.
func (u *User) HasPremium(now time.Time) bool {
	if !u.IsPremium {
		return false
	}
	if u.PremiumUntil == nil {
		return true
	}
	return now.Before(*u.PremiumUntil)
}

// ProfileComplete reports whether both optional profile fields are filled.
func (u *User) ProfileComplete() bool {
	return u.Name != "" && u.BirthDate != nil
}
