package entities

import "time"

// Session is one conversation-day of a user. Retired sessions stay in storage
// with IsActive=false and remain visible in history.
type Session struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	IsActive  bool      `json:"is_active"`
}

// Day returns the calendar date of the session in loc.
func (s *Session) Day(loc *time.Location) string {
	return s.CreatedAt.In(loc).Format(UsageDateLayout)
}
