package entities

import "time"

// Message is one immutable turn inside a Session.
type Message struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"session_id"`
	IsUser    bool      `json:"is_user"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Turn is a user prompt paired with the assistant reply that followed it.
type Turn struct {
	Prompt    string    `json:"prompt"`
	Reply     string    `json:"reply"`
	Timestamp time.Time `json:"timestamp"`
}

// DayGroup holds the turns of one calendar day.
type DayGroup struct {
	Date  string `json:"date"`
	Turns []Turn `json:"turns"`
}
