package models

import "time"

// Event is an entry in a user's account activity trail.
type Event struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Type      string    `json:"type"`  // e.g., "user.login", "goal.create"
	Level     string    `json:"level"` // "info" or "warn"
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
