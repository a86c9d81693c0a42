package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Priority is one of the fixed goal priorities. The wire values are the
// ones the web client renders.
type Priority string

const (
	PriorityLow    Priority = "Baixa"
	PriorityMedium Priority = "Média"
	PriorityHigh   Priority = "Alta"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Goal is a personal goal owned by exactly one user.
type Goal struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	Deadline    *time.Time `json:"deadline"`
	Priority    Priority   `json:"priority"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// GoalInput is the payload for creating a goal. Any owner field sent by the
// client is ignored because the struct has none.
type GoalInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Completed   bool     `json:"completed"`
	Deadline    Deadline `json:"deadline,omitzero"`
	Priority    Priority `json:"priority,omitempty"`
}

// GoalUpdate is the payload for updating a goal. Nil fields are left
// untouched. Version, when present, must match the stored version.
type GoalUpdate struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Completed   *bool     `json:"completed,omitempty"`
	Deadline    Deadline  `json:"deadline,omitzero"`
	Priority    *Priority `json:"priority,omitempty"`
	Version     *int64    `json:"version,omitempty"`
}

// Empty reports whether the update changes no field. Version alone is not
// a change.
func (u GoalUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Completed == nil &&
		!u.Deadline.Set && u.Priority == nil
}

// Deadline is a nullable date that remembers whether the client sent it at
// all, so an update can tell "clear the deadline" from "leave it alone".
type Deadline struct {
	Set   bool
	Value *time.Time
}

// UnmarshalJSON accepts null, "", a bare date (2006-01-02) or an RFC 3339
// timestamp.
func (d *Deadline) UnmarshalJSON(b []byte) error {
	d.Set = true
	d.Value = nil
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("deadline must be a date string: %w", err)
	}
	if s == "" {
		return nil
	}
	t, err := ParseDeadline(s)
	if err != nil {
		return err
	}
	d.Value = &t
	return nil
}

// MarshalJSON writes the deadline the same way Goal does. Unset deadlines
// are dropped by the omitzero tags on the payload structs.
func (d Deadline) MarshalJSON() ([]byte, error) {
	if d.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.Value.UTC())
}

// DeadlineAt builds a set Deadline from t.
func DeadlineAt(t time.Time) Deadline {
	return Deadline{Set: true, Value: &t}
}

// ParseDeadline parses a bare date or an RFC 3339 timestamp into UTC.
func ParseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q", s)
	}
	return t.UTC(), nil
}

// Goal list filters.
const (
	StatusAll       = "all"
	StatusCompleted = "completed"
	StatusActive    = "active"

	SortRecent   = "recent"
	SortPriority = "priority"
	SortDeadline = "deadline"
	SortAlpha    = "alpha"
)

// GoalFilter selects and orders a user's goals.
type GoalFilter struct {
	Status string
	Sort   string
}

// ParseGoalFilter validates the query values of a list request. Empty
// values select every goal, most recent first.
func ParseGoalFilter(status, sort string) (GoalFilter, error) {
	f := GoalFilter{Status: status, Sort: sort}
	if f.Status == "" {
		f.Status = StatusAll
	}
	if f.Sort == "" {
		f.Sort = SortRecent
	}
	switch f.Status {
	case StatusAll, StatusCompleted, StatusActive:
	default:
		return GoalFilter{}, fmt.Errorf("unknown status filter %q", status)
	}
	switch f.Sort {
	case SortRecent, SortPriority, SortDeadline, SortAlpha:
	default:
		return GoalFilter{}, fmt.Errorf("unknown sort order %q", sort)
	}
	return f, nil
}
