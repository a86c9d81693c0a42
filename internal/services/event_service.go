package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/goals-be/internal/database"
	"github.com/isdelr/goals-be/internal/models"
)

// Event levels.
const (
	LevelInfo = "info"
	LevelWarn = "warn"
)

// MaxEventsLimit caps how many events one request may read.
const MaxEventsLimit = 100

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, userID, eventType, level, message string) error
	GetRecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventService records each user's account activity.
type EventService struct {
	db  *database.DB
	now func() time.Time
}

// NewEventService creates a new EventService.
func NewEventService(db *database.DB) *EventService {
	return &EventService{db: db, now: time.Now}
}

// CreateEvent appends an event to the user's activity trail.
func (s *EventService) CreateEvent(ctx context.Context, userID, eventType, level, message string) error {
	event := models.Event{
		ID:        uuid.New().String(),
		UserID:    userID,
		Type:      eventType,
		Level:     level,
		Message:   message,
		CreatedAt: timestamp(s.now()),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (id, user_id, type, level, message, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		event.ID, event.UserID, event.Type, event.Level, event.Message, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetRecentEvents retrieves the user's most recent events, newest first.
func (s *EventService) GetRecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > MaxEventsLimit {
		limit = MaxEventsLimit
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, type, level, message, created_at FROM events WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.UserID, &event.Type, &event.Level, &event.Message, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return events, nil
}

// PruneBefore deletes every event older than cutoff and returns how many
// were removed.
func (s *EventService) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE created_at < ?", timestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
