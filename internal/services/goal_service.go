package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/isdelr/goals-be/internal/apperr"
	"github.com/isdelr/goals-be/internal/database"
	"github.com/isdelr/goals-be/internal/models"
	"github.com/rs/zerolog/log"
)

const maxTitleLen = 200

// GoalServiceProvider defines the interface for goal services. Every method
// is scoped to the owner; another user's goal is reported as not found.
type GoalServiceProvider interface {
	ListGoals(ctx context.Context, ownerID string, filter models.GoalFilter) ([]models.Goal, error)
	GetGoal(ctx context.Context, ownerID, goalID string) (models.Goal, error)
	CreateGoal(ctx context.Context, ownerID string, in models.GoalInput) (models.Goal, error)
	UpdateGoal(ctx context.Context, ownerID, goalID string, upd models.GoalUpdate) (models.Goal, error)
	DeleteGoal(ctx context.Context, ownerID, goalID string) error
}

// GoalService provides business logic for goal management.
type GoalService struct {
	db           *database.DB
	eventService EventServiceProvider
	now          func() time.Time
}

// NewGoalService creates a new GoalService.
func NewGoalService(db *database.DB, eventService EventServiceProvider) *GoalService {
	return &GoalService{
		db:           db,
		eventService: eventService,
		now:          time.Now,
	}
}

const goalColumns = "id, user_id, title, description, completed, deadline, priority, version, created_at, updated_at"

var (
	statusClauses = map[string]string{
		models.StatusAll:       "",
		models.StatusCompleted: " AND completed = TRUE",
		models.StatusActive:    " AND completed = FALSE",
	}
	orderClauses = map[string]string{
		models.SortRecent:   "created_at DESC, id",
		models.SortPriority: "CASE priority WHEN 'Alta' THEN 0 WHEN 'Média' THEN 1 ELSE 2 END, created_at DESC, id",
		models.SortDeadline: "CASE WHEN deadline IS NULL THEN 1 ELSE 0 END, deadline, created_at DESC, id",
		models.SortAlpha:    "LOWER(title), id",
	}
)

// ListGoals retrieves the owner's goals. The result is never nil.
func (s *GoalService) ListGoals(ctx context.Context, ownerID string, filter models.GoalFilter) ([]models.Goal, error) {
	where, ok := statusClauses[filter.Status]
	if !ok {
		where = statusClauses[models.StatusAll]
	}
	order, ok := orderClauses[filter.Sort]
	if !ok {
		order = orderClauses[models.SortRecent]
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+goalColumns+" FROM goals WHERE user_id = ?"+where+" ORDER BY "+order, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	goals := []models.Goal{}
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, goal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return goals, nil
}

// GetGoal retrieves one of the owner's goals.
func (s *GoalService) GetGoal(ctx context.Context, ownerID, goalID string) (models.Goal, error) {
	return getGoal(ctx, s.db, ownerID, goalID)
}

func getGoal(ctx context.Context, q database.Querier, ownerID, goalID string) (models.Goal, error) {
	row := q.QueryRowContext(ctx, "SELECT "+goalColumns+" FROM goals WHERE id = ? AND user_id = ?", goalID, ownerID)
	return scanGoal(row)
}

// CreateGoal stores a new goal owned by ownerID.
func (s *GoalService) CreateGoal(ctx context.Context, ownerID string, in models.GoalInput) (models.Goal, error) {
	now := timestamp(s.now())
	goal := models.Goal{
		ID:          uuid.New().String(),
		UserID:      ownerID,
		Title:       in.Title,
		Description: in.Description,
		Completed:   in.Completed,
		Deadline:    in.Deadline.Value,
		Priority:    in.Priority,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if goal.Priority == "" {
		goal.Priority = models.PriorityMedium
	}
	if err := normalizeGoal(&goal); err != nil {
		return models.Goal{}, err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, title, description, completed, deadline, priority, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.UserID, goal.Title, goal.Description, goal.Completed, nullTime(goal.Deadline),
		string(goal.Priority), goal.Version, goal.CreatedAt, goal.UpdatedAt)
	if err != nil {
		return models.Goal{}, fmt.Errorf("db error: %w", err)
	}

	s.recordEvent(ctx, ownerID, "goal.create", fmt.Sprintf("Goal '%s' created.", goal.Title))
	return goal, nil
}

// UpdateGoal applies the non-nil fields of upd to one of the owner's goals.
// A supplied version that no longer matches yields apperr.ErrConflict. An
// update that sets no field returns the goal untouched.
func (s *GoalService) UpdateGoal(ctx context.Context, ownerID, goalID string, upd models.GoalUpdate) (models.Goal, error) {
	var (
		goal    models.Goal
		changed bool
	)
	err := s.db.WithTx(ctx, func(q database.Querier) error {
		current, err := getGoal(ctx, q, ownerID, goalID)
		if err != nil {
			return err
		}
		if upd.Version != nil && *upd.Version != current.Version {
			return apperr.ErrConflict
		}

		goal = current
		if upd.Empty() {
			return nil
		}
		if upd.Title != nil {
			goal.Title = *upd.Title
		}
		if upd.Description != nil {
			goal.Description = *upd.Description
		}
		if upd.Completed != nil {
			goal.Completed = *upd.Completed
		}
		if upd.Deadline.Set {
			goal.Deadline = upd.Deadline.Value
		}
		if upd.Priority != nil {
			goal.Priority = *upd.Priority
		}
		if err := normalizeGoal(&goal); err != nil {
			return err
		}
		goal.Version = current.Version + 1
		goal.UpdatedAt = monotonic(s.now(), current.UpdatedAt)

		res, err := q.ExecContext(ctx, `
			UPDATE goals SET title = ?, description = ?, completed = ?, deadline = ?, priority = ?, version = ?, updated_at = ?
			WHERE id = ? AND user_id = ? AND version = ?`,
			goal.Title, goal.Description, goal.Completed, nullTime(goal.Deadline), string(goal.Priority),
			goal.Version, goal.UpdatedAt, goal.ID, ownerID, current.Version)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if n == 0 {
			return apperr.ErrConflict
		}
		changed = true
		return nil
	})
	if err != nil {
		return models.Goal{}, err
	}
	if !changed {
		return goal, nil
	}

	s.recordEvent(ctx, ownerID, "goal.update", fmt.Sprintf("Goal '%s' updated.", goal.Title))
	return goal, nil
}

// DeleteGoal removes one of the owner's goals.
func (s *GoalService) DeleteGoal(ctx context.Context, ownerID, goalID string) error {
	var title string
	err := s.db.QueryRowContext(ctx,
		"DELETE FROM goals WHERE id = ? AND user_id = ? RETURNING title", goalID, ownerID).Scan(&title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}

	s.recordEvent(ctx, ownerID, "goal.delete", fmt.Sprintf("Goal '%s' deleted.", title))
	return nil
}

func (s *GoalService) recordEvent(ctx context.Context, userID, eventType, message string) {
	if s.eventService == nil {
		return
	}
	if err := s.eventService.CreateEvent(ctx, userID, eventType, LevelInfo, message); err != nil {
		log.Warn().Err(err).Str("userID", userID).Str("type", eventType).Msg("Failed to record event")
	}
}

func scanGoal(row interface{ Scan(...any) error }) (models.Goal, error) {
	var (
		goal     models.Goal
		deadline sql.NullTime
		priority string
	)
	err := row.Scan(&goal.ID, &goal.UserID, &goal.Title, &goal.Description, &goal.Completed,
		&deadline, &priority, &goal.Version, &goal.CreatedAt, &goal.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Goal{}, apperr.ErrNotFound
		}
		return models.Goal{}, fmt.Errorf("db error: %w", err)
	}
	if deadline.Valid {
		t := deadline.Time.UTC()
		goal.Deadline = &t
	}
	goal.Priority = models.Priority(priority)
	goal.CreatedAt = goal.CreatedAt.UTC()
	goal.UpdatedAt = goal.UpdatedAt.UTC()
	return goal, nil
}

// normalizeGoal trims and validates the user-editable fields in place.
func normalizeGoal(goal *models.Goal) error {
	goal.Title = strings.TrimSpace(goal.Title)
	goal.Description = strings.TrimSpace(goal.Description)
	if goal.Title == "" {
		return apperr.Invalid("title", "O título é obrigatório.")
	}
	if utf8.RuneCountInString(goal.Title) > maxTitleLen {
		return apperr.Invalid("title", fmt.Sprintf("O título deve ter no máximo %d caracteres.", maxTitleLen))
	}
	if goal.Description == "" {
		return apperr.Invalid("description", "A descrição é obrigatória.")
	}
	if !goal.Priority.Valid() {
		return apperr.Invalid("priority", "Prioridade inválida. Use Baixa, Média ou Alta.")
	}
	if goal.Deadline != nil {
		t := timestamp(*goal.Deadline)
		goal.Deadline = &t
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
