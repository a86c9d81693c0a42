package services

import (
	"context"
	"testing"
	"time"

	"github.com/isdelr/goals-be/internal/auth"
	"github.com/isdelr/goals-be/internal/database"
	"github.com/isdelr/goals-be/internal/database/dbtest"
	"github.com/isdelr/goals-be/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServices struct {
	db     *database.DB
	users  *UserService
	goals  *GoalService
	events *EventService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	return newServicesOn(t, dbtest.Open(t))
}

func newServicesOn(t *testing.T, db *database.DB) *testServices {
	t.Helper()
	hasher, err := auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	events := NewEventService(db)
	return &testServices{
		db:     db,
		users:  NewUserService(db, hasher, events),
		goals:  NewGoalService(db, events),
		events: events,
	}
}

func (ts *testServices) register(t *testing.T, username string) models.User {
	t.Helper()
	user, err := ts.users.Register(context.Background(), models.RegisterInput{
		Username: username,
		Name:     username,
		Email:    username + "@x.io",
		Password: "secret1",
	})
	require.NoError(t, err)
	return user
}

func (ts *testServices) createGoal(t *testing.T, ownerID, title string) models.Goal {
	t.Helper()
	goal, err := ts.goals.CreateGoal(context.Background(), ownerID, models.GoalInput{Title: title, Description: "d"})
	require.NoError(t, err)
	return goal
}

// steppingClock returns a clock that advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}

func ptr[T any](v T) *T { return &v }
