package services

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/isdelr/goals-be/internal/apperr"
	"github.com/isdelr/goals-be/internal/auth"
	"github.com/isdelr/goals-be/internal/database"
	"github.com/isdelr/goals-be/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestRegister(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()

	user, err := ts.users.Register(ctx, models.RegisterInput{
		Username: " alice ",
		Name:     "Alice",
		Email:    "Alice@X.io",
		Password: "secret1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@x.io", user.Email)
	assert.Empty(t, user.PasswordHash, "hash must not leave the service")

	var stored string
	require.NoError(t, ts.db.QueryRowContext(ctx, "SELECT password_hash FROM users WHERE id = ?", user.ID).Scan(&stored))
	assert.NotEqual(t, "secret1", stored)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored), []byte("secret1")))
}

func TestRegister_Validation(t *testing.T) {
	ts := newTestServices(t)

	tests := []struct {
		name  string
		input models.RegisterInput
		field string
	}{
		{"missing username", models.RegisterInput{Email: "a@x.io", Password: "secret1"}, "username"},
		{"blank username", models.RegisterInput{Username: "  ", Email: "a@x.io", Password: "secret1"}, "username"},
		{"missing email", models.RegisterInput{Username: "a", Password: "secret1"}, "email"},
		{"bad email", models.RegisterInput{Username: "a", Email: "not-an-email", Password: "secret1"}, "email"},
		{"display name email", models.RegisterInput{Username: "a", Email: "A <a@x.io>", Password: "secret1"}, "email"},
		{"missing password", models.RegisterInput{Username: "a", Email: "a@x.io"}, "password"},
		{"short password", models.RegisterInput{Username: "a", Email: "a@x.io", Password: "123"}, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.users.Register(context.Background(), tt.input)
			require.ErrorIs(t, err, apperr.ErrValidation)
			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestRegister_DuplicateIdentity(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	ts.register(t, "alice")

	_, err := ts.users.Register(ctx, models.RegisterInput{Username: "alice", Email: "other@x.io", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)

	_, err = ts.users.Register(ctx, models.RegisterInput{Username: "other", Email: "ALICE@x.io", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)

	var count int
	require.NoError(t, ts.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count, "no partial record after a rejected registration")
}

func TestVerifyCredentials(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	alice := ts.register(t, "alice")

	user, err := ts.users.VerifyCredentials(ctx, "ALICE@x.io", "secret1")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	assert.Empty(t, user.PasswordHash)

	_, err = ts.users.VerifyCredentials(ctx, "alice@x.io", "wrong")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = ts.users.VerifyCredentials(ctx, "nobody@x.io", "secret1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials, "unknown email looks like a wrong password")
}

func TestVerifyCredentials_RecordsEvents(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	alice := ts.register(t, "alice")

	_, _ = ts.users.VerifyCredentials(ctx, "alice@x.io", "wrong")
	_, err := ts.users.VerifyCredentials(ctx, "alice@x.io", "secret1")
	require.NoError(t, err)

	events, err := ts.events.GetRecentEvents(ctx, alice.ID, 10)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.ElementsMatch(t, []string{"user.register", "user.login_failed", "user.login"}, types)
}

func TestGetUserByID(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	alice := ts.register(t, "alice")

	user, err := ts.users.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.Email, user.Email)
	assert.Empty(t, user.PasswordHash)

	_, err = ts.users.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateProfile(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	alice := ts.register(t, "alice")

	user, err := ts.users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{Name: ptr("Alice Liddell")})
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", user.Name)
	assert.Equal(t, "alice", user.Username, "absent fields are untouched")
	assert.Equal(t, "alice@x.io", user.Email)
	assert.False(t, user.UpdatedAt.Before(alice.UpdatedAt))

	user, err = ts.users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{Email: ptr(" New@X.io ")})
	require.NoError(t, err)
	assert.Equal(t, "new@x.io", user.Email)

	_, err = ts.users.VerifyCredentials(ctx, "new@x.io", "secret1")
	assert.NoError(t, err)
}

func TestUpdateProfile_PasswordChange(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	alice := ts.register(t, "alice")

	_, err := ts.users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{NewPassword: ptr("newsecret")})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials, "current password is required")

	_, err = ts.users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{
		CurrentPassword: ptr("wrong"),
		NewPassword:     ptr("newsecret"),
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	_, err = ts.users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{
		CurrentPassword: ptr("secret1"),
		NewPassword:     ptr("123"),
	})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = ts.users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{
		CurrentPassword: ptr("secret1"),
		NewPassword:     ptr("newsecret"),
	})
	require.NoError(t, err)

	_, err = ts.users.VerifyCredentials(ctx, "alice@x.io", "secret1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = ts.users.VerifyCredentials(ctx, "alice@x.io", "newsecret")
	assert.NoError(t, err)
}

func TestUpdateProfile_KeepsConcurrentPasswordChange(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer sqlDB.Close()

	svc := NewUserService(database.Wrap(sqlDB, database.DialectPostgres), nil, nil)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now.Add(time.Minute) }

	// The row still carries the hash from before another request changed
	// the password; a name-only edit must not write it back.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "name", "email", "password_hash", "created_at", "updated_at"}).
			AddRow("u1", "alice", "Alice", "alice@x.io", "stale-hash", now, now))
	mock.ExpectExec(`^UPDATE users SET name = \$1, updated_at = \$2 WHERE id = \$3$`).
		WithArgs("Alice L.", now.Add(time.Minute), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := svc.UpdateProfile(context.Background(), "u1", models.ProfileUpdate{Name: ptr("Alice L.")})
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", user.Name)
	assert.Empty(t, user.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProfile_PasswordSurvivesLaterEdit(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	alice := ts.register(t, "alice")

	_, err := ts.users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{
		CurrentPassword: ptr("secret1"),
		NewPassword:     ptr("newsecret"),
	})
	require.NoError(t, err)
	_, err = ts.users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{Name: ptr("Alice L.")})
	require.NoError(t, err)

	_, err = ts.users.VerifyCredentials(ctx, "alice@x.io", "newsecret")
	assert.NoError(t, err)
}

func TestUpdateProfile_DuplicateAndMissing(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	alice := ts.register(t, "alice")
	ts.register(t, "bob")

	_, err := ts.users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{Username: ptr("bob")})
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)

	_, err = ts.users.UpdateProfile(ctx, alice.ID, models.ProfileUpdate{Email: ptr("bob@x.io")})
	assert.ErrorIs(t, err, apperr.ErrDuplicateIdentity)

	_, err = ts.users.UpdateProfile(ctx, "missing", models.ProfileUpdate{Name: ptr("x")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteUser_Cascades(t *testing.T) {
	ts := newTestServices(t)
	ctx := context.Background()
	alice := ts.register(t, "alice")
	bob := ts.register(t, "bob")
	ts.createGoal(t, alice.ID, "a1")
	ts.createGoal(t, alice.ID, "a2")
	bobGoal := ts.createGoal(t, bob.ID, "b1")

	require.NoError(t, ts.users.DeleteUser(ctx, alice.ID))

	_, err := ts.users.GetUserByID(ctx, alice.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	var goals, events int
	require.NoError(t, ts.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM goals WHERE user_id = ?", alice.ID).Scan(&goals))
	require.NoError(t, ts.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE user_id = ?", alice.ID).Scan(&events))
	assert.Zero(t, goals)
	assert.Zero(t, events)

	_, err = ts.goals.GetGoal(ctx, bob.ID, bobGoal.ID)
	assert.NoError(t, err, "other users keep their goals")

	_, err = ts.users.VerifyCredentials(ctx, "alice@x.io", "secret1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)

	assert.ErrorIs(t, ts.users.DeleteUser(ctx, alice.ID), apperr.ErrNotFound)
}

func TestDeleteUser_RollsBackOnFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer sqlDB.Close()

	hasher, err := auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	svc := NewUserService(database.Wrap(sqlDB, database.DialectSQLite), hasher, nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM events WHERE user_id = ?")).WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM goals WHERE user_id = ?")).WithArgs("u1").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = svc.DeleteUser(context.Background(), "u1")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserByID_DatabaseError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer sqlDB.Close()

	svc := NewUserService(database.Wrap(sqlDB, database.DialectPostgres), nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).WithArgs("u1").WillReturnError(assert.AnError)

	_, err = svc.GetUserByID(context.Background(), "u1")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
