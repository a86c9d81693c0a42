package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/isdelr/goals-be/internal/apperr"
	"github.com/isdelr/goals-be/internal/auth"
	"github.com/isdelr/goals-be/internal/database"
	"github.com/isdelr/goals-be/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	minPasswordLen = 6
	maxUsernameLen = 50
	maxNameLen     = 100
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
	Register(ctx context.Context, in models.RegisterInput) (models.User, error)
	VerifyCredentials(ctx context.Context, email, password string) (models.User, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// UserService provides business logic for user management.
type UserService struct {
	db           *database.DB
	hasher       *auth.Hasher
	eventService EventServiceProvider
	now          func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(db *database.DB, hasher *auth.Hasher, eventService EventServiceProvider) *UserService {
	return &UserService{
		db:           db,
		hasher:       hasher,
		eventService: eventService,
		now:          time.Now,
	}
}

const userColumns = "id, username, name, email, password_hash, created_at, updated_at"

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, apperr.ErrNotFound
		}
		return models.User{}, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a single user by their ID, without the password hash.
func (s *UserService) GetUserByID(ctx context.Context, id string) (models.User, error) {
	user, err := s.getUser(ctx, "id", id)
	if err != nil {
		return models.User{}, err
	}
	return user.Sanitized(), nil
}

// getUser retrieves a single user including the password hash. column is
// always a literal from this file.
func (s *UserService) getUser(ctx context.Context, column, value string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+column+" = ?", value)
	return scanUser(row)
}

// lockUser reads a user inside a transaction, holding a row lock where the
// backend has one. SQLite serialises writers on its single connection.
func (s *UserService) lockUser(ctx context.Context, q database.Querier, id string) (models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = ?"
	if s.db.Dialect() == database.DialectPostgres {
		query += " FOR UPDATE"
	}
	return scanUser(q.QueryRowContext(ctx, query, id))
}

// Register creates a new account, hashing the password.
func (s *UserService) Register(ctx context.Context, in models.RegisterInput) (models.User, error) {
	username, err := validateUsername(in.Username)
	if err != nil {
		return models.User{}, err
	}
	email, err := validateEmail(in.Email)
	if err != nil {
		return models.User{}, err
	}
	name, err := validateName(in.Name)
	if err != nil {
		return models.User{}, err
	}
	if err := validatePassword(in.Password); err != nil {
		return models.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.User{}, err
	}

	now := timestamp(s.now())
	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (id, username, name, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.Username, user.Name, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.User{}, apperr.ErrDuplicateIdentity
		}
		return models.User{}, fmt.Errorf("db error: %w", err)
	}

	s.recordEvent(ctx, user.ID, "user.register", LevelInfo, fmt.Sprintf("Account '%s' created.", user.Username))
	return user.Sanitized(), nil
}

// VerifyCredentials checks an email and password pair. Unknown emails and
// wrong passwords fail the same way.
func (s *UserService) VerifyCredentials(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.getUser(ctx, "email", models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.hasher.CompareDummy(password)
			return models.User{}, apperr.ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		s.recordEvent(ctx, user.ID, "user.login_failed", LevelWarn, "Failed login attempt.")
		return models.User{}, apperr.ErrInvalidCredentials
	}

	s.recordEvent(ctx, user.ID, "user.login", LevelInfo, "Logged in.")
	return user.Sanitized(), nil
}

// UpdateProfile applies the non-nil fields of upd. Changing the password
// requires the current one. Only the columns being changed are written, so
// concurrent edits of different fields do not undo each other.
func (s *UserService) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.User, error) {
	var (
		user            models.User
		passwordChanged = upd.ChangesPassword()
		rejected        bool
	)
	err := s.db.WithTx(ctx, func(q database.Querier) error {
		current, err := s.lockUser(ctx, q, id)
		if err != nil {
			return err
		}
		user = current

		var (
			sets []string
			args []any
		)
		if upd.Username != nil {
			if user.Username, err = validateUsername(*upd.Username); err != nil {
				return err
			}
			sets, args = append(sets, "username = ?"), append(args, user.Username)
		}
		if upd.Name != nil {
			if user.Name, err = validateName(*upd.Name); err != nil {
				return err
			}
			sets, args = append(sets, "name = ?"), append(args, user.Name)
		}
		if upd.Email != nil {
			if user.Email, err = validateEmail(*upd.Email); err != nil {
				return err
			}
			sets, args = append(sets, "email = ?"), append(args, user.Email)
		}
		if passwordChanged {
			if upd.CurrentPassword == nil || !s.hasher.Compare(current.PasswordHash, *upd.CurrentPassword) {
				rejected = true
				return apperr.ErrInvalidCredentials
			}
			if err := validatePassword(*upd.NewPassword); err != nil {
				return err
			}
			if user.PasswordHash, err = s.hasher.Hash(*upd.NewPassword); err != nil {
				return err
			}
			sets, args = append(sets, "password_hash = ?"), append(args, user.PasswordHash)
		}

		user.UpdatedAt = monotonic(s.now(), current.UpdatedAt)
		sets, args = append(sets, "updated_at = ?"), append(args, user.UpdatedAt, user.ID)

		res, err := q.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return apperr.ErrDuplicateIdentity
			}
			return fmt.Errorf("db error: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return apperr.ErrNotFound
		}
		return nil
	})
	if rejected {
		s.recordEvent(ctx, id, "user.password_rejected", LevelWarn, "Password change rejected: current password did not match.")
	}
	if err != nil {
		return models.User{}, err
	}

	s.recordEvent(ctx, user.ID, "user.update", LevelInfo, "Profile updated.")
	if passwordChanged {
		s.recordEvent(ctx, user.ID, "user.password", LevelInfo, "Password changed.")
	}
	return user.Sanitized(), nil
}

// DeleteUser removes a user together with their goals and activity.
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	return s.db.WithTx(ctx, func(q database.Querier) error {
		if _, err := q.ExecContext(ctx, "DELETE FROM events WHERE user_id = ?", id); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if _, err := q.ExecContext(ctx, "DELETE FROM goals WHERE user_id = ?", id); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		res, err := q.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if n == 0 {
			return apperr.ErrNotFound
		}
		return nil
	})
}

// recordEvent never fails the calling operation.
func (s *UserService) recordEvent(ctx context.Context, userID, eventType, level, message string) {
	if s.eventService == nil {
		return
	}
	if err := s.eventService.CreateEvent(ctx, userID, eventType, level, message); err != nil {
		log.Warn().Err(err).Str("userID", userID).Str("type", eventType).Msg("Failed to record event")
	}
}

func validateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", apperr.Invalid("username", "O nome de usuário é obrigatório.")
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		return "", apperr.Invalid("username", fmt.Sprintf("O nome de usuário deve ter no máximo %d caracteres.", maxUsernameLen))
	}
	return username, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > maxNameLen {
		return "", apperr.Invalid("name", fmt.Sprintf("O nome deve ter no máximo %d caracteres.", maxNameLen))
	}
	return name, nil
}

func validateEmail(email string) (string, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return "", apperr.Invalid("email", "O e-mail é obrigatório.")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.Invalid("email", "Informe um e-mail válido.")
	}
	return email, nil
}

func validatePassword(password string) error {
	if password == "" {
		return apperr.Invalid("password", "A senha é obrigatória.")
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		return apperr.Invalid("password", fmt.Sprintf("A senha deve ter pelo menos %d caracteres.", minPasswordLen))
	}
	return nil
}
