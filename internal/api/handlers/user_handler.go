package handlers

import (
	"errors"
	"net/http"

	"github.com/isdelr/goals-be/internal/apperr"
	"github.com/isdelr/goals-be/internal/auth"
	"github.com/isdelr/goals-be/internal/metrics"
	"github.com/isdelr/goals-be/internal/models"
	"github.com/isdelr/goals-be/internal/services"
	"github.com/rs/zerolog/hlog"
)

// UserHandler handles HTTP requests for user management.
type UserHandler struct {
	service services.UserServiceProvider
	tokens  *auth.TokenService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider, tokens *auth.TokenService) *UserHandler {
	return &UserHandler{service: service, tokens: tokens}
}

// SessionUser is the profile returned at login and registration, together
// with the bearer token for later requests.
type SessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

// AuthResponse is the body of a successful login or registration.
type AuthResponse struct {
	Message string      `json:"message"`
	User    SessionUser `json:"user"`
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload models.RegisterInput
	if !decodeJSON(w, r, &payload) {
		return
	}

	user, err := h.service.Register(r.Context(), payload)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("register", "failure").Inc()
		switch {
		case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrDuplicateIdentity):
			writeError(w, r, err, MsgUserNotFound)
		default:
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to register user")
			writeMessage(w, http.StatusInternalServerError, MsgRegisterFailed)
		}
		return
	}

	h.respondWithSession(w, r, http.StatusCreated, MsgRegistered, user)
	metrics.AuthAttemptsTotal.WithLabelValues("register", "success").Inc()
}

// Login handles user authentication and token issuance.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload models.Credentials
	if !decodeJSON(w, r, &payload) {
		return
	}

	user, err := h.service.VerifyCredentials(r.Context(), payload.Email, payload.Password)
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("login", "failure").Inc()
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			hlog.FromRequest(r).Warn().Msg("Failed authentication attempt")
		}
		writeError(w, r, err, MsgUserNotFound)
		return
	}

	h.respondWithSession(w, r, http.StatusOK, MsgLoggedIn, user)
	metrics.AuthAttemptsTotal.WithLabelValues("login", "success").Inc()
}

func (h *UserHandler) respondWithSession(w http.ResponseWriter, r *http.Request, status int, message string, user models.User) {
	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("user_id", user.ID).Msg("Failed to issue token")
		writeMessage(w, http.StatusInternalServerError, MsgInternal)
		return
	}

	writeJSON(w, status, AuthResponse{
		Message: message,
		User: SessionUser{
			ID:       user.ID,
			Username: user.Username,
			Name:     user.Name,
			Email:    user.Email,
			Token:    token,
		},
	})
}

// GetProfile returns the authenticated user.
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		hlog.FromRequest(r).Error().Msg("Could not retrieve user from context")
		writeMessage(w, http.StatusInternalServerError, MsgInternal)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile applies the supplied profile fields. A wrong current
// password is a form error here, not a session failure, so it is answered
// with 400 to keep the client logged in.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusInternalServerError, MsgInternal)
		return
	}

	var payload models.ProfileUpdate
	if !decodeJSON(w, r, &payload) {
		return
	}

	updated, err := h.service.UpdateProfile(r.Context(), user.ID, payload)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			writeMessage(w, http.StatusBadRequest, MsgWrongPassword)
			return
		}
		writeError(w, r, err, MsgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteProfile removes the authenticated user's account with its goals.
func (h *UserHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusInternalServerError, MsgInternal)
		return
	}

	if err := h.service.DeleteUser(r.Context(), user.ID); err != nil {
		writeError(w, r, err, MsgUserNotFound)
		return
	}
	hlog.FromRequest(r).Info().Str("user_id", user.ID).Msg("Account deleted")
	w.WriteHeader(http.StatusNoContent)
}
