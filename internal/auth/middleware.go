package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/isdelr/goals-be/internal/apperr"
	"github.com/isdelr/goals-be/internal/metrics"
	"github.com/isdelr/goals-be/internal/models"
	"github.com/rs/zerolog/log"
)

// Messages returned by the gate. They match what the web client shows.
const (
	MsgMissingToken = "Acesso negado. Token não fornecido."
	MsgInvalidToken = "Token inválido."
	msgInternal     = "Erro interno do servidor."
)

// UserLookup resolves a user id to its account. It must return an error
// matching apperr.ErrNotFound when the account does not exist.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

// Middleware protects routes. A request passes only when it carries a
// bearer token that verifies and names an existing user; that user is then
// attached to the request context. A deleted user's token fails exactly like
// a forged one.
func Middleware(tokens *TokenService, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := BearerToken(r)
			if tokenStr == "" {
				metrics.TokensRejectedTotal.WithLabelValues("missing").Inc()
				reject(w, http.StatusUnauthorized, MsgMissingToken)
				return
			}

			userID, err := tokens.Verify(tokenStr)
			if err != nil {
				reason := "invalid"
				if errors.Is(err, apperr.ErrTokenExpired) {
					reason = "expired"
				}
				metrics.TokensRejectedTotal.WithLabelValues(reason).Inc()
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected bearer token")
				reject(w, http.StatusUnauthorized, MsgInvalidToken)
				return
			}

			user, err := users.GetUserByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, apperr.ErrNotFound) {
					metrics.TokensRejectedTotal.WithLabelValues("unknown_user").Inc()
					log.Info().Str("user_id", userID).Msg("Token names a user that no longer exists")
					reject(w, http.StatusUnauthorized, MsgInvalidToken)
					return
				}
				log.Error().Err(err).Str("user_id", userID).Msg("Failed to resolve token user")
				reject(w, http.StatusInternalServerError, msgInternal)
				return
			}

			ctx := WithUser(r.Context(), user.Sanitized())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header, or returns "".
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func reject(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
