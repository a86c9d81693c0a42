package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/isdelr/goals-be/internal/apperr"
	"github.com/rs/zerolog/hlog"
)

// User-facing messages. They are the strings the web client renders.
const (
	MsgRegistered         = "Usuário registrado com sucesso!"
	MsgLoggedIn           = "Login bem-sucedido"
	MsgInvalidCredentials = "Credenciais inválidas"
	MsgWrongPassword      = "Senha atual incorreta."
	MsgRegisterFailed     = "Erro ao registrar usuário"
	MsgDuplicateIdentity  = "Nome de usuário ou e-mail já cadastrado."
	MsgUserNotFound       = "Usuário não encontrado"
	MsgGoalNotFound       = "Meta não encontrada"
	MsgConflict           = "A meta foi alterada por outra requisição."
	MsgInvalidBody        = "Corpo da requisição inválido."
	MsgInvalidQuery       = "Parâmetros de consulta inválidos."
	MsgInternal           = "Erro interno do servidor."
)

const maxBodyBytes = 1 << 20

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

// decodeJSON reads a JSON body of bounded size into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, MsgInvalidBody)
		return false
	}
	return true
}

// writeError maps the error taxonomy onto status codes and default
// messages. notFound overrides the 404 message per resource.
func writeError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeMessage(w, http.StatusBadRequest, apperr.UserMessage(err, MsgInvalidBody))
	case errors.Is(err, apperr.ErrDuplicateIdentity):
		writeMessage(w, http.StatusBadRequest, MsgDuplicateIdentity)
	case errors.Is(err, apperr.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, MsgInvalidCredentials)
	case errors.Is(err, apperr.ErrNotFound):
		writeMessage(w, http.StatusNotFound, notFound)
	case errors.Is(err, apperr.ErrConflict):
		writeMessage(w, http.StatusConflict, MsgConflict)
	default:
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeMessage(w, http.StatusInternalServerError, MsgInternal)
	}
}
