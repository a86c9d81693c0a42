package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/goals-be/internal/auth"
	"github.com/isdelr/goals-be/internal/models"
	"github.com/isdelr/goals-be/internal/services"
	"github.com/rs/zerolog/hlog"
)

// GoalHandler handles HTTP requests for the authenticated user's goals.
type GoalHandler struct {
	service services.GoalServiceProvider
}

// NewGoalHandler creates a new GoalHandler.
func NewGoalHandler(service services.GoalServiceProvider) *GoalHandler {
	return &GoalHandler{service: service}
}

func ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		hlog.FromRequest(r).Error().Msg("Could not retrieve user from context")
		writeMessage(w, http.StatusInternalServerError, MsgInternal)
		return "", false
	}
	return user.ID, true
}

// GetAll lists the caller's goals, optionally filtered by status and sorted.
func (h *GoalHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter, err := models.ParseGoalFilter(query.Get("status"), query.Get("sort"))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, MsgInvalidQuery)
		return
	}

	goals, err := h.service.ListGoals(r.Context(), owner, filter)
	if err != nil {
		writeError(w, r, err, MsgGoalNotFound)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

// Get returns one of the caller's goals.
func (h *GoalHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	goal, err := h.service.GetGoal(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, MsgGoalNotFound)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

// Create stores a new goal owned by the caller.
func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var payload models.GoalInput
	if !decodeJSON(w, r, &payload) {
		return
	}

	goal, err := h.service.CreateGoal(r.Context(), owner, payload)
	if err != nil {
		writeError(w, r, err, MsgGoalNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

// Update changes the supplied fields of one of the caller's goals.
func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	var payload models.GoalUpdate
	if !decodeJSON(w, r, &payload) {
		return
	}

	goal, err := h.service.UpdateGoal(r.Context(), owner, chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, r, err, MsgGoalNotFound)
		return
	}
	writeJSON(w, http.StatusOK, goal)
}

// Delete removes one of the caller's goals.
func (h *GoalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteGoal(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, MsgGoalNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
