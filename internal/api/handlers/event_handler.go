package handlers

import (
	"net/http"
	"strconv"

	"github.com/isdelr/goals-be/internal/services"
)

const defaultEventsLimit = 20

// EventHandler handles HTTP requests for the caller's account activity.
type EventHandler struct {
	service services.EventServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider) *EventHandler {
	return &EventHandler{service: service}
}

// GetRecent handles the request to get recent activity/events.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerID(w, r)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defaultEventsLimit
	}
	if limit > services.MaxEventsLimit {
		limit = services.MaxEventsLimit
	}

	events, err := h.service.GetRecentEvents(r.Context(), owner, limit)
	if err != nil {
		writeError(w, r, err, MsgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
