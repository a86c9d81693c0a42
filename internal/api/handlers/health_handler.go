package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"
)

// Pinger is satisfied by *database.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether the server can reach its database.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check answers 200 {"status":"ok"} when the database responds.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
