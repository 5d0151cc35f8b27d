package handlers

import (
	"net/http"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/utils"
)

type StatsHandler struct {
	store  database.Store
	errors *apperrors.ErrorHandler
}

func NewStatsHandler(store database.Store, errs *apperrors.ErrorHandler) *StatsHandler {
	return &StatsHandler{store: store, errors: errs}
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, stats, http.StatusOK)
}

// Health reports whether the store answers a ping.
func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		utils.RespondJSON(w, map[string]string{"status": "unhealthy", "database": "unreachable"},
			http.StatusServiceUnavailable)
		return
	}
	utils.RespondJSON(w, map[string]string{"status": "healthy", "database": "connected"}, http.StatusOK)
}
