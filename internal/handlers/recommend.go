package handlers

import (
	"net/http"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/auth"
	"moviegraph/internal/database"
	"moviegraph/internal/utils"
)

const (
	defaultRecommendLimit = 5
	maxRecommendLimit     = 50
)

type RecommendHandler struct {
	store    database.Store
	resolve  resolver
	enforcer *auth.Enforcer
	errors   *apperrors.ErrorHandler
}

func NewRecommendHandler(store database.Store, enforcer *auth.Enforcer, errs *apperrors.ErrorHandler) *RecommendHandler {
	return &RecommendHandler{store: store, resolve: resolver{store: store}, enforcer: enforcer, errors: errs}
}

// SimilarMovies recommends movies sharing people with a fuzzy-resolved seed.
func (h *RecommendHandler) SimilarMovies(w http.ResponseWriter, r *http.Request) {
	limit, err := utils.GetLimit(r, defaultRecommendLimit, maxRecommendLimit)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	m, similarity, err := h.resolve.movie(r.Context(), utils.GetPathParam(r, "title"), true)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	recs, err := h.store.SimilarMovies(r.Context(), m.ID, limit)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, map[string]any{
		"movie":           m.Title,
		"similarity":      similarity,
		"recommendations": recs,
	}, http.StatusOK)
}

func (h *RecommendHandler) ForUser(w http.ResponseWriter, r *http.Request) {
	username := utils.GetPathParam(r, "username")
	if err := selfOrAllowed(r, h.enforcer, username, auth.ObjRecommendations); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	limit, err := utils.GetLimit(r, defaultRecommendLimit, maxRecommendLimit)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	recs, err := h.store.RecommendForUser(r.Context(), username, limit)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, map[string]any{
		"username":        username,
		"recommendations": recs,
	}, http.StatusOK)
}
