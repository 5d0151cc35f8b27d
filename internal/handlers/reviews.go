package handlers

import (
	"net/http"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/auth"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
	"moviegraph/internal/utils"
)

type ReviewHandler struct {
	store    database.Store
	resolve  resolver
	enforcer *auth.Enforcer
	errors   *apperrors.ErrorHandler
}

func NewReviewHandler(store database.Store, enforcer *auth.Enforcer, errs *apperrors.ErrorHandler) *ReviewHandler {
	return &ReviewHandler{store: store, resolve: resolver{store: store}, enforcer: enforcer, errors: errs}
}

// CreateReview stores the caller's rating for a movie, replacing any earlier
// one. It answers 201 for a new review and 200 for a replaced one.
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := h.canReview(user); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	var req types.ReviewRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	m, err := h.resolve.movieByBody(r.Context(), req.MovieID, req.MovieTitle)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	review, created, err := h.store.UpsertReview(r.Context(), user.Username, m.ID, *req.Rating, req.Comment)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	utils.RespondJSON(w, review, status)
}

func (h *ReviewHandler) canReview(user *types.User) error {
	ok, err := h.enforcer.Allowed(user.Role, auth.ObjReviews, auth.ActWrite)
	if err != nil {
		return apperrors.NewInternalError("authorization failed").WithCause(err)
	}
	if ok {
		return nil
	}
	if user.Role == types.RoleAdmin {
		return apperrors.NewForbiddenError("Administrators cannot leave reviews")
	}
	return apperrors.NewForbiddenError("Only members can leave reviews")
}

func (h *ReviewHandler) GetReviews(w http.ResponseWriter, r *http.Request) {
	m, _, err := h.resolve.movie(r.Context(), utils.GetPathParam(r, "movie"), false)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	reviews, err := h.store.ListReviews(r.Context(), m.ID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, map[string]any{
		"movie_id":    m.ID,
		"movie_title": m.Title,
		"reviews":     reviews,
		"count":       len(reviews),
	}, http.StatusOK)
}

func (h *ReviewHandler) GetReviewStats(w http.ResponseWriter, r *http.Request) {
	m, _, err := h.resolve.movie(r.Context(), utils.GetPathParam(r, "movie"), false)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	stats, err := h.store.ReviewStats(r.Context(), m.ID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, stats, http.StatusOK)
}

func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	m, _, err := h.resolve.movie(r.Context(), utils.GetPathParam(r, "movie"), false)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	if err := h.store.DeleteReview(r.Context(), user.Username, m.ID); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
