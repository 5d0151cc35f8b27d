package handlers

import (
	"net/http"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/auth"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
	"moviegraph/internal/utils"
)

type WatchlistHandler struct {
	store   database.Store
	resolve resolver
	errors  *apperrors.ErrorHandler
}

func NewWatchlistHandler(store database.Store, errs *apperrors.ErrorHandler) *WatchlistHandler {
	return &WatchlistHandler{store: store, resolve: resolver{store: store}, errors: errs}
}

func (h *WatchlistHandler) CreateWatchlist(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	var in types.WatchlistInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	list, err := h.store.CreateWatchlist(r.Context(), user.Username, in)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, list, http.StatusCreated)
}

func (h *WatchlistHandler) GetWatchlists(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	lists, err := h.store.ListWatchlists(r.Context(), user.Username)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, lists, http.StatusOK)
}

func (h *WatchlistHandler) GetPublicWatchlists(w http.ResponseWriter, r *http.Request) {
	page, err := utils.GetPage(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	lists, err := h.store.PublicWatchlists(r.Context(), page)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, lists, http.StatusOK)
}

// GetWatchlist shows public lists to anyone and private lists to their owner.
func (h *WatchlistHandler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.GetWatchlist(r.Context(), utils.GetPathParam(r, "id"))
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	if !list.IsPublic {
		user, err := auth.GetUserFromContext(r.Context())
		if err != nil || user.Username != list.Username {
			h.errors.Handle(w, r, apperrors.NewForbiddenError("This watchlist is private"))
			return
		}
	}
	utils.RespondJSON(w, list, http.StatusOK)
}

func (h *WatchlistHandler) UpdateWatchlist(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	var in types.WatchlistInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	list, err := h.store.UpdateWatchlist(r.Context(), user.Username, utils.GetPathParam(r, "id"), in)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, list, http.StatusOK)
}

func (h *WatchlistHandler) DeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	if err := h.store.DeleteWatchlist(r.Context(), user.Username, utils.GetPathParam(r, "id")); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WatchlistHandler) AddMovie(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	var req types.WatchlistMovieRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	m, err := h.resolve.movieByBody(r.Context(), req.MovieID, req.MovieTitle)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	id := utils.GetPathParam(r, "id")
	if err := h.store.AddToWatchlist(r.Context(), user.Username, id, m.ID); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	list, err := h.store.GetWatchlist(r.Context(), id)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, list, http.StatusOK)
}

func (h *WatchlistHandler) RemoveMovie(w http.ResponseWriter, r *http.Request) {
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

	if err := h.store.RemoveFromWatchlist(r.Context(), user.Username, utils.GetPathParam(r, "id"), m.ID); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WatchlistHandler) CheckMovie(w http.ResponseWriter, r *http.Request) {
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

	refs, err := h.store.WatchlistsContaining(r.Context(), user.Username, m.ID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, map[string]any{
		"movie_id":   m.ID,
		"in_any":     len(refs) > 0,
		"watchlists": refs,
	}, http.StatusOK)
}
