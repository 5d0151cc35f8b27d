package handlers

import (
	"net/http"
	"strings"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
	"moviegraph/internal/utils"
)

const maxSearchLimit = 100

type MovieHandler struct {
	store   database.Store
	resolve resolver
	errors  *apperrors.ErrorHandler
}

func NewMovieHandler(store database.Store, errs *apperrors.ErrorHandler) *MovieHandler {
	return &MovieHandler{store: store, resolve: resolver{store: store}, errors: errs}
}

func (h *MovieHandler) ListMovies(w http.ResponseWriter, r *http.Request) {
	page, err := utils.GetPage(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	filter, err := movieFilter(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	movies, err := h.store.ListMovies(r.Context(), filter, page)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, movies, http.StatusOK)
}

// movieFilter reads ?genre= and ?year=.
func movieFilter(r *http.Request) (types.MovieFilter, error) {
	year, err := utils.GetQueryParamInt(r, "year", 0)
	if err != nil {
		return types.MovieFilter{}, err
	}
	if year < 0 {
		return types.MovieFilter{}, apperrors.NewValidationError("year must not be negative")
	}
	return types.MovieFilter{
		Genre: strings.TrimSpace(utils.GetQueryParam(r, "genre", "")),
		Year:  year,
	}, nil
}

func (h *MovieHandler) SearchMovies(w http.ResponseWriter, r *http.Request) {
	q, limit, fuzzy, err := searchParams(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	matches, err := h.store.SearchMovies(r.Context(), q, limit, fuzzy)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, matches, http.StatusOK)
}

// searchParams reads ?q=, ?limit= and ?fuzzy= (default true).
func searchParams(r *http.Request) (string, int, bool, error) {
	q, err := utils.RequireQuery(r, "q")
	if err != nil {
		return "", 0, false, err
	}
	limit, err := utils.GetLimit(r, database.DefaultSearchLimit, maxSearchLimit)
	if err != nil {
		return "", 0, false, err
	}
	fuzzy, err := utils.GetQueryParamBool(r, "fuzzy", true)
	if err != nil {
		return "", 0, false, err
	}
	return q, limit, fuzzy, nil
}

func (h *MovieHandler) GetMovie(w http.ResponseWriter, r *http.Request) {
	m, similarity, err := h.resolve.movie(r.Context(), utils.GetPathParam(r, "ref"), true)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	detail, err := h.store.GetMovieDetail(r.Context(), m.ID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	detail.Similarity = similarity
	utils.RespondJSON(w, detail, http.StatusOK)
}

func (h *MovieHandler) GetMovieActors(w http.ResponseWriter, r *http.Request) {
	m, _, err := h.resolve.movie(r.Context(), utils.GetPathParam(r, "ref"), true)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	cast, err := h.store.MovieCast(r.Context(), m.ID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, map[string]any{"movie": m.Title, "actors": cast}, http.StatusOK)
}

func (h *MovieHandler) CreateMovie(w http.ResponseWriter, r *http.Request) {
	var in types.MovieInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	detail, err := h.store.CreateMovie(r.Context(), in)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, detail, http.StatusCreated)
}

func (h *MovieHandler) UpdateMovie(w http.ResponseWriter, r *http.Request) {
	var upd types.MovieUpdate
	if err := utils.DecodeJSON(r, &upd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	m, _, err := h.resolve.movie(r.Context(), utils.GetPathParam(r, "ref"), false)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	detail, err := h.store.UpdateMovie(r.Context(), m.ID, upd)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, detail, http.StatusOK)
}

func (h *MovieHandler) DeleteMovie(w http.ResponseWriter, r *http.Request) {
	m, _, err := h.resolve.movie(r.Context(), utils.GetPathParam(r, "ref"), false)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	if err := h.store.DeleteMovie(r.Context(), m.ID); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MovieHandler) AddActor(w http.ResponseWriter, r *http.Request) {
	var req types.AddActorRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	m, _, err := h.resolve.movie(r.Context(), utils.GetPathParam(r, "ref"), false)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	if err := h.store.AddActor(r.Context(), m.ID, req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	cast, err := h.store.MovieCast(r.Context(), m.ID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, map[string]any{"movie": m.Title, "actors": cast}, http.StatusCreated)
}
