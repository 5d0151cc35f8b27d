package handlers

import (
	"net/http"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
	"moviegraph/internal/utils"
)

type PersonHandler struct {
	store   database.Store
	resolve resolver
	errors  *apperrors.ErrorHandler
}

func NewPersonHandler(store database.Store, errs *apperrors.ErrorHandler) *PersonHandler {
	return &PersonHandler{store: store, resolve: resolver{store: store}, errors: errs}
}

func (h *PersonHandler) ListPersons(w http.ResponseWriter, r *http.Request) {
	page, err := utils.GetPage(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	persons, err := h.store.ListPersons(r.Context(), page)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, persons, http.StatusOK)
}

func (h *PersonHandler) SearchPersons(w http.ResponseWriter, r *http.Request) {
	q, limit, fuzzy, err := searchParams(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	matches, err := h.store.SearchPersons(r.Context(), q, limit, fuzzy)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, matches, http.StatusOK)
}

func (h *PersonHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	p, similarity, err := h.resolve.person(r.Context(), utils.GetPathParam(r, "ref"), true)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	detail, err := h.store.GetPersonDetail(r.Context(), p.ID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	detail.Similarity = similarity
	utils.RespondJSON(w, detail, http.StatusOK)
}

func (h *PersonHandler) GetPersonMovies(w http.ResponseWriter, r *http.Request) {
	p, similarity, err := h.resolve.person(r.Context(), utils.GetPathParam(r, "ref"), true)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	credits, err := h.store.Filmography(r.Context(), p.ID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, map[string]any{
		"person":     p.Name,
		"similarity": similarity,
		"movies":     credits,
	}, http.StatusOK)
}

// GetCollaborations lists the movies two fuzzy-resolved people acted in together.
func (h *PersonHandler) GetCollaborations(w http.ResponseWriter, r *http.Request) {
	name1, err := utils.RequireQuery(r, "person1")
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	name2, err := utils.RequireQuery(r, "person2")
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	p1, sim1, err := h.resolve.person(r.Context(), name1, true)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	p2, sim2, err := h.resolve.person(r.Context(), name2, true)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if p1.ID == p2.ID {
		h.errors.Handle(w, r, apperrors.NewValidationError("person1 and person2 resolve to the same person"))
		return
	}

	movies, err := h.store.SharedMovies(r.Context(), p1.ID, p2.ID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, types.Collaboration{
		Person1:     p1.Name,
		Person2:     p2.Name,
		Movies:      movies,
		Count:       len(movies),
		Similarity1: sim1,
		Similarity2: sim2,
	}, http.StatusOK)
}

func (h *PersonHandler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var in types.PersonInput
	if err := utils.DecodeJSON(r, &in); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	p, err := h.store.CreatePerson(r.Context(), in)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, p, http.StatusCreated)
}

func (h *PersonHandler) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	var upd types.PersonUpdate
	if err := utils.DecodeJSON(r, &upd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	p, _, err := h.resolve.person(r.Context(), utils.GetPathParam(r, "ref"), false)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	updated, err := h.store.UpdatePerson(r.Context(), p.ID, upd)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, updated, http.StatusOK)
}

func (h *PersonHandler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	p, _, err := h.resolve.person(r.Context(), utils.GetPathParam(r, "ref"), false)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	if err := h.store.DeletePerson(r.Context(), p.ID); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
