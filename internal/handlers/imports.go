package handlers

import (
	"net/http"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/services"
	"moviegraph/internal/types"
	"moviegraph/internal/utils"
)

type ImportHandler struct {
	importer *services.Importer
	errors   *apperrors.ErrorHandler
}

func NewImportHandler(importer *services.Importer, errs *apperrors.ErrorHandler) *ImportHandler {
	return &ImportHandler{importer: importer, errors: errs}
}

func (h *ImportHandler) ImportTMDB(w http.ResponseWriter, r *http.Request) {
	var req types.TMDBImportRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.importer.ImportTMDB(r.Context(), req)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, result, http.StatusOK)
}

func (h *ImportHandler) ImportPlex(w http.ResponseWriter, r *http.Request) {
	var req types.PlexImportRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.importer.ImportPlex(r.Context(), req)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, result, http.StatusOK)
}
