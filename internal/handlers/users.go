package handlers

import (
	"net/http"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/auth"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
	"moviegraph/internal/utils"
)

type UserHandler struct {
	store    database.Store
	enforcer *auth.Enforcer
	errors   *apperrors.ErrorHandler
}

func NewUserHandler(store database.Store, enforcer *auth.Enforcer, errs *apperrors.ErrorHandler) *UserHandler {
	return &UserHandler{store: store, enforcer: enforcer, errors: errs}
}

func (h *UserHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, user, http.StatusOK)
}

func (h *UserHandler) GetCurrentUserReviews(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	reviews, err := h.store.UserReviews(r.Context(), user.Username)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, map[string]any{"reviews": reviews, "count": len(reviews)}, http.StatusOK)
}

func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	page, err := utils.GetPage(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	users, err := h.store.ListUsers(r.Context(), page)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, users, http.StatusOK)
}

// GetUser returns a profile to its owner or to an administrator.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	username := utils.GetPathParam(r, "username")
	if err := selfOrAllowed(r, h.enforcer, username, auth.ObjUsers); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), username)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, user, http.StatusOK)
}

// GetUserStats summarizes the reviews of a user for the user or an administrator.
func (h *UserHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	username := utils.GetPathParam(r, "username")
	if err := selfOrAllowed(r, h.enforcer, username, auth.ObjUsers); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	stats, err := h.store.UserStats(r.Context(), username)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, stats, http.StatusOK)
}

func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateRoleRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	user, err := h.store.SetUserRole(r.Context(), utils.GetPathParam(r, "username"), req.Role)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	utils.RespondJSON(w, user, http.StatusOK)
}

// selfOrAllowed lets the request through when it concerns the caller's own
// account or the caller's role may read any account of object.
func selfOrAllowed(r *http.Request, enforcer *auth.Enforcer, username, object string) error {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		return err
	}
	if user.Username == username {
		return nil
	}

	ok, err := enforcer.Allowed(user.Role, object, auth.ActReadAny)
	if err != nil {
		return apperrors.NewInternalError("authorization failed").WithCause(err)
	}
	if !ok {
		return apperrors.NewForbiddenError("You can only access your own account")
	}
	return nil
}
