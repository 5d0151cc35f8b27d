package handlers

import (
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/auth"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
	"moviegraph/internal/utils"
)

const badCredentials = "Incorrect username or password"

type AuthHandler struct {
	users      database.UserStore
	issuer     *auth.TokenIssuer
	bcryptCost int
	errors     *apperrors.ErrorHandler
	logger     *zap.Logger
}

func NewAuthHandler(users database.UserStore, issuer *auth.TokenIssuer, bcryptCost int, errs *apperrors.ErrorHandler, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, issuer: issuer, bcryptCost: bcryptCost, errors: errs, logger: logger}
}

// Register creates a member account. Any requested role is ignored; roles
// are changed by administrators only.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	hash, err := auth.HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		h.errors.Handle(w, r, apperrors.NewInternalError("registration failed").WithCause(err))
		return
	}

	user, err := h.users.CreateUser(r.Context(), &types.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         types.RoleUser,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	if req.Role != "" && req.Role != types.RoleUser {
		h.logger.Info("ignored requested role at registration",
			zap.String("username", user.Username), zap.String("requested_role", req.Role))
	}

	utils.RespondJSON(w, types.RegisterResponse{Username: user.Username, Role: user.Role}, http.StatusCreated)
}

// Login accepts form-encoded or JSON credentials and returns a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLogin(r)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if err != nil && !apperrors.IsNotFound(err) {
		h.errors.Handle(w, r, err)
		return
	}

	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if !auth.VerifyPassword(hash, req.Password) {
		h.errors.Handle(w, r, apperrors.NewValidationError(badCredentials))
		return
	}

	token, err := h.issuer.Issue(user)
	if err != nil {
		h.errors.Handle(w, r, apperrors.NewInternalError("login failed").WithCause(err))
		return
	}

	utils.RespondJSON(w, types.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.issuer.TTL().Seconds()),
		Username:    user.Username,
		Role:        user.Role,
	}, http.StatusOK)
}

func decodeLogin(r *http.Request) (types.LoginRequest, error) {
	var req types.LoginRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := utils.DecodeJSON(r, &req); err != nil {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, apperrors.NewValidationError("invalid form body").WithCause(err)
	}
	req.Username = strings.TrimSpace(r.PostForm.Get("username"))
	req.Password = r.PostForm.Get("password")
	return req, utils.Validate(req)
}
