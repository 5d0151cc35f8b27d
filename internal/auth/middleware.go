package auth

import (
	"context"
	"errors"
	"net/http"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"go.uber.org/zap"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/types"
)

type contextKey struct{}

// UserLookup resolves a token subject to the stored user.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
}

// Middleware authenticates requests with bearer tokens and loads the
// current user from the store, so role changes apply immediately.
type Middleware struct {
	required *jwtmiddleware.JWTMiddleware
	optional *jwtmiddleware.JWTMiddleware
	users    UserLookup
	errors   *apperrors.ErrorHandler
	logger   *zap.Logger
}

func NewMiddleware(v *validator.Validator, users UserLookup, errs *apperrors.ErrorHandler, logger *zap.Logger) *Middleware {
	m := &Middleware{users: users, errors: errs, logger: logger}

	m.required = jwtmiddleware.New(v.ValidateToken, jwtmiddleware.WithErrorHandler(m.unauthorized))
	m.optional = jwtmiddleware.New(v.ValidateToken,
		jwtmiddleware.WithErrorHandler(m.unauthorized),
		jwtmiddleware.WithCredentialsOptional(true),
	)
	return m
}

// RequireAuth rejects requests without a valid token for an existing user.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return m.required.CheckJWT(m.loadUser(next, true))
}

// OptionalAuth loads the user when a token is present. A present but
// invalid token is still rejected.
func (m *Middleware) OptionalAuth(next http.Handler) http.Handler {
	return m.optional.CheckJWT(m.loadUser(next, false))
}

func (m *Middleware) loadUser(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFromContext(r.Context())
		if !ok {
			if required {
				m.unauthorized(w, r, jwtmiddleware.ErrJWTMissing)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.users.GetUserByUsername(r.Context(), claims.RegisteredClaims.Subject)
		if err != nil {
			if apperrors.IsNotFound(err) {
				m.unauthorized(w, r, errors.New("token subject no longer exists"))
				return
			}
			m.errors.Handle(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (m *Middleware) unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	m.logger.Debug("rejected bearer token", zap.Error(err), zap.String("path", r.URL.Path))
	w.Header().Set("WWW-Authenticate", "Bearer")
	m.errors.HandleStatus(w, r, http.StatusUnauthorized, "Invalid or missing token")
}

// WithUser stores user in ctx.
func WithUser(ctx context.Context, user *types.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// GetUserFromContext returns the authenticated user.
func GetUserFromContext(ctx context.Context) (*types.User, error) {
	user, ok := ctx.Value(contextKey{}).(*types.User)
	if !ok || user == nil {
		return nil, apperrors.NewUnauthorizedError("Invalid or missing token")
	}
	return user, nil
}
