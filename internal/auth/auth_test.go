package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/types"
)

var testTokenConfig = TokenConfig{
	Secret:   strings.Repeat("k", 32),
	Issuer:   "moviegraph",
	Audience: "moviegraph-api",
	TTL:      time.Hour,
}

type fakeUsers map[string]*types.User

func (f fakeUsers) GetUserByUsername(ctx context.Context, username string) (*types.User, error) {
	if u, ok := f[username]; ok {
		return u, nil
	}
	return nil, apperrors.NewNotFoundError("user")
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("pw123", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, VerifyPassword(hash, "pw123"))
	assert.False(t, VerifyPassword(hash, "pw124"))
	assert.False(t, VerifyPassword("", "pw123"))
}

func TestTokenRoundTrip(t *testing.T) {
	// Arrange
	issuer, err := NewTokenIssuer(testTokenConfig)
	require.NoError(t, err)
	v, err := NewValidator(testTokenConfig)
	require.NoError(t, err)

	// Act
	token, err := issuer.Issue(&types.User{Username: "alice", Role: types.RoleUser})
	require.NoError(t, err)
	raw, err := v.ValidateToken(context.Background(), token)

	// Assert
	require.NoError(t, err)
	claims := raw.(*validator.ValidatedClaims)
	assert.Equal(t, "alice", claims.RegisteredClaims.Subject)
	assert.Equal(t, types.RoleUser, claims.CustomClaims.(*CustomClaims).Role)
}

func TestValidator_Rejects(t *testing.T) {
	v, err := NewValidator(testTokenConfig)
	require.NoError(t, err)

	sign := func(secret string, claims jwt.Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return s
	}
	base := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "alice",
			Issuer:    testTokenConfig.Issuer,
			Audience:  jwt.ClaimStrings{testTokenConfig.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
	}

	expired := base()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	wrongAudience := base()
	wrongAudience.Audience = jwt.ClaimStrings{"someone-else"}

	tests := map[string]string{
		"wrong secret":   sign(strings.Repeat("x", 32), base()),
		"expired":        sign(testTokenConfig.Secret, expired),
		"wrong audience": sign(testTokenConfig.Secret, wrongAudience),
		"garbage":        "not-a-token",
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(context.Background(), token)
			assert.Error(t, err)
		})
	}
}

func newTestMiddleware(t *testing.T, users fakeUsers) (*Middleware, *TokenIssuer) {
	t.Helper()
	v, err := NewValidator(testTokenConfig)
	require.NoError(t, err)
	issuer, err := NewTokenIssuer(testTokenConfig)
	require.NoError(t, err)
	return NewMiddleware(v, users, apperrors.NewErrorHandler(zap.NewNop(), false), zap.NewNop()), issuer
}

func TestMiddleware_RequireAuth(t *testing.T) {
	alice := &types.User{ID: "u1", Username: "alice", Role: types.RoleUser}
	mw, issuer := newTestMiddleware(t, fakeUsers{"alice": alice})

	var seen *types.User
	handler := mw.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid token loads user", func(t *testing.T) {
		token, err := issuer.Issue(alice)
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		assert.Equal(t, "u1", seen.ID)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	})

	t.Run("deleted user", func(t *testing.T) {
		token, err := issuer.Issue(&types.User{Username: "ghost", Role: types.RoleUser})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestMiddleware_OptionalAuth(t *testing.T) {
	mw, _ := newTestMiddleware(t, fakeUsers{})

	called := false
	handler := mw.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, err := GetUserFromContext(r.Context())
		assert.Error(t, err)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/watchlists/abc", nil))
	assert.True(t, called)

	req := httptest.NewRequest(http.MethodGet, "/watchlists/abc", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
