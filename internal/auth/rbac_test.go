package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/types"
)

func TestEnforcer_Policy(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)

	tests := []struct {
		role, obj, act string
		want           bool
	}{
		{types.RoleAdmin, ObjMovies, ActWrite, true},
		{types.RoleUser, ObjMovies, ActWrite, false},
		{types.RoleVisitor, ObjMovies, ActWrite, false},
		{types.RoleAdmin, ObjPersons, ActWrite, true},
		{types.RoleUser, ObjPersons, ActWrite, false},
		{types.RoleUser, ObjReviews, ActWrite, true},
		{types.RoleAdmin, ObjReviews, ActWrite, false},
		{types.RoleVisitor, ObjReviews, ActWrite, false},
		{types.RoleUser, ObjWatchlists, ActWrite, true},
		{types.RoleAdmin, ObjWatchlists, ActWrite, true},
		{types.RoleVisitor, ObjWatchlists, ActWrite, false},
		{types.RoleAdmin, ObjUsers, ActManage, true},
		{types.RoleUser, ObjUsers, ActManage, false},
		{types.RoleAdmin, ObjImports, ActRun, true},
		{types.RoleUser, ObjRecommendations, ActReadAny, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.obj+"/"+tt.act, func(t *testing.T) {
			got, err := e.Allowed(tt.role, tt.obj, tt.act)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnforcer_Authorize(t *testing.T) {
	e, err := NewEnforcer()
	require.NoError(t, err)
	errs := apperrors.NewErrorHandler(zap.NewNop(), false)

	handler := e.Authorize(ObjMovies, ActWrite, "Admin privileges required", errs)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}),
	)

	serve := func(user *types.User) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/movies", nil)
		if user != nil {
			req = req.WithContext(WithUser(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusCreated, serve(&types.User{Username: "root", Role: types.RoleAdmin}).Code)

	rec := serve(&types.User{Username: "alice", Role: types.RoleUser})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Admin privileges required")

	assert.Equal(t, http.StatusUnauthorized, serve(nil).Code)
}
