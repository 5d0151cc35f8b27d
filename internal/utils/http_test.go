package utils

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/types"
)

func TestGetPage(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    types.Page
		wantErr bool
	}{
		{name: "defaults", query: "", want: types.Page{Limit: DefaultPageLimit, Skip: 0}},
		{name: "explicit", query: "?limit=5&skip=10", want: types.Page{Limit: 5, Skip: 10}},
		{name: "limit too large", query: "?limit=1000", wantErr: true},
		{name: "limit zero", query: "?limit=0", wantErr: true},
		{name: "negative skip", query: "?skip=-1", wantErr: true},
		{name: "non numeric", query: "?limit=ten", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/movies"+tt.query, nil)

			page, err := GetPage(req)

			if tt.wantErr {
				assert.True(t, apperrors.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, page)
		})
	}
}

func TestRequireQuery(t *testing.T) {
	_, err := RequireQuery(httptest.NewRequest(http.MethodGet, "/movies/search?q=%20%20", nil), "q")
	assert.True(t, apperrors.IsValidation(err))

	q, err := RequireQuery(httptest.NewRequest(http.MethodGet, "/movies/search?q=+matrix+", nil), "q")
	require.NoError(t, err)
	assert.Equal(t, "matrix", q)
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid movie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/movies", strings.NewReader(`{"title":"Heat","year":1995}`))
		var in types.MovieInput

		require.NoError(t, DecodeJSON(req, &in))
		assert.Equal(t, "Heat", in.Title)
		assert.Equal(t, 1995, in.Year)
	})

	t.Run("year out of range reports json field name", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/movies", strings.NewReader(`{"title":"Heat","year":1700}`))
		var in types.MovieInput

		err := DecodeJSON(req, &in)

		appErr := apperrors.GetAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, apperrors.ErrorTypeValidation, appErr.Type)
		fields := appErr.Details["fields"].(map[string]any)
		assert.Contains(t, fields, "year")
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/movies", strings.NewReader(""))
		var in types.MovieInput

		assert.True(t, apperrors.IsValidation(DecodeJSON(req, &in)))
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/movies", strings.NewReader(`{"title":"Heat","year":1995,"budget":1}`))
		var in types.MovieInput

		assert.True(t, apperrors.IsValidation(DecodeJSON(req, &in)))
	})
}

func TestValidate_Rating(t *testing.T) {
	rating := func(v int) *int { return &v }

	tests := []struct {
		name  string
		req   types.ReviewRequest
		valid bool
	}{
		{name: "zero allowed", req: types.ReviewRequest{MovieTitle: "Heat", Rating: rating(0)}, valid: true},
		{name: "ten allowed", req: types.ReviewRequest{MovieID: "m1", Rating: rating(10)}, valid: true},
		{name: "eleven rejected", req: types.ReviewRequest{MovieTitle: "Heat", Rating: rating(11)}},
		{name: "negative rejected", req: types.ReviewRequest{MovieTitle: "Heat", Rating: rating(-1)}},
		{name: "missing rating", req: types.ReviewRequest{MovieTitle: "Heat"}},
		{name: "missing movie", req: types.ReviewRequest{Rating: rating(5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.req)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperrors.IsValidation(err))
			}
		})
	}
}

func TestValidate_Username(t *testing.T) {
	ok := types.RegisterRequest{Username: "alice_01", Password: "pw1234"}
	bad := types.RegisterRequest{Username: "alice smith", Password: "pw1234"}

	assert.NoError(t, Validate(ok))
	assert.True(t, apperrors.IsValidation(Validate(bad)))
}
