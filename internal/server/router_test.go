package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/auth"
	"moviegraph/internal/database"
	"moviegraph/internal/database/sqlite"
	"moviegraph/internal/services"
	"moviegraph/internal/types"
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
	store   *sqlite.Store
}

func newTestAPI(t *testing.T, configure ...func(*Deps)) *testAPI {
	t.Helper()
	logger := zap.NewNop()

	store, err := sqlite.Open(context.Background(), "file:"+uuid.NewString()+"?mode=memory&cache=shared",
		database.Options{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })

	tokens := auth.TokenConfig{
		Secret:   strings.Repeat("s", 32),
		Issuer:   "moviegraph",
		Audience: "moviegraph-api",
		TTL:      time.Hour,
	}
	issuer, err := auth.NewTokenIssuer(tokens)
	require.NoError(t, err)
	validator, err := auth.NewValidator(tokens)
	require.NoError(t, err)
	enforcer, err := auth.NewEnforcer()
	require.NoError(t, err)

	errs := apperrors.NewErrorHandler(logger, false)
	deps := Deps{
		Store:      store,
		Issuer:     issuer,
		Auth:       auth.NewMiddleware(validator, store, errs, logger),
		Enforcer:   enforcer,
		Importer:   services.NewImporter(store, nil, nil, services.ImportOptions{}, logger),
		Errors:     errs,
		Registry:   prometheus.NewRegistry(),
		Logger:     logger,
		BcryptCost: bcrypt.MinCost,
	}
	for _, fn := range configure {
		fn(&deps)
	}
	handler := NewRouter(deps)

	hash, err := auth.HashPassword("admin-pw", bcrypt.MinCost)
	require.NoError(t, err)
	_, err = store.CreateUser(context.Background(), &types.User{Username: "admin", PasswordHash: hash, Role: types.RoleAdmin})
	require.NoError(t, err)

	return &testAPI{t: t, handler: handler, store: store}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		req = httptest.NewRequest(method, path, strings.NewReader(string(raw)))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) login(username, password string) string {
	a.t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[types.TokenResponse](a.t, rec).AccessToken
}

func (a *testAPI) member(username string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/register", "", map[string]string{"username": username, "password": "secret1"})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return a.login(username, "secret1")
}

func (a *testAPI) createMovie(token string, body map[string]any) types.MovieDetail {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/movies", token, body)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[types.MovieDetail](a.t, rec)
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[apperrors.ErrorResponse](t, rec).Message
}

func TestRegisterAndLogin(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/register", "", map[string]string{
		"username": "alice", "password": "secret1", "role": "admin",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, types.RegisterResponse{Username: "alice", Role: types.RoleUser}, decode[types.RegisterResponse](t, rec))

	rec = api.do(http.MethodPost, "/register", "", map[string]string{"username": "alice", "password": "other12"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	token := api.login("alice", "secret1")
	rec = api.do(http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[types.User](t, rec)
	assert.Equal(t, "alice", me.Username)
	assert.Equal(t, types.RoleUser, me.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	for _, creds := range []map[string]string{
		{"username": "alice", "password": "wrong-pw"},
		{"username": "nobody", "password": "secret1"},
	} {
		rec = api.do(http.MethodPost, "/login", "", creds)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Incorrect username or password", errorMessage(t, rec))
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodPost, "/reviews", "", map[string]any{}).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/me", "not-a-token", nil).Code)
}

func TestReviewUpsertKeepsOneEntry(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")
	alice := api.member("alice")
	api.createMovie(admin, map[string]any{"title": "Inception", "year": 2010})

	rec := api.do(http.MethodPost, "/reviews", alice, map[string]any{"movie_title": "Inception", "rating": 8})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/reviews", alice, map[string]any{"movie_title": "Inception", "rating": 5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/reviews/Inception", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Reviews []types.Review `json:"reviews"`
		Count   int            `json:"count"`
	}](t, rec)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Reviews, 1)
	assert.Equal(t, 5, body.Reviews[0].Rating)
	assert.Equal(t, "alice", body.Reviews[0].Username)

	rec = api.do(http.MethodPost, "/reviews", alice, map[string]any{"movie_title": "Inception", "rating": 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewRoles(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")
	api.createMovie(admin, map[string]any{"title": "Heat", "year": 1995})

	rec := api.do(http.MethodPost, "/reviews", admin, map[string]any{"movie_title": "Heat", "rating": 9})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Administrators cannot leave reviews", errorMessage(t, rec))

	vic := api.member("vic")
	rec = api.do(http.MethodPut, "/users/vic/role", admin, map[string]string{"role": types.RoleVisitor})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// vic still holds a token issued before the demotion.
	rec = api.do(http.MethodPost, "/reviews", vic, map[string]any{"movie_title": "Heat", "rating": 9})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Only members can leave reviews", errorMessage(t, rec))
}

func TestLastAdminCannotBeDemoted(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")

	rec := api.do(http.MethodPut, "/users/admin/role", admin, map[string]string{"role": types.RoleUser})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Cannot remove the last administrator", errorMessage(t, rec))

	rec = api.do(http.MethodGet, "/users", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "admin keeps access to user management")

	api.member("root2")
	rec = api.do(http.MethodPut, "/users/root2/role", admin, map[string]string{"role": types.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = api.do(http.MethodPut, "/users/admin/role", admin, map[string]string{"role": types.RoleUser})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestCatalogWritesAreAdminOnly(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")
	alice := api.member("alice")
	api.createMovie(admin, map[string]any{"title": "Zodiac", "year": 2007})

	rec := api.do(http.MethodDelete, "/movies/Zodiac", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Admin privileges required", errorMessage(t, rec))
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/movies/Zodiac", "", nil).Code)

	rec = api.do(http.MethodPost, "/movies", alice, map[string]any{"title": "Alien", "year": 1979})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = api.do(http.MethodPost, "/persons", alice, map[string]any{"name": "Sigourney Weaver"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, "/users", alice, nil).Code)

	assert.Equal(t, http.StatusNoContent, api.do(http.MethodDelete, "/movies/Zodiac", admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/movies/Zodiac", "", nil).Code)
}

func TestFuzzyMovieLookup(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")
	api.createMovie(admin, map[string]any{"title": "The Matrix", "year": 1999})

	rec := api.do(http.MethodGet, "/movies/The%20Matrx", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	detail := decode[types.MovieDetail](t, rec)
	assert.Equal(t, "The Matrix", detail.Title)
	assert.Greater(t, detail.Similarity, 0.5)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/movies/Casablanca", "", nil).Code)
}

func TestSimilarMoviesShareCast(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")
	api.createMovie(admin, map[string]any{
		"title": "Movie A", "year": 2001,
		"actors": []map[string]any{{"name": "Actor X", "roles": []string{"Hero"}}},
	})
	api.createMovie(admin, map[string]any{
		"title": "Movie B", "year": 2003,
		"actors": []map[string]any{{"name": "Actor X", "roles": []string{"Villain"}}},
	})

	rec := api.do(http.MethodGet, "/recommend/movies/similar/Movie%20A", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Recommendations []types.Recommendation `json:"recommendations"`
	}](t, rec)
	require.NotEmpty(t, body.Recommendations)
	assert.Equal(t, "Movie B", body.Recommendations[0].Title)
	assert.GreaterOrEqual(t, body.Recommendations[0].Score, 1)
}

func TestUserRecommendationsAreSelfOrAdmin(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")
	alice := api.member("alice")
	bob := api.member("bob")
	for _, title := range []string{"Alien", "Aliens"} {
		api.createMovie(admin, map[string]any{"title": title, "year": 1986})
	}

	api.do(http.MethodPost, "/reviews", alice, map[string]any{"movie_title": "Alien", "rating": 9})
	api.do(http.MethodPost, "/reviews", bob, map[string]any{"movie_title": "Alien", "rating": 7})
	api.do(http.MethodPost, "/reviews", bob, map[string]any{"movie_title": "Aliens", "rating": 8})

	rec := api.do(http.MethodGet, "/recommend/movies/alice", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[struct {
		Recommendations []types.Recommendation `json:"recommendations"`
	}](t, rec)
	require.Len(t, body.Recommendations, 1)
	assert.Equal(t, "Aliens", body.Recommendations[0].Title)

	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, "/recommend/movies/alice", bob, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/recommend/movies/alice", admin, nil).Code)
}

func TestUserStatsAreSelfOrAdmin(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")
	alice := api.member("alice")
	bob := api.member("bob")
	api.createMovie(admin, map[string]any{"title": "Heat", "year": 1995, "genres": []string{"Crime"}})
	api.createMovie(admin, map[string]any{"title": "Arrival", "year": 2016, "genres": []string{"Drama"}})

	api.do(http.MethodPost, "/reviews", alice, map[string]any{"movie_title": "Heat", "rating": 9})
	api.do(http.MethodPost, "/reviews", alice, map[string]any{"movie_title": "Arrival", "rating": 6})

	rec := api.do(http.MethodGet, "/users/alice/stats", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decode[types.UserStats](t, rec)
	assert.Equal(t, 2, stats.TotalRatings)
	require.NotNil(t, stats.AvgRating)
	assert.InDelta(t, 7.5, *stats.AvgRating, 1e-9)
	assert.ElementsMatch(t, []string{"Crime", "Drama"}, stats.FavoriteGenres)

	rec = api.do(http.MethodGet, "/users/alice/stats", bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You can only access your own account", errorMessage(t, rec))
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/users/alice/stats", admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/users/ghost/stats", admin, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/users/alice/stats", "", nil).Code)
}

func TestMovieListFiltersAndRatings(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")
	alice := api.member("alice")
	api.createMovie(admin, map[string]any{"title": "Heat", "year": 1995, "genres": []string{"Crime"}})
	api.createMovie(admin, map[string]any{"title": "Arrival", "year": 2016, "genres": []string{"Drama"}})
	api.do(http.MethodPost, "/reviews", alice, map[string]any{"movie_title": "Heat", "rating": 8})

	rec := api.do(http.MethodGet, "/movies?genre=crime", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	movies := decode[[]types.MovieSummary](t, rec)
	require.Len(t, movies, 1)
	assert.Equal(t, "Heat", movies[0].Title)
	assert.Equal(t, 1, movies[0].RatingCount)
	require.NotNil(t, movies[0].AvgRating)
	assert.InDelta(t, 8.0, *movies[0].AvgRating, 1e-9)

	rec = api.do(http.MethodGet, "/movies/Arrival", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"avg_rating":null`)
	assert.Contains(t, rec.Body.String(), `"rating_count":0`)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/movies?year=soon", "", nil).Code)
}

func TestPrivateWatchlist(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")
	alice := api.member("alice")
	bob := api.member("bob")
	api.createMovie(admin, map[string]any{"title": "Arrival", "year": 2016})

	rec := api.do(http.MethodPost, "/watchlists", alice, map[string]any{"name": "Later", "is_public": false})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	list := decode[types.Watchlist](t, rec)

	rec = api.do(http.MethodPost, "/watchlists/"+list.ID+"/movies", alice, map[string]any{"movie_title": "Arrival"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	path := "/watchlists/" + list.ID
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, path, alice, nil).Code)
	rec = api.do(http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "This watchlist is private", errorMessage(t, rec))
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, path, "", nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodDelete, path, bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/watchlists/"+uuid.NewString(), alice, nil).Code)

	rec = api.do(http.MethodGet, "/watchlists/movie/Arrival/check", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	check := decode[struct {
		InAny bool `json:"in_any"`
	}](t, rec)
	assert.True(t, check.InAny)
}

func TestImportsRequireAdminAndConfiguration(t *testing.T) {
	api := newTestAPI(t)
	admin := api.login("admin", "admin-pw")
	alice := api.member("alice")

	body := map[string]any{"query": "inception"}
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodPost, "/imports/tmdb", alice, body).Code)
	assert.Equal(t, http.StatusServiceUnavailable, api.do(http.MethodPost, "/imports/tmdb", admin, body).Code)
	assert.Equal(t, http.StatusServiceUnavailable, api.do(http.MethodPost, "/imports/plex", admin, map[string]any{}).Code)
}

func TestHealthStatsAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]string{"status": "healthy", "database": "connected"}, decode[map[string]string](t, rec))

	rec = api.do(http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[types.Stats](t, rec).Users)

	rec = api.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `moviegraph_http_requests_total{method="GET",route="/health",status_code="200"} 1`)

	rec = api.do(http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func loginFrom(handler http.Handler, forwardedFor string) int {
	form := url.Values{"username": {"nobody"}, "password": {"wrong-pw"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthRateLimitIgnoresForwardedFor(t *testing.T) {
	api := newTestAPI(t, func(d *Deps) {
		d.AuthRateLimit = 2
		d.AuthRateWindow = time.Minute
	})

	assert.Equal(t, http.StatusBadRequest, loginFrom(api.handler, "203.0.113.1"))
	assert.Equal(t, http.StatusBadRequest, loginFrom(api.handler, "203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(api.handler, "203.0.113.3"))
}

func TestAuthRateLimitTrustsProxyWhenConfigured(t *testing.T) {
	api := newTestAPI(t, func(d *Deps) {
		d.AuthRateLimit = 2
		d.AuthRateWindow = time.Minute
		d.TrustProxyHeaders = true
	})

	for i := 1; i <= 3; i++ {
		assert.Equal(t, http.StatusBadRequest, loginFrom(api.handler, fmt.Sprintf("203.0.113.%d", i)))
	}
	assert.Equal(t, http.StatusBadRequest, loginFrom(api.handler, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, loginFrom(api.handler, "203.0.113.1"))
}
