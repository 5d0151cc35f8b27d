package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/database/sqlite"
	"moviegraph/internal/types"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), "file:"+uuid.NewString()+"?mode=memory&cache=shared",
		database.Options{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

const inceptionDetails = `{
	"id": 27205, "title": "Inception", "overview": "A thief who steals corporate secrets.",
	"release_date": "2010-07-15", "poster_path": "/inception.jpg", "runtime": 148,
	"tagline": "Your mind is the scene of the crime.",
	"genres": [{"id": 28, "name": "Action"}, {"id": 878, "name": "Science Fiction"}],
	"videos": {"results": [{"key": "abc", "site": "YouTube", "type": "Trailer"}]},
	"watch/providers": {"results": {
		"US": {"link": "https://www.themoviedb.org/movie/27205/watch", "flatrate": [{"provider_id": 8, "provider_name": "Netflix"}],
			"rent": [{"provider_id": 2, "provider_name": "Apple TV"}]},
		"DE": {"flatrate": [{"provider_id": 9, "provider_name": "Amazon Prime Video"}]}
	}}
}`

const inceptionCredits = `{
	"cast": [
		{"name": "Tom Hardy", "character": "Eames", "order": 2},
		{"name": "Leonardo DiCaprio", "character": "Cobb", "order": 0},
		{"name": "Joseph Gordon-Levitt", "character": "Arthur", "order": 1}
	],
	"crew": [
		{"name": "Christopher Nolan", "job": "Director"},
		{"name": "Christopher Nolan", "job": "Producer"},
		{"name": "Emma Thomas", "job": "Producer"},
		{"name": "Hans Zimmer", "job": "Original Music Composer"}
	]
}`

func newTMDBServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search/movie", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"page": 1, "results": [{"id": 27205, "title": "Inception"}, {"id": 99, "title": "Undated"}], "total_pages": 1}`)
	})
	mux.HandleFunc("/movie/27205", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "videos,watch/providers", r.URL.Query().Get("append_to_response"))
		fmt.Fprint(w, inceptionDetails)
	})
	mux.HandleFunc("/movie/27205/credits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, inceptionCredits)
	})
	mux.HandleFunc("/movie/99", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": 99, "title": "Undated", "release_date": ""}`)
	})
	mux.HandleFunc("/movie/99/credits", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"cast": [], "crew": []}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestImportTMDB_SearchAndUpsert(t *testing.T) {
	srv := newTMDBServer(t)
	store := newStore(t)
	client := NewTMDBClient("test-key", TMDBOptions{BaseURL: srv.URL, RateRPS: 1000}, zap.NewNop())
	importer := NewImporter(store, client, nil, ImportOptions{MaxCast: 2, Region: "US"}, zap.NewNop())
	ctx := context.Background()

	result, err := importer.ImportTMDB(ctx, types.TMDBImportRequest{Query: "inception"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Empty(t, result.Errors)

	movie, err := store.FindMovieByTitle(ctx, "inception")
	require.NoError(t, err)
	assert.Equal(t, 2010, movie.Year)

	detail, err := store.GetMovieDetail(ctx, movie.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Christopher Nolan"}, detail.Directors)
	assert.ElementsMatch(t, []string{"Christopher Nolan", "Emma Thomas"}, detail.Producers)
	assert.ElementsMatch(t, []string{"Action", "Science Fiction"}, detail.Genres)
	require.Len(t, detail.Actors, 2, "cast is capped at the first billed actors")
	names := []string{detail.Actors[0].Name, detail.Actors[1].Name}
	assert.ElementsMatch(t, []string{"Leonardo DiCaprio", "Joseph Gordon-Levitt"}, names)
	assert.Equal(t, []string{"Netflix"}, detail.Platforms)
	require.NotNil(t, detail.TrailerURL)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", *detail.TrailerURL)

	again, err := importer.ImportTMDB(ctx, types.TMDBImportRequest{TMDBIDs: []int{27205}})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Imported)
	assert.Equal(t, 1, again.Updated)
}

func TestImportTMDB_CollectsPerMovieErrors(t *testing.T) {
	srv := newTMDBServer(t)
	client := NewTMDBClient("test-key", TMDBOptions{BaseURL: srv.URL, RateRPS: 1000}, zap.NewNop())
	importer := NewImporter(newStore(t), client, nil, ImportOptions{Region: "US"}, zap.NewNop())

	result, err := importer.ImportTMDB(context.Background(), types.TMDBImportRequest{TMDBIDs: []int{404404}})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "tmdb 404404")
	assert.Equal(t, 0, result.Imported)
}

func TestImportTMDB_Unconfigured(t *testing.T) {
	importer := NewImporter(newStore(t), nil, nil, ImportOptions{Region: "US"}, zap.NewNop())

	_, err := importer.ImportTMDB(context.Background(), types.TMDBImportRequest{Query: "x"})
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetAppError(err).HTTPStatus)
}

func TestMovieFromTMDB_SplitsCharacters(t *testing.T) {
	details := &TMDBMovieDetails{TMDBMovie: TMDBMovie{Title: " The Prestige "}}
	credits := &TMDBCredits{Cast: []TMDBCast{
		{Name: "Hugh Jackman", Character: "Robert Angier / Gerald Root", Order: 0},
	}}

	in := MovieFromTMDB(details, credits, 2006, 10)
	assert.Equal(t, "The Prestige", in.Title)
	assert.Nil(t, in.Duration)
	assert.Nil(t, in.PosterURL)
	require.Len(t, in.Actors, 1)
	assert.Equal(t, []string{"Robert Angier", "Gerald Root"}, in.Actors[0].Roles)
}

type fakePlex struct {
	sections []PlexSection
	movies   map[int][]PlexMovie
	err      error
	token    string
}

func (f *fakePlex) MovieSections(_ context.Context, token, _ string) ([]PlexSection, error) {
	f.token = token
	return f.sections, f.err
}

func (f *fakePlex) SectionMovies(_ context.Context, _, _ string, key int) ([]PlexMovie, error) {
	return f.movies[key], nil
}

func TestImportPlex(t *testing.T) {
	ptr := func(v int) *int { return &v }
	plex := &fakePlex{
		sections: []PlexSection{{Key: 1, Title: "Movies", Type: "movie"}},
		movies: map[int][]PlexMovie{1: {
			{Title: "Heat", Year: ptr(1995)},
			{Title: "Home Video"},
		}},
	}
	store := newStore(t)
	importer := NewImporter(store, nil, plex, ImportOptions{PlexURL: "http://plex:32400", PlexToken: "cfg-token"}, zap.NewNop())
	ctx := context.Background()

	result, err := importer.ImportPlex(ctx, types.PlexImportRequest{})
	require.NoError(t, err)
	assert.Equal(t, "cfg-token", plex.token)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)

	movie, err := store.FindMovieByTitle(ctx, "Heat")
	require.NoError(t, err)
	detail, err := store.GetMovieDetail(ctx, movie.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Plex"}, detail.Platforms)
}

func TestImportPlex_EnrichesFromTMDB(t *testing.T) {
	srv := newTMDBServer(t)
	client := NewTMDBClient("test-key", TMDBOptions{BaseURL: srv.URL, RateRPS: 1000}, zap.NewNop())
	year := 2010
	plex := &fakePlex{movies: map[int][]PlexMovie{3: {
		{Title: "Inception", Year: &year, GUID: "com.plexapp.agents.themoviedb://27205?lang=en"},
	}}}
	store := newStore(t)
	importer := NewImporter(store, client, plex, ImportOptions{Region: "US"}, zap.NewNop())
	ctx := context.Background()

	result, err := importer.ImportPlex(ctx, types.PlexImportRequest{
		ServerURL: "http://plex:32400", Token: "t", SectionKeys: []int{3},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	movie, err := store.FindMovieByTitle(ctx, "Inception")
	require.NoError(t, err)
	detail, err := store.GetMovieDetail(ctx, movie.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Netflix", "Plex"}, detail.Platforms)
	assert.Equal(t, []string{"Christopher Nolan"}, detail.Directors)
	require.NotNil(t, detail.Duration)
	assert.Equal(t, 148, *detail.Duration)
}

func TestImportPlex_Errors(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		importer := NewImporter(newStore(t), nil, &fakePlex{}, ImportOptions{Region: "US"}, zap.NewNop())
		_, err := importer.ImportPlex(context.Background(), types.PlexImportRequest{})
		assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetAppError(err).HTTPStatus)
	})

	t.Run("server unreachable", func(t *testing.T) {
		plex := &fakePlex{err: errors.New("connection refused")}
		importer := NewImporter(newStore(t), nil, plex, ImportOptions{Region: "US"}, zap.NewNop())
		_, err := importer.ImportPlex(context.Background(), types.PlexImportRequest{
			ServerURL: "http://plex:32400", Token: "t",
		})
		assert.Equal(t, http.StatusServiceUnavailable, apperrors.GetAppError(err).HTTPStatus)
	})
}
