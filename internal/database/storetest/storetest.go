// Package storetest holds the behaviour every database.Store implementation
// must show. Backends call Run from their own tests.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

// Factory returns an empty store. It registers its own cleanup.
type Factory func(t *testing.T) database.Store

// Run executes the contract suite, one fresh store per subtest.
func Run(t *testing.T, newStore Factory) {
	t.Run("Movies", func(t *testing.T) { testMovies(t, newStore) })
	t.Run("MovieSearch", func(t *testing.T) { testMovieSearch(t, newStore) })
	t.Run("MovieUpdate", func(t *testing.T) { testMovieUpdate(t, newStore) })
	t.Run("UpsertMovie", func(t *testing.T) { testUpsertMovie(t, newStore) })
	t.Run("Persons", func(t *testing.T) { testPersons(t, newStore) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore) })
	t.Run("Reviews", func(t *testing.T) { testReviews(t, newStore) })
	t.Run("ConcurrentReviewUpsert", func(t *testing.T) { testConcurrentReviewUpsert(t, newStore) })
	t.Run("MovieRatingsAndFilters", func(t *testing.T) { testMovieRatingsAndFilters(t, newStore) })
	t.Run("UserStats", func(t *testing.T) { testUserStats(t, newStore) })
	t.Run("Watchlists", func(t *testing.T) { testWatchlists(t, newStore) })
	t.Run("SimilarMovies", func(t *testing.T) { testSimilarMovies(t, newStore) })
	t.Run("RecommendForUser", func(t *testing.T) { testRecommendForUser(t, newStore) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newStore) })
}

func ptr[T any](v T) *T { return &v }

func createMovie(t *testing.T, s database.Store, in types.MovieInput) *types.MovieDetail {
	t.Helper()
	m, err := s.CreateMovie(context.Background(), in)
	require.NoError(t, err)
	return m
}

func createUser(t *testing.T, s database.Store, username, role string) *types.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), &types.User{
		Username:     username,
		PasswordHash: "hash",
		Role:         role,
	})
	require.NoError(t, err)
	return u
}

func testMovies(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	// Arrange / Act
	created := createMovie(t, s, types.MovieInput{
		Title:     "Inception",
		Year:      2010,
		Duration:  ptr(148),
		Genres:    []string{"Sci-Fi", "sci-fi", "Thriller"},
		Directors: []string{"Christopher Nolan"},
		Producers: []string{"Christopher Nolan", "Emma Thomas"},
		Actors: []types.Credit{
			{Name: "Leonardo DiCaprio", Roles: []string{"Cobb"}},
			{Name: "Tom Hardy", Roles: []string{"Eames"}},
		},
		Platforms: []string{"Netflix"},
	})

	// Assert
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Inception", created.Title)
	assert.Equal(t, 148, *created.Duration)
	assert.Equal(t, []string{"Sci-Fi", "Thriller"}, created.Genres)
	assert.Equal(t, []string{"Christopher Nolan"}, created.Directors)
	assert.Equal(t, []string{"Christopher Nolan", "Emma Thomas"}, created.Producers)
	assert.Equal(t, []string{"Netflix"}, created.Platforms)
	require.Len(t, created.Actors, 2)
	assert.Equal(t, types.Credit{Name: "Leonardo DiCaprio", Roles: []string{"Cobb"}}, created.Actors[0])

	t.Run("duplicate title and year conflicts", func(t *testing.T) {
		_, err := s.CreateMovie(ctx, types.MovieInput{Title: "inception", Year: 2010})
		assert.True(t, apperrors.IsConflict(err), "got %v", err)
	})

	t.Run("same title other year is allowed", func(t *testing.T) {
		createMovie(t, s, types.MovieInput{Title: "Inception", Year: 1990})

		_, err := s.FindMovieByTitle(ctx, "INCEPTION")
		assert.True(t, apperrors.IsConflict(err), "ambiguous title should conflict, got %v", err)
	})

	t.Run("get and find", func(t *testing.T) {
		m, err := s.GetMovie(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.Title, m.Title)

		_, err = s.GetMovie(ctx, "missing")
		assert.True(t, apperrors.IsNotFound(err))

		_, err = s.FindMovieByTitle(ctx, "Nope")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("list orders by year desc", func(t *testing.T) {
		movies, err := s.ListMovies(ctx, types.MovieFilter{}, types.Page{Limit: 10})
		require.NoError(t, err)
		require.Len(t, movies, 2)
		assert.Equal(t, 2010, movies[0].Year)
		assert.Equal(t, 1990, movies[1].Year)

		movies, err = s.ListMovies(ctx, types.MovieFilter{}, types.Page{Limit: 10, Skip: 1})
		require.NoError(t, err)
		assert.Len(t, movies, 1)
	})

	t.Run("add actor requires existing person", func(t *testing.T) {
		err := s.AddActor(ctx, created.ID, types.AddActorRequest{Name: "Nobody Known"})
		assert.True(t, apperrors.IsNotFound(err))

		_, err = s.CreatePerson(ctx, types.PersonInput{Name: "Elliot Page"})
		require.NoError(t, err)
		require.NoError(t, s.AddActor(ctx, created.ID, types.AddActorRequest{Name: "elliot page", Roles: []string{"Ariadne"}}))

		cast, err := s.MovieCast(ctx, created.ID)
		require.NoError(t, err)
		assert.Len(t, cast, 3)
		assert.Contains(t, cast, types.Credit{Name: "Elliot Page", Roles: []string{"Ariadne"}})
	})

	t.Run("delete detaches relationships", func(t *testing.T) {
		require.NoError(t, s.DeleteMovie(ctx, created.ID))

		_, err := s.GetMovie(ctx, created.ID)
		assert.True(t, apperrors.IsNotFound(err))

		p, err := s.FindPersonByName(ctx, "Tom Hardy")
		require.NoError(t, err)
		films, err := s.Filmography(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, films)

		err = s.DeleteMovie(ctx, created.ID)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func testMovieSearch(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	createMovie(t, s, types.MovieInput{Title: "The Matrix", Year: 1999})
	createMovie(t, s, types.MovieInput{Title: "The Matrix Reloaded", Year: 2003})
	createMovie(t, s, types.MovieInput{Title: "Inception", Year: 2010})

	t.Run("exact title scores one", func(t *testing.T) {
		match, err := s.MatchMovie(ctx, "the matrix")
		require.NoError(t, err)
		assert.Equal(t, "The Matrix", match.Title)
		assert.InDelta(t, 1.0, match.Similarity, 1e-9)
	})

	t.Run("typo still resolves", func(t *testing.T) {
		match, err := s.MatchMovie(ctx, "Incepton")
		require.NoError(t, err)
		assert.Equal(t, "Inception", match.Title)
		assert.Greater(t, match.Similarity, 0.5)
	})

	t.Run("bigrams do not span words", func(t *testing.T) {
		createMovie(t, s, types.MovieInput{Title: "Go Go Go", Year: 2000})

		match, err := s.MatchMovie(ctx, "gogogo")
		require.NoError(t, err)
		assert.Equal(t, "Go Go Go", match.Title)
		assert.InDelta(t, 0.75, match.Similarity, 1e-9)
	})

	t.Run("nothing above threshold", func(t *testing.T) {
		_, err := s.MatchMovie(ctx, "Zzzzzz")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("fuzzy search orders by similarity", func(t *testing.T) {
		matches, err := s.SearchMovies(ctx, "Matrix", 10, true)
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		for i := 1; i < len(matches); i++ {
			assert.GreaterOrEqual(t, matches[i-1].Similarity, matches[i].Similarity)
		}
		for _, m := range matches {
			assert.Greater(t, m.Similarity, 0.5)
		}
	})

	t.Run("substring search", func(t *testing.T) {
		matches, err := s.SearchMovies(ctx, "matrix", 10, false)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "The Matrix Reloaded", matches[0].Title)
		assert.Equal(t, "The Matrix", matches[1].Title)

		matches, err = s.SearchMovies(ctx, "matrix", 1, false)
		require.NoError(t, err)
		assert.Len(t, matches, 1)
	})
}

func testMovieUpdate(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	m := createMovie(t, s, types.MovieInput{
		Title:     "Heat",
		Year:      1995,
		Genres:    []string{"Crime"},
		Directors: []string{"Michael Mann"},
		Actors:    []types.Credit{{Name: "Al Pacino", Roles: []string{"Hanna"}}},
	})
	createMovie(t, s, types.MovieInput{Title: "Collateral", Year: 2004})

	t.Run("partial update keeps absent lists", func(t *testing.T) {
		updated, err := s.UpdateMovie(ctx, m.ID, types.MovieUpdate{Tagline: ptr("A Los Angeles crime saga")})
		require.NoError(t, err)
		assert.Equal(t, "A Los Angeles crime saga", *updated.Tagline)
		assert.Equal(t, []string{"Crime"}, updated.Genres)
		assert.Equal(t, []string{"Michael Mann"}, updated.Directors)
		assert.Len(t, updated.Actors, 1)
	})

	t.Run("present lists replace", func(t *testing.T) {
		updated, err := s.UpdateMovie(ctx, m.ID, types.MovieUpdate{
			Genres: []string{"Thriller", "Drama"},
			Actors: []types.Credit{{Name: "Robert De Niro", Roles: []string{"McCauley"}}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"Drama", "Thriller"}, updated.Genres)
		assert.Equal(t, []types.Credit{{Name: "Robert De Niro", Roles: []string{"McCauley"}}}, updated.Actors)
		assert.Equal(t, []string{"Michael Mann"}, updated.Directors)
	})

	t.Run("rename onto existing movie conflicts", func(t *testing.T) {
		_, err := s.UpdateMovie(ctx, m.ID, types.MovieUpdate{Title: ptr("Collateral"), Year: ptr(2004)})
		assert.True(t, apperrors.IsConflict(err), "got %v", err)
	})

	t.Run("missing movie", func(t *testing.T) {
		_, err := s.UpdateMovie(ctx, "missing", types.MovieUpdate{Title: ptr("x")})
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func testUpsertMovie(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	in := types.MovieInput{
		Title:     "Arrival",
		Year:      2016,
		Directors: []string{"Denis Villeneuve"},
		Platforms: []string{"Plex"},
	}

	m, created, err := s.UpsertMovie(ctx, in)
	require.NoError(t, err)
	assert.True(t, created)

	in.Title = "ARRIVAL"
	in.Synopsis = ptr("Linguist meets heptapods.")
	in.Actors = []types.Credit{{Name: "Amy Adams", Roles: []string{"Louise Banks"}}}
	again, created, err := s.UpsertMovie(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m.ID, again.ID)
	assert.Equal(t, "Arrival", again.Title)
	assert.Equal(t, "Linguist meets heptapods.", *again.Synopsis)

	detail, err := s.GetMovieDetail(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Denis Villeneuve"}, detail.Directors)
	assert.Equal(t, []string{"Plex"}, detail.Platforms)
	assert.Len(t, detail.Actors, 1)
}

func testPersons(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	keanu, err := s.CreatePerson(ctx, types.PersonInput{Name: "Keanu Reeves", Born: ptr(1964), Nationality: ptr("Canadian")})
	require.NoError(t, err)
	assert.Equal(t, 1964, *keanu.Born)

	_, err = s.CreatePerson(ctx, types.PersonInput{Name: "keanu reeves"})
	assert.True(t, apperrors.IsConflict(err), "got %v", err)

	createMovie(t, s, types.MovieInput{
		Title:  "The Matrix",
		Year:   1999,
		Actors: []types.Credit{{Name: "Keanu Reeves", Roles: []string{"Neo"}}, {Name: "Carrie-Anne Moss", Roles: []string{"Trinity"}}},
	})
	createMovie(t, s, types.MovieInput{
		Title:     "John Wick",
		Year:      2014,
		Directors: []string{"Chad Stahelski"},
		Producers: []string{"Keanu Reeves"},
		Actors:    []types.Credit{{Name: "Keanu Reeves", Roles: []string{"John Wick"}}},
	})

	t.Run("detail", func(t *testing.T) {
		detail, err := s.GetPersonDetail(ctx, keanu.ID)
		require.NoError(t, err)
		require.Len(t, detail.ActedIn, 2)
		assert.Equal(t, "John Wick", detail.ActedIn[0].Movie)
		assert.Equal(t, []string{"Neo"}, detail.ActedIn[1].Roles)
		assert.Equal(t, []string{"John Wick"}, detail.Produced)
		assert.Empty(t, detail.Directed)
	})

	t.Run("fuzzy match", func(t *testing.T) {
		match, err := s.MatchPerson(ctx, "Keanu Reves")
		require.NoError(t, err)
		assert.Equal(t, keanu.ID, match.ID)
		assert.Greater(t, match.Similarity, 0.5)
	})

	t.Run("shared movies", func(t *testing.T) {
		moss, err := s.FindPersonByName(ctx, "Carrie-Anne Moss")
		require.NoError(t, err)

		titles, err := s.SharedMovies(ctx, keanu.ID, moss.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"The Matrix"}, titles)
	})

	t.Run("rename checks clash", func(t *testing.T) {
		_, err := s.UpdatePerson(ctx, keanu.ID, types.PersonUpdate{Name: ptr("Carrie-Anne Moss")})
		assert.True(t, apperrors.IsConflict(err), "got %v", err)

		p, err := s.UpdatePerson(ctx, keanu.ID, types.PersonUpdate{Biography: ptr("Actor.")})
		require.NoError(t, err)
		assert.Equal(t, "Actor.", *p.Biography)
		assert.Equal(t, "Keanu Reeves", p.Name)
	})

	t.Run("list and delete", func(t *testing.T) {
		persons, err := s.ListPersons(ctx, types.Page{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, persons, 3)

		require.NoError(t, s.DeletePerson(ctx, keanu.ID))
		_, err = s.GetPerson(ctx, keanu.ID)
		assert.True(t, apperrors.IsNotFound(err))

		m, err := s.FindMovieByTitle(ctx, "The Matrix")
		require.NoError(t, err)
		cast, err := s.MovieCast(ctx, m.ID)
		require.NoError(t, err)
		assert.Len(t, cast, 1)
	})
}

func testUsers(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	alice, err := s.CreateUser(ctx, &types.User{Username: "alice", Email: ptr("alice@example.com"), PasswordHash: "h"})
	require.NoError(t, err)
	assert.NotEmpty(t, alice.ID)
	assert.Equal(t, types.RoleUser, alice.Role)

	_, err = s.CreateUser(ctx, &types.User{Username: "alice", PasswordHash: "h"})
	assert.True(t, apperrors.IsConflict(err))

	_, err = s.CreateUser(ctx, &types.User{Username: "alice2", Email: ptr("alice@example.com"), PasswordHash: "h"})
	assert.True(t, apperrors.IsConflict(err))

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "h", got.PasswordHash)
	assert.Equal(t, "alice@example.com", *got.Email)

	_, err = s.GetUserByUsername(ctx, "bob")
	assert.True(t, apperrors.IsNotFound(err))

	promoted, err := s.SetUserRole(ctx, "alice", types.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, types.RoleAdmin, promoted.Role)

	_, err = s.SetUserRole(ctx, "bob", types.RoleAdmin)
	assert.True(t, apperrors.IsNotFound(err))

	createUser(t, s, "carol", types.RoleUser)
	users, err := s.ListUsers(ctx, types.Page{Limit: 10})
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)

	t.Run("last admin cannot be demoted", func(t *testing.T) {
		_, err := s.SetUserRole(ctx, "alice", types.RoleUser)
		require.True(t, apperrors.IsConflict(err), "got %v", err)

		got, err := s.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, types.RoleAdmin, got.Role)

		_, err = s.SetUserRole(ctx, "alice", types.RoleAdmin)
		assert.NoError(t, err)

		_, err = s.SetUserRole(ctx, "carol", types.RoleAdmin)
		require.NoError(t, err)
		demoted, err := s.SetUserRole(ctx, "alice", types.RoleVisitor)
		require.NoError(t, err)
		assert.Equal(t, types.RoleVisitor, demoted.Role)

		_, err = s.SetUserRole(ctx, "carol", types.RoleUser)
		assert.True(t, apperrors.IsConflict(err), "got %v", err)
	})

	t.Run("concurrent demotions keep one admin", func(t *testing.T) {
		_, err := s.SetUserRole(ctx, "alice", types.RoleAdmin)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, name := range []string{"alice", "carol"} {
			wg.Add(1)
			go func(i int, name string) {
				defer wg.Done()
				_, errs[i] = s.SetUserRole(ctx, name, types.RoleUser)
			}(i, name)
		}
		wg.Wait()

		admins := 0
		for _, name := range []string{"alice", "carol"} {
			u, err := s.GetUserByUsername(ctx, name)
			require.NoError(t, err)
			if u.Role == types.RoleAdmin {
				admins++
			}
		}
		assert.Equal(t, 1, admins, "errors: %v", errs)
	})
}

func testReviews(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	createUser(t, s, "alice", types.RoleUser)
	createUser(t, s, "bob", types.RoleUser)
	inception := createMovie(t, s, types.MovieInput{Title: "Inception", Year: 2010})

	review, created, err := s.UpsertReview(ctx, "alice", inception.ID, 8, ptr("Great"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 8, review.Rating)
	assert.Equal(t, "Inception", review.MovieTitle)

	review, created, err = s.UpsertReview(ctx, "alice", inception.ID, 5, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 5, review.Rating)
	assert.Nil(t, review.Comment)

	reviews, err := s.ListReviews(ctx, inception.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "alice", reviews[0].Username)
	assert.Equal(t, 5, reviews[0].Rating)

	_, _, err = s.UpsertReview(ctx, "bob", inception.ID, 10, nil)
	require.NoError(t, err)

	stats, err := s.ReviewStats(ctx, inception.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.InDelta(t, 7.5, *stats.Average, 1e-9)
	assert.Equal(t, 5, *stats.Min)
	assert.Equal(t, 10, *stats.Max)
	assert.Equal(t, 1, stats.Distribution[5])
	assert.Equal(t, 0, stats.Distribution[0])
	assert.Len(t, stats.Distribution, 11)

	mine, err := s.UserReviews(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	_, _, err = s.UpsertReview(ctx, "alice", "missing", 5, nil)
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, s.DeleteReview(ctx, "alice", inception.ID))
	err = s.DeleteReview(ctx, "alice", inception.ID)
	assert.True(t, apperrors.IsNotFound(err))

	other := createMovie(t, s, types.MovieInput{Title: "Memento", Year: 2000})
	stats, err = s.ReviewStats(ctx, other.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Nil(t, stats.Average)
}

func testConcurrentReviewUpsert(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	createUser(t, s, "alice", types.RoleUser)
	inception := createMovie(t, s, types.MovieInput{Title: "Inception", Year: 2010})

	const writers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		errs    []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(rating int) {
			defer wg.Done()
			_, isNew, err := s.UpsertReview(ctx, "alice", inception.ID, rating, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if isNew {
				created++
			}
		}(i % 11)
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, created, "exactly one writer creates the review")

	reviews, err := s.ListReviews(ctx, inception.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "alice", reviews[0].Username)

	stats, err := s.ReviewStats(ctx, inception.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func testMovieRatingsAndFilters(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	createUser(t, s, "alice", types.RoleUser)
	createUser(t, s, "bob", types.RoleUser)
	heat := createMovie(t, s, types.MovieInput{Title: "Heat", Year: 1995, Genres: []string{"Crime", "Thriller"}})
	createMovie(t, s, types.MovieInput{Title: "Se7en", Year: 1995, Genres: []string{"Crime"}})
	createMovie(t, s, types.MovieInput{Title: "Arrival", Year: 2016, Genres: []string{"Science Fiction"}})

	_, _, err := s.UpsertReview(ctx, "alice", heat.ID, 8, nil)
	require.NoError(t, err)
	_, _, err = s.UpsertReview(ctx, "bob", heat.ID, 5, nil)
	require.NoError(t, err)

	t.Run("list carries rating aggregates", func(t *testing.T) {
		movies, err := s.ListMovies(ctx, types.MovieFilter{}, types.Page{Limit: 10})
		require.NoError(t, err)
		require.Len(t, movies, 3)

		byTitle := map[string]types.MovieSummary{}
		for _, m := range movies {
			byTitle[m.Title] = m
		}
		assert.Equal(t, 2, byTitle["Heat"].RatingCount)
		require.NotNil(t, byTitle["Heat"].AvgRating)
		assert.InDelta(t, 6.5, *byTitle["Heat"].AvgRating, 1e-9)
		assert.Zero(t, byTitle["Arrival"].RatingCount)
		assert.Nil(t, byTitle["Arrival"].AvgRating)
	})

	t.Run("detail carries rating aggregates", func(t *testing.T) {
		detail, err := s.GetMovieDetail(ctx, heat.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, detail.RatingCount)
		require.NotNil(t, detail.AvgRating)
		assert.InDelta(t, 6.5, *detail.AvgRating, 1e-9)
	})

	t.Run("genre filter is case-insensitive substring", func(t *testing.T) {
		movies, err := s.ListMovies(ctx, types.MovieFilter{Genre: "CRIME"}, types.Page{Limit: 10})
		require.NoError(t, err)
		require.Len(t, movies, 2)
		assert.Equal(t, "Heat", movies[0].Title)
		assert.Equal(t, "Se7en", movies[1].Title)

		movies, err = s.ListMovies(ctx, types.MovieFilter{Genre: "fiction"}, types.Page{Limit: 10})
		require.NoError(t, err)
		require.Len(t, movies, 1)
		assert.Equal(t, "Arrival", movies[0].Title)

		movies, err = s.ListMovies(ctx, types.MovieFilter{Genre: "Western"}, types.Page{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, movies)
	})

	t.Run("genre and year combine", func(t *testing.T) {
		movies, err := s.ListMovies(ctx, types.MovieFilter{Genre: "thriller", Year: 1995}, types.Page{Limit: 10})
		require.NoError(t, err)
		require.Len(t, movies, 1)
		assert.Equal(t, "Heat", movies[0].Title)

		movies, err = s.ListMovies(ctx, types.MovieFilter{Year: 2016}, types.Page{Limit: 10})
		require.NoError(t, err)
		require.Len(t, movies, 1)
		assert.Equal(t, "Arrival", movies[0].Title)
	})
}

func testUserStats(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	createUser(t, s, "alice", types.RoleUser)
	createUser(t, s, "bob", types.RoleUser)
	movies := []types.MovieInput{
		{Title: "Heat", Year: 1995, Genres: []string{"Crime", "Thriller"}},
		{Title: "Se7en", Year: 1995, Genres: []string{"Crime", "Mystery"}},
		{Title: "Arrival", Year: 2016, Genres: []string{"Drama"}},
	}
	ratings := []int{9, 6, 3}
	for i, in := range movies {
		m := createMovie(t, s, in)
		_, _, err := s.UpsertReview(ctx, "alice", m.ID, ratings[i], nil)
		require.NoError(t, err)
	}

	stats, err := s.UserStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", stats.Username)
	assert.Equal(t, 3, stats.TotalRatings)
	require.NotNil(t, stats.AvgRating)
	assert.InDelta(t, 6.0, *stats.AvgRating, 1e-9)
	require.Len(t, stats.FavoriteGenres, 4)
	assert.Equal(t, "Crime", stats.FavoriteGenres[0])
	assert.ElementsMatch(t, []string{"Crime", "Drama", "Mystery", "Thriller"}, stats.FavoriteGenres)

	empty, err := s.UserStats(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, empty.TotalRatings)
	assert.Nil(t, empty.AvgRating)
	assert.Empty(t, empty.FavoriteGenres)

	_, err = s.UserStats(ctx, "nobody")
	assert.True(t, apperrors.IsNotFound(err))
}

func testWatchlists(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	createUser(t, s, "alice", types.RoleUser)
	createUser(t, s, "bob", types.RoleUser)
	heat := createMovie(t, s, types.MovieInput{Title: "Heat", Year: 1995})

	private, err := s.CreateWatchlist(ctx, "alice", types.WatchlistInput{Name: "Later"})
	require.NoError(t, err)
	assert.Equal(t, "alice", private.Username)
	assert.False(t, private.IsPublic)

	public, err := s.CreateWatchlist(ctx, "alice", types.WatchlistInput{Name: "Favourites", IsPublic: true})
	require.NoError(t, err)

	t.Run("add is idempotent", func(t *testing.T) {
		require.NoError(t, s.AddToWatchlist(ctx, "alice", public.ID, heat.ID))
		require.NoError(t, s.AddToWatchlist(ctx, "alice", public.ID, heat.ID))

		detail, err := s.GetWatchlist(ctx, public.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, detail.MovieCount)
		require.Len(t, detail.Movies, 1)
		assert.Equal(t, "Heat", detail.Movies[0].Title)
	})

	t.Run("ownership", func(t *testing.T) {
		err := s.AddToWatchlist(ctx, "bob", public.ID, heat.ID)
		assert.True(t, apperrors.IsForbidden(err), "got %v", err)

		_, err = s.UpdateWatchlist(ctx, "bob", public.ID, types.WatchlistInput{Name: "Mine now"})
		assert.True(t, apperrors.IsForbidden(err))

		err = s.DeleteWatchlist(ctx, "bob", public.ID)
		assert.True(t, apperrors.IsForbidden(err))

		err = s.DeleteWatchlist(ctx, "bob", "missing")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("listing", func(t *testing.T) {
		own, err := s.ListWatchlists(ctx, "alice")
		require.NoError(t, err)
		assert.Len(t, own, 2)

		lists, err := s.PublicWatchlists(ctx, types.Page{Limit: 10})
		require.NoError(t, err)
		require.Len(t, lists, 1)
		assert.Equal(t, public.ID, lists[0].ID)

		refs, err := s.WatchlistsContaining(ctx, "alice", heat.ID)
		require.NoError(t, err)
		assert.Equal(t, []types.WatchlistRef{{ID: public.ID, Name: "Favourites"}}, refs)
	})

	t.Run("update and remove", func(t *testing.T) {
		updated, err := s.UpdateWatchlist(ctx, "alice", private.ID, types.WatchlistInput{Name: "Soon", IsPublic: true})
		require.NoError(t, err)
		assert.Equal(t, "Soon", updated.Name)
		assert.True(t, updated.IsPublic)

		require.NoError(t, s.RemoveFromWatchlist(ctx, "alice", public.ID, heat.ID))
		err = s.RemoveFromWatchlist(ctx, "alice", public.ID, heat.ID)
		assert.True(t, apperrors.IsNotFound(err))

		require.NoError(t, s.DeleteWatchlist(ctx, "alice", private.ID))
		_, err = s.GetWatchlist(ctx, private.ID)
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func testSimilarMovies(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	a := createMovie(t, s, types.MovieInput{
		Title:     "A",
		Year:      2000,
		Directors: []string{"Nolan"},
		Producers: []string{"Nolan"},
		Actors:    []types.Credit{{Name: "X"}, {Name: "Y"}},
	})
	createMovie(t, s, types.MovieInput{
		Title:     "B",
		Year:      2001,
		Directors: []string{"Nolan"},
		Producers: []string{"Nolan"},
		Actors:    []types.Credit{{Name: "X"}},
	})
	createMovie(t, s, types.MovieInput{Title: "C", Year: 2005, Actors: []types.Credit{{Name: "Y"}}})
	createMovie(t, s, types.MovieInput{Title: "D", Year: 2010, Actors: []types.Credit{{Name: "Z"}}})

	recs, err := s.SimilarMovies(ctx, a.ID, 5)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// Nolan directing and producing both movies counts once.
	assert.Equal(t, "B", recs[0].Title)
	assert.Equal(t, 2, recs[0].Score)
	assert.Equal(t, "C", recs[1].Title)
	assert.Equal(t, 1, recs[1].Score)

	recs, err = s.SimilarMovies(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = s.SimilarMovies(ctx, "missing", 5)
	assert.True(t, apperrors.IsNotFound(err))
}

func testRecommendForUser(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	movies := map[string]*types.MovieDetail{}
	for i, title := range []string{"M1", "M2", "M3", "M4", "M5"} {
		movies[title] = createMovie(t, s, types.MovieInput{Title: title, Year: 2000 + i})
	}
	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		createUser(t, s, name, types.RoleUser)
	}

	rate := func(user string, titles ...string) {
		for _, title := range titles {
			_, _, err := s.UpsertReview(ctx, user, movies[title].ID, 2, nil)
			require.NoError(t, err)
		}
	}
	rate("alice", "M1", "M2")
	rate("bob", "M1", "M3")
	rate("carol", "M1", "M2", "M4", "M3")
	rate("dave", "M5")

	recs, err := s.RecommendForUser(ctx, "alice", 5)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "M3", recs[0].Title)
	assert.Equal(t, 2, recs[0].Score)
	assert.Equal(t, "M4", recs[1].Title)
	assert.Equal(t, 1, recs[1].Score)

	recs, err = s.RecommendForUser(ctx, "dave", 5)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = s.RecommendForUser(ctx, "nobody", 5)
	assert.True(t, apperrors.IsNotFound(err))
}

func testStats(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Movies)
	assert.Nil(t, stats.LatestMovie)

	createUser(t, s, "alice", types.RoleUser)
	createMovie(t, s, types.MovieInput{
		Title:     "Heat",
		Year:      1995,
		Directors: []string{"Michael Mann"},
		Producers: []string{"Michael Mann"},
		Actors:    []types.Credit{{Name: "Al Pacino"}, {Name: "Robert De Niro"}},
	})

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Movies)
	assert.Equal(t, 3, stats.Persons)
	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, types.RelationshipCounts{ActedIn: 2, Directed: 1, Produced: 1}, stats.Relationships)
	require.NotNil(t, stats.LatestMovie)
	assert.Equal(t, "Heat", stats.LatestMovie.Title)

	require.NoError(t, s.Ping(ctx))
}
