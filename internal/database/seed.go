package database

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/types"
)

func ptr[T any](v T) *T { return &v }

var sampleMovies = []types.MovieInput{
	{
		Title:     "The Matrix",
		Year:      1999,
		Duration:  ptr(136),
		Tagline:   ptr("Welcome to the Real World"),
		Genres:    []string{"Science Fiction", "Action"},
		Directors: []string{"Lana Wachowski", "Lilly Wachowski"},
		Producers: []string{"Joel Silver"},
		Actors: []types.Credit{
			{Name: "Keanu Reeves", Roles: []string{"Neo"}},
			{Name: "Carrie-Anne Moss", Roles: []string{"Trinity"}},
			{Name: "Laurence Fishburne", Roles: []string{"Morpheus"}},
			{Name: "Hugo Weaving", Roles: []string{"Agent Smith"}},
		},
		Platforms: []string{"Netflix", "HBO Max"},
	},
	{
		Title:     "The Matrix Reloaded",
		Year:      2003,
		Duration:  ptr(138),
		Tagline:   ptr("Free your mind"),
		Genres:    []string{"Science Fiction", "Action"},
		Directors: []string{"Lana Wachowski", "Lilly Wachowski"},
		Producers: []string{"Joel Silver"},
		Actors: []types.Credit{
			{Name: "Keanu Reeves", Roles: []string{"Neo"}},
			{Name: "Carrie-Anne Moss", Roles: []string{"Trinity"}},
			{Name: "Laurence Fishburne", Roles: []string{"Morpheus"}},
		},
		Platforms: []string{"HBO Max"},
	},
	{
		Title:     "John Wick",
		Year:      2014,
		Duration:  ptr(101),
		Genres:    []string{"Action", "Thriller"},
		Directors: []string{"Chad Stahelski"},
		Actors: []types.Credit{
			{Name: "Keanu Reeves", Roles: []string{"John Wick"}},
			{Name: "Willem Dafoe", Roles: []string{"Marcus"}},
		},
		Platforms: []string{"Prime Video"},
	},
	{
		Title:     "Inception",
		Year:      2010,
		Duration:  ptr(148),
		Tagline:   ptr("Your mind is the scene of the crime"),
		Genres:    []string{"Science Fiction", "Thriller"},
		Directors: []string{"Christopher Nolan"},
		Producers: []string{"Christopher Nolan", "Emma Thomas"},
		Actors: []types.Credit{
			{Name: "Leonardo DiCaprio", Roles: []string{"Cobb"}},
			{Name: "Joseph Gordon-Levitt", Roles: []string{"Arthur"}},
			{Name: "Elliot Page", Roles: []string{"Ariadne"}},
			{Name: "Tom Hardy", Roles: []string{"Eames"}},
			{Name: "Michael Caine", Roles: []string{"Miles"}},
		},
		Platforms: []string{"Netflix"},
	},
	{
		Title:     "The Dark Knight",
		Year:      2008,
		Duration:  ptr(152),
		Tagline:   ptr("Why so serious?"),
		Genres:    []string{"Action", "Crime", "Drama"},
		Directors: []string{"Christopher Nolan"},
		Producers: []string{"Christopher Nolan", "Emma Thomas"},
		Actors: []types.Credit{
			{Name: "Christian Bale", Roles: []string{"Bruce Wayne"}},
			{Name: "Heath Ledger", Roles: []string{"Joker"}},
			{Name: "Michael Caine", Roles: []string{"Alfred"}},
		},
		Platforms: []string{"HBO Max"},
	},
	{
		Title:     "Interstellar",
		Year:      2014,
		Duration:  ptr(169),
		Tagline:   ptr("Mankind was born on Earth. It was never meant to die here."),
		Genres:    []string{"Science Fiction", "Drama"},
		Directors: []string{"Christopher Nolan"},
		Producers: []string{"Christopher Nolan", "Emma Thomas"},
		Actors: []types.Credit{
			{Name: "Matthew McConaughey", Roles: []string{"Cooper"}},
			{Name: "Anne Hathaway", Roles: []string{"Brand"}},
			{Name: "Michael Caine", Roles: []string{"Professor Brand"}},
		},
		Platforms: []string{"Prime Video"},
	},
}

// Seed fills an empty database with a small sample catalog. It does nothing
// when any movie exists.
func Seed(ctx context.Context, store Store, logger *zap.Logger) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats before seeding: %w", err)
	}
	if stats.Movies > 0 {
		logger.Debug("database not empty, skipping seed", zap.Int("movies", stats.Movies))
		return nil
	}

	for _, movie := range sampleMovies {
		if _, err := store.CreateMovie(ctx, movie); err != nil && !apperrors.IsConflict(err) {
			return fmt.Errorf("failed to seed %q: %w", movie.Title, err)
		}
	}

	logger.Info("seeded sample catalog", zap.Int("movies", len(sampleMovies)))
	return nil
}

// EnsureAdmin creates the bootstrap administrator, or promotes the existing
// account of that name. The password of an existing account is left alone.
func EnsureAdmin(ctx context.Context, users UserStore, username, passwordHash string, logger *zap.Logger) error {
	existing, err := users.GetUserByUsername(ctx, username)
	switch {
	case err == nil && existing.Role == types.RoleAdmin:
		return nil
	case err == nil:
		if _, err := users.SetUserRole(ctx, username, types.RoleAdmin); err != nil {
			return fmt.Errorf("failed to promote %s: %w", username, err)
		}
		logger.Info("promoted bootstrap admin", zap.String("username", username))
		return nil
	case !apperrors.IsNotFound(err):
		return fmt.Errorf("failed to look up %s: %w", username, err)
	}

	_, err = users.CreateUser(ctx, &types.User{
		Username:     username,
		PasswordHash: passwordHash,
		Role:         types.RoleAdmin,
	})
	if err != nil && !apperrors.IsConflict(err) {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	logger.Info("created bootstrap admin", zap.String("username", username))
	return nil
}
