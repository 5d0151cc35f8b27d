// Package database defines the storage contract shared by the Neo4j and
// SQLite backends, together with helpers both of them use.
package database

import (
	"context"
	"strconv"
	"strings"
	"time"

	"moviegraph/internal/fuzzy"
	"moviegraph/internal/types"
)

// Options tune a store. Zero values fall back to the defaults below.
type Options struct {
	QueryTimeout        time.Duration
	SimilarityThreshold float64
}

const (
	DefaultQueryTimeout = 5 * time.Second
	DefaultSearchLimit  = 10
)

// Normalize fills in defaults.
func (o Options) Normalize() Options {
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultQueryTimeout
	}
	if o.SimilarityThreshold <= 0 || o.SimilarityThreshold >= 1 {
		o.SimilarityThreshold = fuzzy.DefaultThreshold
	}
	return o
}

// WithTimeout bounds a single store call.
func (o Options) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.QueryTimeout)
}

type MovieStore interface {
	// ListMovies returns movies newest first with their rating aggregates.
	ListMovies(ctx context.Context, filter types.MovieFilter, page types.Page) ([]types.MovieSummary, error)
	GetMovie(ctx context.Context, id string) (*types.Movie, error)
	// FindMovieByTitle matches the title case-insensitively. More than one
	// match is a conflict.
	FindMovieByTitle(ctx context.Context, title string) (*types.Movie, error)
	// MatchMovie returns the most similar movie above the threshold, newest
	// first on ties.
	MatchMovie(ctx context.Context, query string) (*types.MovieMatch, error)
	SearchMovies(ctx context.Context, query string, limit int, fuzzy bool) ([]types.MovieMatch, error)
	GetMovieDetail(ctx context.Context, id string) (*types.MovieDetail, error)
	CreateMovie(ctx context.Context, in types.MovieInput) (*types.MovieDetail, error)
	UpdateMovie(ctx context.Context, id string, upd types.MovieUpdate) (*types.MovieDetail, error)
	DeleteMovie(ctx context.Context, id string) error
	// AddActor links an existing person to the movie.
	AddActor(ctx context.Context, movieID string, req types.AddActorRequest) error
	MovieCast(ctx context.Context, movieID string) ([]types.Credit, error)
	// UpsertMovie creates the movie or, when (title, year) exists, refreshes
	// its properties and adds the relationships in the input.
	UpsertMovie(ctx context.Context, in types.MovieInput) (*types.Movie, bool, error)
}

type PersonStore interface {
	ListPersons(ctx context.Context, page types.Page) ([]types.Person, error)
	GetPerson(ctx context.Context, id string) (*types.Person, error)
	FindPersonByName(ctx context.Context, name string) (*types.Person, error)
	MatchPerson(ctx context.Context, query string) (*types.PersonMatch, error)
	SearchPersons(ctx context.Context, query string, limit int, fuzzy bool) ([]types.PersonMatch, error)
	GetPersonDetail(ctx context.Context, id string) (*types.PersonDetail, error)
	CreatePerson(ctx context.Context, in types.PersonInput) (*types.Person, error)
	UpdatePerson(ctx context.Context, id string, upd types.PersonUpdate) (*types.Person, error)
	DeletePerson(ctx context.Context, id string) error
	// Filmography lists the movies the person acted in, newest first.
	Filmography(ctx context.Context, personID string) ([]types.RoleCredit, error)
	// SharedMovies lists titles both people acted in, newest first.
	SharedMovies(ctx context.Context, personID1, personID2 string) ([]string, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user *types.User) (*types.User, error)
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
	ListUsers(ctx context.Context, page types.Page) ([]types.User, error)
	// SetUserRole changes the role of username. Demoting the only remaining
	// admin is a conflict.
	SetUserRole(ctx context.Context, username, role string) (*types.User, error)
}

// LastAdminMessage is reported when a role change would leave no admin.
const LastAdminMessage = "Cannot remove the last administrator"

type ReviewStore interface {
	// UpsertReview writes the single rating of username for the movie and
	// reports whether it was created.
	UpsertReview(ctx context.Context, username, movieID string, rating int, comment *string) (*types.Review, bool, error)
	ListReviews(ctx context.Context, movieID string) ([]types.Review, error)
	UserReviews(ctx context.Context, username string) ([]types.Review, error)
	DeleteReview(ctx context.Context, username, movieID string) error
	ReviewStats(ctx context.Context, movieID string) (*types.ReviewStats, error)
	// UserStats counts the reviews of username and ranks the genres of the
	// movies they rated.
	UserStats(ctx context.Context, username string) (*types.UserStats, error)
}

// FavoriteGenreLimit caps UserStats.FavoriteGenres.
const FavoriteGenreLimit = 5

// WatchlistStore methods taking a username check ownership in the same
// transaction as the write: a list owned by someone else is forbidden, a
// missing one is not found.
type WatchlistStore interface {
	CreateWatchlist(ctx context.Context, username string, in types.WatchlistInput) (*types.Watchlist, error)
	ListWatchlists(ctx context.Context, username string) ([]types.Watchlist, error)
	PublicWatchlists(ctx context.Context, page types.Page) ([]types.Watchlist, error)
	GetWatchlist(ctx context.Context, id string) (*types.WatchlistDetail, error)
	UpdateWatchlist(ctx context.Context, username, id string, in types.WatchlistInput) (*types.Watchlist, error)
	DeleteWatchlist(ctx context.Context, username, id string) error
	AddToWatchlist(ctx context.Context, username, id, movieID string) error
	RemoveFromWatchlist(ctx context.Context, username, id, movieID string) error
	WatchlistsContaining(ctx context.Context, username, movieID string) ([]types.WatchlistRef, error)
}

type RecommendationStore interface {
	// SimilarMovies scores movies by the number of distinct people they
	// share with the seed movie.
	SimilarMovies(ctx context.Context, movieID string, limit int) ([]types.Recommendation, error)
	// RecommendForUser scores unrated movies by how many of the five users
	// with the largest rating overlap rated them.
	RecommendForUser(ctx context.Context, username string, limit int) ([]types.Recommendation, error)
}

// Store is the injected handle to persistent state. Implementations are safe
// for concurrent use.
type Store interface {
	MovieStore
	PersonStore
	UserStore
	ReviewStore
	WatchlistStore
	RecommendationStore

	Stats(ctx context.Context) (*types.Stats, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// MovieKey is the case-insensitive identity of a movie.
func MovieKey(title string, year int) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" + strconv.Itoa(year)
}

// NameKey is the case-insensitive identity of a person, genre or platform.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DistinctNames trims names and drops blanks and case-insensitive duplicates,
// keeping the first spelling.
func DistinctNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[NameKey(n)] {
			continue
		}
		seen[NameKey(n)] = true
		out = append(out, n)
	}
	return out
}

// DistinctCredits merges credits for the same person, keeping role order.
func DistinctCredits(credits []types.Credit) []types.Credit {
	index := make(map[string]int, len(credits))
	out := make([]types.Credit, 0, len(credits))
	for _, c := range credits {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		i, ok := index[NameKey(name)]
		if !ok {
			index[NameKey(name)] = len(out)
			out = append(out, types.Credit{Name: name, Roles: DistinctNames(c.Roles)})
			continue
		}
		out[i].Roles = DistinctNames(append(out[i].Roles, c.Roles...))
	}
	return out
}

// ClampPage applies list defaults.
func ClampPage(p types.Page) types.Page {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Skip < 0 {
		p.Skip = 0
	}
	return p
}
