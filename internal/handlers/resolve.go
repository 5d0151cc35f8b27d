package handlers

import (
	"context"
	"strings"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

// resolver turns a path reference (an id or a title/name) into a stored
// entity. Writes use exact resolution; reads may fall back to fuzzy matching.
type resolver struct {
	store database.Store
}

// movie resolves ref by id, then exact title. With fuzzy set, an unknown or
// ambiguous title falls back to the best similarity match. The returned
// similarity is 1 for exact hits.
func (res resolver) movie(ctx context.Context, ref string, fuzzy bool) (*types.Movie, float64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, 0, apperrors.NewValidationError("movie reference must not be empty")
	}

	m, err := res.store.GetMovie(ctx, ref)
	if err == nil {
		return m, 1, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, 0, err
	}

	m, err = res.store.FindMovieByTitle(ctx, ref)
	switch {
	case err == nil:
		return m, 1, nil
	case !fuzzy, !apperrors.IsNotFound(err) && !apperrors.IsConflict(err):
		return nil, 0, err
	}

	match, err := res.store.MatchMovie(ctx, ref)
	if err != nil {
		return nil, 0, err
	}
	return &match.Movie, match.Similarity, nil
}

// movieByBody resolves the {movie_id | movie_title} pair used in request bodies.
func (res resolver) movieByBody(ctx context.Context, id, title string) (*types.Movie, error) {
	if id != "" {
		return res.store.GetMovie(ctx, id)
	}
	return res.store.FindMovieByTitle(ctx, title)
}

func (res resolver) person(ctx context.Context, ref string, fuzzy bool) (*types.Person, float64, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, 0, apperrors.NewValidationError("person reference must not be empty")
	}

	p, err := res.store.GetPerson(ctx, ref)
	if err == nil {
		return p, 1, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, 0, err
	}

	p, err = res.store.FindPersonByName(ctx, ref)
	if err == nil {
		return p, 1, nil
	}
	if !fuzzy || !apperrors.IsNotFound(err) {
		return nil, 0, err
	}

	match, err := res.store.MatchPerson(ctx, ref)
	if err != nil {
		return nil, 0, err
	}
	return &match.Person, match.Similarity, nil
}
