package sqlite

import (
	"context"

	"moviegraph/internal/types"
)

func (s *Store) SimilarMovies(ctx context.Context, movieID string, limit int) ([]types.Recommendation, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	if _, err := getMovie(ctx, s.db, movieID); err != nil {
		return nil, mapError("similar movies", err)
	}

	recs, err := s.queryRecommendations(ctx, `
		SELECT m.id, m.title, m.year, COUNT(DISTINCT c2.person_id) AS score
		FROM credits c1
		JOIN credits c2 ON c2.person_id = c1.person_id AND c2.movie_id <> c1.movie_id
		JOIN movies m ON m.id = c2.movie_id
		WHERE c1.movie_id = ?
		GROUP BY m.id
		ORDER BY score DESC, m.year DESC, m.title
		LIMIT ?
	`, movieID, limit)
	return recs, mapError("similar movies", err)
}

func (s *Store) RecommendForUser(ctx context.Context, username string, limit int) ([]types.Recommendation, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	uid, err := userID(ctx, s.db, username)
	if err != nil {
		return nil, mapError("recommend", err)
	}

	recs, err := s.queryRecommendations(ctx, `
		WITH seen AS (
			SELECT movie_id FROM ratings WHERE user_id = ?1
		),
		neighbours AS (
			SELECT r.user_id, COUNT(DISTINCT r.movie_id) AS overlap, u.username
			FROM ratings r JOIN users u ON u.id = r.user_id
			WHERE r.movie_id IN (SELECT movie_id FROM seen) AND r.user_id <> ?1
			GROUP BY r.user_id
			ORDER BY overlap DESC, u.username
			LIMIT 5
		)
		SELECT m.id, m.title, m.year, COUNT(DISTINCT r.user_id) AS score
		FROM ratings r
		JOIN neighbours n ON n.user_id = r.user_id
		JOIN movies m ON m.id = r.movie_id
		WHERE r.movie_id NOT IN (SELECT movie_id FROM seen)
		GROUP BY m.id
		ORDER BY score DESC, m.year DESC, m.title
		LIMIT ?2
	`, uid, limit)
	return recs, mapError("recommend", err)
}

func (s *Store) queryRecommendations(ctx context.Context, query string, args ...any) ([]types.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := []types.Recommendation{}
	for rows.Next() {
		var r types.Recommendation
		if err := rows.Scan(&r.ID, &r.Title, &r.Year, &r.Score); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (*types.Stats, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	stats := &types.Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM movies),
			(SELECT COUNT(*) FROM persons),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM ratings),
			(SELECT COUNT(*) FROM watchlists),
			(SELECT COUNT(*) FROM credits WHERE kind = 'ACTED_IN'),
			(SELECT COUNT(*) FROM credits WHERE kind = 'DIRECTED'),
			(SELECT COUNT(*) FROM credits WHERE kind = 'PRODUCED')
	`).Scan(&stats.Movies, &stats.Persons, &stats.Users, &stats.Reviews, &stats.Watchlists,
		&stats.Relationships.ActedIn, &stats.Relationships.Directed, &stats.Relationships.Produced)
	if err != nil {
		return nil, mapError("stats", err)
	}

	if stats.Movies > 0 {
		latest, err := scanMovie(s.db.QueryRowContext(ctx,
			`SELECT `+movieColumns+` FROM movies m ORDER BY m.created_at DESC, m.year DESC LIMIT 1`))
		if err != nil {
			return nil, mapError("stats", err)
		}
		stats.LatestMovie = &latest
	}
	return stats, nil
}
