package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

const reviewSelect = `
	SELECT u.username, m.id, m.title, r.rating, r.comment, r.created_at, r.updated_at
	FROM ratings r
	JOIN users u ON u.id = r.user_id
	JOIN movies m ON m.id = r.movie_id`

func scanReview(row scanner) (types.Review, error) {
	var r types.Review
	err := row.Scan(&r.Username, &r.MovieID, &r.MovieTitle, &r.Rating, &r.Comment, &r.Created, &r.Updated)
	return r, err
}

func userID(ctx context.Context, q queryer, username string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&id)
	return id, notFoundIfNoRows(err, "User")
}

// UpsertReview relies on the (user_id, movie_id) primary key, so concurrent
// submissions for the same pair always end in a single row.
func (s *Store) UpsertReview(ctx context.Context, username, movieID string, rating int, comment *string) (*types.Review, bool, error) {
	var (
		review  types.Review
		created bool
	)
	err := s.withTx(ctx, "upsert review", func(tx *sql.Tx) error {
		uid, err := userID(ctx, tx, username)
		if err != nil {
			return err
		}
		if _, err := getMovie(ctx, tx, movieID); err != nil {
			return err
		}

		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT 1 FROM ratings WHERE user_id = ? AND movie_id = ?`, uid, movieID).Scan(&exists)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
		case err != nil:
			return err
		}

		now := s.timestamp()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ratings (user_id, movie_id, rating, comment, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, movie_id) DO UPDATE SET
				rating = excluded.rating,
				comment = excluded.comment,
				updated_at = excluded.updated_at
		`, uid, movieID, rating, comment, now, now)
		if err != nil {
			return err
		}

		review, err = scanReview(tx.QueryRowContext(ctx,
			reviewSelect+` WHERE r.user_id = ? AND r.movie_id = ?`, uid, movieID))
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return &review, created, nil
}

func (s *Store) ListReviews(ctx context.Context, movieID string) ([]types.Review, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	reviews, err := s.queryReviews(ctx,
		reviewSelect+` WHERE r.movie_id = ? ORDER BY r.updated_at DESC, u.username`, movieID)
	return reviews, mapError("list reviews", err)
}

func (s *Store) UserReviews(ctx context.Context, username string) ([]types.Review, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	reviews, err := s.queryReviews(ctx,
		reviewSelect+` WHERE u.username = ? ORDER BY r.updated_at DESC, m.title`, username)
	return reviews, mapError("user reviews", err)
}

func (s *Store) queryReviews(ctx context.Context, query string, args ...any) ([]types.Review, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reviews := []types.Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, r)
	}
	return reviews, rows.Err()
}

func (s *Store) DeleteReview(ctx context.Context, username, movieID string) error {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ratings
		WHERE movie_id = ? AND user_id = (SELECT id FROM users WHERE username = ?)
	`, movieID, username)
	if err != nil {
		return mapError("delete review", err)
	}
	return mapError("delete review", requireAffected(res, "Review"))
}

func (s *Store) ReviewStats(ctx context.Context, movieID string) (*types.ReviewStats, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	m, err := getMovie(ctx, s.db, movieID)
	if err != nil {
		return nil, mapError("review stats", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT rating, COUNT(*) FROM ratings WHERE movie_id = ? GROUP BY rating`, movieID)
	if err != nil {
		return nil, mapError("review stats", err)
	}
	defer rows.Close()

	counts := map[int]int{}
	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return nil, mapError("review stats", err)
		}
		counts[rating] = count
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("review stats", err)
	}

	return database.BuildReviewStats(m.ID, m.Title, counts), nil
}

func (s *Store) UserStats(ctx context.Context, username string) (*types.UserStats, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	uid, err := userID(ctx, s.db, username)
	if err != nil {
		return nil, mapError("user stats", err)
	}

	stats := &types.UserStats{Username: username}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(rating) FROM ratings WHERE user_id = ?`, uid).
		Scan(&stats.TotalRatings, &stats.AvgRating)
	if err != nil {
		return nil, mapError("user stats", err)
	}

	stats.FavoriteGenres, err = queryStrings(ctx, s.db, `
		SELECT g.name
		FROM ratings r
		JOIN movie_genres mg ON mg.movie_id = r.movie_id
		JOIN genres g ON g.id = mg.genre_id
		WHERE r.user_id = ?
		GROUP BY g.id
		ORDER BY COUNT(*) DESC, g.name
		LIMIT ?
	`, uid, database.FavoriteGenreLimit)
	if err != nil {
		return nil, mapError("user stats", err)
	}
	return stats, nil
}
