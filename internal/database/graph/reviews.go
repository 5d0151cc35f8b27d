package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

const reviewProjection = `
	RETURN u.username AS username, m.id AS movie_id, m.title AS movie_title,
		r.rating AS rating, r.comment AS comment, r.created_at AS created_at, r.updated_at AS updated_at`

func reviewFromRecord(rec *neo4j.Record) types.Review {
	return types.Review{
		Username:   asString(value(rec, "username")),
		MovieID:    asString(value(rec, "movie_id")),
		MovieTitle: asString(value(rec, "movie_title")),
		Rating:     asInt(value(rec, "rating")),
		Comment:    asStringPtr(value(rec, "comment")),
		Created:    asTime(value(rec, "created_at")),
		Updated:    asTime(value(rec, "updated_at")),
	}
}

// UpsertReview writes to the user node before touching the RATED
// relationship. The write lock on the user serialises concurrent upserts
// by the same user, so MERGE never creates a second relationship.
func (s *Store) UpsertReview(ctx context.Context, username, movieID string, rating int, comment *string) (*types.Review, bool, error) {
	type upserted struct {
		review  types.Review
		created bool
	}

	out, err := write(ctx, s, "upsert review", func(tx neo4j.ManagedTransaction) (upserted, error) {
		if _, err := getMovie(ctx, tx, movieID); err != nil {
			return upserted{}, err
		}

		records, err := collect(ctx, tx, `
			MATCH (u:User {username: $username})
			SET u.last_rated_at = $now
			WITH u
			MATCH (m:Movie {id: $movie_id})
			OPTIONAL MATCH (u)-[existing:RATED]->(m)
			WITH u, m, existing IS NULL AS created
			MERGE (u)-[r:RATED]->(m)
			ON CREATE SET r.created_at = $now
			SET r.rating = $rating, r.comment = $comment, r.updated_at = $now
		`+reviewProjection+`, created`, map[string]any{
			"username": username,
			"movie_id": movieID,
			"rating":   int64(rating),
			"comment":  strOrNil(comment),
			"now":      s.timestamp(),
		})
		if err != nil {
			return upserted{}, err
		}
		if len(records) == 0 {
			return upserted{}, apperrors.NewNotFoundError("User")
		}
		return upserted{
			review:  reviewFromRecord(records[0]),
			created: asBool(value(records[0], "created")),
		}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return &out.review, out.created, nil
}

func (s *Store) ListReviews(ctx context.Context, movieID string) ([]types.Review, error) {
	return s.queryReviews(ctx, "list reviews", `
		MATCH (u:User)-[r:RATED]->(m:Movie {id: $id})
	`+reviewProjection+`
		ORDER BY updated_at DESC, username
	`, map[string]any{"id": movieID})
}

func (s *Store) UserReviews(ctx context.Context, username string) ([]types.Review, error) {
	return s.queryReviews(ctx, "user reviews", `
		MATCH (u:User {username: $username})-[r:RATED]->(m:Movie)
	`+reviewProjection+`
		ORDER BY updated_at DESC, movie_title
	`, map[string]any{"username": username})
}

func (s *Store) queryReviews(ctx context.Context, op, cypher string, params map[string]any) ([]types.Review, error) {
	return read(ctx, s, op, func(tx neo4j.ManagedTransaction) ([]types.Review, error) {
		records, err := collect(ctx, tx, cypher, params)
		if err != nil {
			return nil, err
		}
		reviews := make([]types.Review, 0, len(records))
		for _, rec := range records {
			reviews = append(reviews, reviewFromRecord(rec))
		}
		return reviews, nil
	})
}

func (s *Store) DeleteReview(ctx context.Context, username, movieID string) error {
	_, err := write(ctx, s, "delete review", func(tx neo4j.ManagedTransaction) (struct{}, error) {
		summary, err := exec(ctx, tx, `
			MATCH (:User {username: $username})-[r:RATED]->(:Movie {id: $id})
			DELETE r
		`, map[string]any{"username": username, "id": movieID})
		if err != nil {
			return struct{}{}, err
		}
		if summary.Counters().RelationshipsDeleted() == 0 {
			return struct{}{}, apperrors.NewNotFoundError("Review")
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Store) ReviewStats(ctx context.Context, movieID string) (*types.ReviewStats, error) {
	return read(ctx, s, "review stats", func(tx neo4j.ManagedTransaction) (*types.ReviewStats, error) {
		m, err := getMovie(ctx, tx, movieID)
		if err != nil {
			return nil, err
		}

		records, err := collect(ctx, tx, `
			MATCH (:User)-[r:RATED]->(:Movie {id: $id})
			RETURN r.rating AS rating, count(*) AS count
		`, map[string]any{"id": movieID})
		if err != nil {
			return nil, err
		}

		counts := map[int]int{}
		for _, rec := range records {
			counts[asInt(value(rec, "rating"))] = asInt(value(rec, "count"))
		}
		return database.BuildReviewStats(m.ID, m.Title, counts), nil
	})
}

func (s *Store) UserStats(ctx context.Context, username string) (*types.UserStats, error) {
	return read(ctx, s, "user stats", func(tx neo4j.ManagedTransaction) (*types.UserStats, error) {
		records, err := collect(ctx, tx, `
			MATCH (u:User {username: $username})
			OPTIONAL MATCH (u)-[r:RATED]->(:Movie)
			WITH u, count(r) AS total, avg(r.rating) AS average
			CALL {
				WITH u
				MATCH (u)-[:RATED]->(:Movie)-[:HAS_GENRE]->(g:Genre)
				WITH g, count(*) AS rated
				ORDER BY rated DESC, g.name
				LIMIT $limit
				RETURN collect(g.name) AS genres
			}
			RETURN total, average, genres
		`, map[string]any{"username": username, "limit": database.FavoriteGenreLimit})
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, apperrors.NewNotFoundError("User")
		}

		rec := records[0]
		return &types.UserStats{
			Username:       username,
			TotalRatings:   asInt(value(rec, "total")),
			AvgRating:      asFloatPtr(value(rec, "average")),
			FavoriteGenres: asStrings(value(rec, "genres")),
		}, nil
	})
}
