package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/types"
)

const neighbourCount = 5

func (s *Store) SimilarMovies(ctx context.Context, movieID string, limit int) ([]types.Recommendation, error) {
	return read(ctx, s, "similar movies", func(tx neo4j.ManagedTransaction) ([]types.Recommendation, error) {
		if _, err := getMovie(ctx, tx, movieID); err != nil {
			return nil, err
		}
		return recommendations(ctx, tx, `
			MATCH (:Movie {id: $id})<-[:ACTED_IN|DIRECTED|PRODUCED]-(p:Person)-[:ACTED_IN|DIRECTED|PRODUCED]->(m:Movie)
			WHERE m.id <> $id
			WITH m, count(DISTINCT p) AS score
			RETURN m.id AS id, m.title AS title, m.year AS year, score
			ORDER BY score DESC, year DESC, title
			LIMIT $limit
		`, map[string]any{"id": movieID, "limit": limit})
	})
}

// RecommendForUser picks the users sharing the most rated movies and
// scores the movies they rated that username has not.
func (s *Store) RecommendForUser(ctx context.Context, username string, limit int) ([]types.Recommendation, error) {
	return read(ctx, s, "recommend", func(tx neo4j.ManagedTransaction) ([]types.Recommendation, error) {
		if _, err := getUser(ctx, tx, username); err != nil {
			return nil, err
		}
		return recommendations(ctx, tx, `
			MATCH (u:User {username: $username})-[:RATED]->(:Movie)<-[:RATED]-(other:User)
			WHERE other <> u
			WITH u, other, count(*) AS overlap
			ORDER BY overlap DESC, other.username
			LIMIT $neighbours
			MATCH (other)-[:RATED]->(m:Movie)
			WHERE NOT (u)-[:RATED]->(m)
			WITH m, count(DISTINCT other) AS score
			RETURN m.id AS id, m.title AS title, m.year AS year, score
			ORDER BY score DESC, year DESC, title
			LIMIT $limit
		`, map[string]any{"username": username, "neighbours": neighbourCount, "limit": limit})
	})
}

func recommendations(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) ([]types.Recommendation, error) {
	records, err := collect(ctx, tx, cypher, params)
	if err != nil {
		return nil, err
	}
	recs := make([]types.Recommendation, 0, len(records))
	for _, rec := range records {
		recs = append(recs, types.Recommendation{
			ID:    asString(value(rec, "id")),
			Title: asString(value(rec, "title")),
			Year:  asInt(value(rec, "year")),
			Score: asInt(value(rec, "score")),
		})
	}
	return recs, nil
}

func (s *Store) Stats(ctx context.Context) (*types.Stats, error) {
	return read(ctx, s, "stats", func(tx neo4j.ManagedTransaction) (*types.Stats, error) {
		records, err := collect(ctx, tx, `
			CALL { MATCH (m:Movie) RETURN count(m) AS movies }
			CALL { MATCH (p:Person) RETURN count(p) AS persons }
			CALL { MATCH (u:User) RETURN count(u) AS users }
			CALL { MATCH (:User)-[r:RATED]->(:Movie) RETURN count(r) AS reviews }
			CALL { MATCH (w:Watchlist) RETURN count(w) AS watchlists }
			CALL { MATCH (:Person)-[r:ACTED_IN]->(:Movie) RETURN count(r) AS acted_in }
			CALL { MATCH (:Person)-[r:DIRECTED]->(:Movie) RETURN count(r) AS directed }
			CALL { MATCH (:Person)-[r:PRODUCED]->(:Movie) RETURN count(r) AS produced }
			CALL {
				OPTIONAL MATCH (m:Movie)
				WITH m ORDER BY m.created_at DESC, m.year DESC LIMIT 1
				RETURN m {.*} AS latest
			}
			RETURN movies, persons, users, reviews, watchlists, acted_in, directed, produced, latest
		`, nil)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, apperrors.NewInternalError("stats returned no rows")
		}

		rec := records[0]
		stats := &types.Stats{
			Movies:     asInt(value(rec, "movies")),
			Persons:    asInt(value(rec, "persons")),
			Users:      asInt(value(rec, "users")),
			Reviews:    asInt(value(rec, "reviews")),
			Watchlists: asInt(value(rec, "watchlists")),
			Relationships: types.RelationshipCounts{
				ActedIn:  asInt(value(rec, "acted_in")),
				Directed: asInt(value(rec, "directed")),
				Produced: asInt(value(rec, "produced")),
			},
		}
		if latest := props(rec, "latest"); latest != nil {
			m := movieFromProps(latest)
			stats.LatestMovie = &m
		}
		return stats, nil
	})
}
