package graph

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

const watchlistProjection = `
	RETURN w {.*, username: owner.username, movie_count: size([(w)-[:CONTAINS]->(x:Movie) | x])} AS watchlist`

func watchlistFromProps(p map[string]any) types.Watchlist {
	return types.Watchlist{
		ID:          asString(p["id"]),
		Name:        asString(p["name"]),
		Description: asStringPtr(p["description"]),
		IsPublic:    asBool(p["is_public"]),
		Username:    asString(p["username"]),
		MovieCount:  asInt(p["movie_count"]),
		Created:     asTime(p["created_at"]),
		Updated:     asTime(p["updated_at"]),
	}
}

func getWatchlist(ctx context.Context, tx neo4j.ManagedTransaction, id string) (*types.Watchlist, error) {
	records, err := collect(ctx, tx,
		`MATCH (owner:User)-[:OWNS]->(w:Watchlist {id: $id})`+watchlistProjection,
		map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError("Watchlist")
	}
	w := watchlistFromProps(props(records[0], "watchlist"))
	return &w, nil
}

func ownWatchlist(ctx context.Context, tx neo4j.ManagedTransaction, username, id string) (*types.Watchlist, error) {
	w, err := getWatchlist(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if w.Username != username {
		return nil, apperrors.NewForbiddenError("You do not own this watchlist")
	}
	return w, nil
}

func (s *Store) CreateWatchlist(ctx context.Context, username string, in types.WatchlistInput) (*types.Watchlist, error) {
	return write(ctx, s, "create watchlist", func(tx neo4j.ManagedTransaction) (*types.Watchlist, error) {
		id := uuid.NewString()
		now := s.timestamp()

		records, err := collect(ctx, tx, `
			MATCH (u:User {username: $username})
			CREATE (u)-[:OWNS]->(w:Watchlist)
			SET w = $props
			RETURN w.id AS id
		`, map[string]any{"username": username, "props": map[string]any{
			"id":          id,
			"name":        strings.TrimSpace(in.Name),
			"description": strOrNil(in.Description),
			"is_public":   in.IsPublic,
			"created_at":  now,
			"updated_at":  now,
		}})
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, apperrors.NewNotFoundError("User")
		}
		return getWatchlist(ctx, tx, id)
	})
}

func (s *Store) ListWatchlists(ctx context.Context, username string) ([]types.Watchlist, error) {
	return s.queryWatchlists(ctx, "list watchlists", `
		MATCH (owner:User {username: $username})-[:OWNS]->(w:Watchlist)
		WITH owner, w ORDER BY w.created_at DESC, w.name
	`+watchlistProjection, map[string]any{"username": username})
}

func (s *Store) PublicWatchlists(ctx context.Context, page types.Page) ([]types.Watchlist, error) {
	page = database.ClampPage(page)
	return s.queryWatchlists(ctx, "public watchlists", `
		MATCH (owner:User)-[:OWNS]->(w:Watchlist {is_public: true})
		WITH owner, w ORDER BY w.created_at DESC, w.name SKIP $skip LIMIT $limit
	`+watchlistProjection, map[string]any{"skip": page.Skip, "limit": page.Limit})
}

func (s *Store) queryWatchlists(ctx context.Context, op, cypher string, params map[string]any) ([]types.Watchlist, error) {
	return read(ctx, s, op, func(tx neo4j.ManagedTransaction) ([]types.Watchlist, error) {
		records, err := collect(ctx, tx, cypher, params)
		if err != nil {
			return nil, err
		}
		lists := make([]types.Watchlist, 0, len(records))
		for _, rec := range records {
			lists = append(lists, watchlistFromProps(props(rec, "watchlist")))
		}
		return lists, nil
	})
}

func (s *Store) GetWatchlist(ctx context.Context, id string) (*types.WatchlistDetail, error) {
	return read(ctx, s, "get watchlist", func(tx neo4j.ManagedTransaction) (*types.WatchlistDetail, error) {
		w, err := getWatchlist(ctx, tx, id)
		if err != nil {
			return nil, err
		}

		records, err := collect(ctx, tx, `
			MATCH (:Watchlist {id: $id})-[c:CONTAINS]->(m:Movie)
			RETURN m.id AS id, m.title AS title, m.year AS year, c.added_at AS added_at
			ORDER BY added_at DESC, title
		`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}

		detail := &types.WatchlistDetail{Watchlist: *w, Movies: make([]types.WatchlistMovie, 0, len(records))}
		for _, rec := range records {
			detail.Movies = append(detail.Movies, types.WatchlistMovie{
				ID:    asString(value(rec, "id")),
				Title: asString(value(rec, "title")),
				Year:  asInt(value(rec, "year")),
				Added: asTime(value(rec, "added_at")),
			})
		}
		return detail, nil
	})
}

func (s *Store) UpdateWatchlist(ctx context.Context, username, id string, in types.WatchlistInput) (*types.Watchlist, error) {
	return write(ctx, s, "update watchlist", func(tx neo4j.ManagedTransaction) (*types.Watchlist, error) {
		if _, err := ownWatchlist(ctx, tx, username, id); err != nil {
			return nil, err
		}

		_, err := exec(ctx, tx, `
			MATCH (w:Watchlist {id: $id})
			SET w.name = $name, w.description = $description, w.is_public = $is_public, w.updated_at = $now
		`, map[string]any{
			"id":          id,
			"name":        strings.TrimSpace(in.Name),
			"description": strOrNil(in.Description),
			"is_public":   in.IsPublic,
			"now":         s.timestamp(),
		})
		if err != nil {
			return nil, err
		}
		return getWatchlist(ctx, tx, id)
	})
}

func (s *Store) DeleteWatchlist(ctx context.Context, username, id string) error {
	_, err := write(ctx, s, "delete watchlist", func(tx neo4j.ManagedTransaction) (struct{}, error) {
		if _, err := ownWatchlist(ctx, tx, username, id); err != nil {
			return struct{}{}, err
		}
		_, err := exec(ctx, tx, `MATCH (w:Watchlist {id: $id}) DETACH DELETE w`, map[string]any{"id": id})
		return struct{}{}, err
	})
	return err
}

func (s *Store) AddToWatchlist(ctx context.Context, username, id, movieID string) error {
	_, err := write(ctx, s, "add to watchlist", func(tx neo4j.ManagedTransaction) (struct{}, error) {
		if _, err := ownWatchlist(ctx, tx, username, id); err != nil {
			return struct{}{}, err
		}
		if _, err := getMovie(ctx, tx, movieID); err != nil {
			return struct{}{}, err
		}

		_, err := exec(ctx, tx, `
			MATCH (w:Watchlist {id: $id}), (m:Movie {id: $movie_id})
			MERGE (w)-[c:CONTAINS]->(m)
			ON CREATE SET c.added_at = $now
			SET w.updated_at = $now
		`, map[string]any{"id": id, "movie_id": movieID, "now": s.timestamp()})
		return struct{}{}, err
	})
	return err
}

func (s *Store) RemoveFromWatchlist(ctx context.Context, username, id, movieID string) error {
	_, err := write(ctx, s, "remove from watchlist", func(tx neo4j.ManagedTransaction) (struct{}, error) {
		if _, err := ownWatchlist(ctx, tx, username, id); err != nil {
			return struct{}{}, err
		}

		summary, err := exec(ctx, tx, `
			MATCH (w:Watchlist {id: $id})-[c:CONTAINS]->(:Movie {id: $movie_id})
			DELETE c
			SET w.updated_at = $now
		`, map[string]any{"id": id, "movie_id": movieID, "now": s.timestamp()})
		if err != nil {
			return struct{}{}, err
		}
		if summary.Counters().RelationshipsDeleted() == 0 {
			return struct{}{}, apperrors.NewNotFoundError("Movie in watchlist")
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Store) WatchlistsContaining(ctx context.Context, username, movieID string) ([]types.WatchlistRef, error) {
	return read(ctx, s, "check watchlists", func(tx neo4j.ManagedTransaction) ([]types.WatchlistRef, error) {
		records, err := collect(ctx, tx, `
			MATCH (:User {username: $username})-[:OWNS]->(w:Watchlist)-[:CONTAINS]->(:Movie {id: $movie_id})
			RETURN w.id AS id, w.name AS name
			ORDER BY name
		`, map[string]any{"username": username, "movie_id": movieID})
		if err != nil {
			return nil, err
		}
		refs := make([]types.WatchlistRef, 0, len(records))
		for _, rec := range records {
			refs = append(refs, types.WatchlistRef{
				ID:   asString(value(rec, "id")),
				Name: asString(value(rec, "name")),
			})
		}
		return refs, nil
	})
}
