package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

var schemaStatements = []string{
	"CREATE CONSTRAINT movie_id IF NOT EXISTS FOR (m:Movie) REQUIRE m.id IS UNIQUE",
	"CREATE CONSTRAINT movie_key IF NOT EXISTS FOR (m:Movie) REQUIRE m.key IS UNIQUE",
	"CREATE CONSTRAINT person_id IF NOT EXISTS FOR (p:Person) REQUIRE p.id IS UNIQUE",
	"CREATE CONSTRAINT person_key IF NOT EXISTS FOR (p:Person) REQUIRE p.key IS UNIQUE",
	"CREATE CONSTRAINT user_id IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE",
	"CREATE CONSTRAINT user_username IF NOT EXISTS FOR (u:User) REQUIRE u.username IS UNIQUE",
	"CREATE CONSTRAINT user_email IF NOT EXISTS FOR (u:User) REQUIRE u.email IS UNIQUE",
	"CREATE CONSTRAINT genre_key IF NOT EXISTS FOR (g:Genre) REQUIRE g.key IS UNIQUE",
	"CREATE CONSTRAINT platform_key IF NOT EXISTS FOR (p:Platform) REQUIRE p.key IS UNIQUE",
	"CREATE CONSTRAINT watchlist_id IF NOT EXISTS FOR (w:Watchlist) REQUIRE w.id IS UNIQUE",
	"CREATE INDEX movie_title_key IF NOT EXISTS FOR (m:Movie) ON (m.title_key)",
	"CREATE INDEX movie_year IF NOT EXISTS FOR (m:Movie) ON (m.year)",
	"CREATE INDEX watchlist_public IF NOT EXISTS FOR (w:Watchlist) ON (w.is_public)",
}

// EnsureSchema creates constraints and indexes that do not exist yet and
// checks that APOC is available. Schema commands cannot share a transaction
// with other writes, so each runs on its own.
func (s *Store) EnsureSchema(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		result, err := session.Run(ctx, stmt, nil)
		if err == nil {
			_, err = result.Consume(ctx)
		}
		if err != nil {
			return fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}

	result, err := session.Run(ctx, "RETURN apoc.version() AS version", nil)
	if err != nil {
		return fmt.Errorf("APOC is required for similarity search: %w", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return fmt.Errorf("APOC is required for similarity search: %w", err)
	}
	version, _ := record.Get("version")

	s.logger.Info("neo4j schema ready",
		zap.Int("statements", len(schemaStatements)),
		zap.Any("apoc", version),
	)
	return nil
}
