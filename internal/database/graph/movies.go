package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

const movieDetailProjection = `
	RETURN m {.*} AS movie,
		[(a:Person)-[r:ACTED_IN]->(m) | {name: a.name, roles: coalesce(r.roles, [])}] AS actors,
		[(d:Person)-[:DIRECTED]->(m) | d.name] AS directors,
		[(p:Person)-[:PRODUCED]->(m) | p.name] AS producers,
		[(m)-[:HAS_GENRE]->(g:Genre) | g.name] AS genres,
		[(m)-[:AVAILABLE_ON]->(pl:Platform) | pl.name] AS platforms,
		[(:User)-[r:RATED]->(m) | r.rating] AS ratings`

func movieConflict(title string, year int) error {
	return apperrors.NewConflictError(fmt.Sprintf("Movie '%s' (%d) already exists", title, year))
}

func (s *Store) ListMovies(ctx context.Context, filter types.MovieFilter, page types.Page) ([]types.MovieSummary, error) {
	page = database.ClampPage(page)
	return read(ctx, s, "list movies", func(tx neo4j.ManagedTransaction) ([]types.MovieSummary, error) {
		records, err := collect(ctx, tx, `
			MATCH (m:Movie)
			WHERE ($year = 0 OR m.year = $year)
			  AND ($genre = '' OR EXISTS {
			    MATCH (m)-[:HAS_GENRE]->(g:Genre) WHERE g.key CONTAINS $genre
			  })
			RETURN m {.*} AS movie, [(:User)-[r:RATED]->(m) | r.rating] AS ratings
			ORDER BY m.year DESC, m.title
			SKIP $skip LIMIT $limit
		`, map[string]any{
			"year":  int64(filter.Year),
			"genre": database.NameKey(filter.Genre),
			"skip":  page.Skip,
			"limit": page.Limit,
		})
		if err != nil {
			return nil, err
		}

		movies := make([]types.MovieSummary, 0, len(records))
		for _, rec := range records {
			movies = append(movies, types.MovieSummary{
				Movie:   movieFromProps(props(rec, "movie")),
				Ratings: ratingsFromList(value(rec, "ratings")),
			})
		}
		return movies, nil
	})
}

func (s *Store) GetMovie(ctx context.Context, id string) (*types.Movie, error) {
	return read(ctx, s, "get movie", func(tx neo4j.ManagedTransaction) (*types.Movie, error) {
		return getMovie(ctx, tx, id)
	})
}

func getMovie(ctx context.Context, tx neo4j.ManagedTransaction, id string) (*types.Movie, error) {
	records, err := collect(ctx, tx, `MATCH (m:Movie {id: $id}) RETURN m {.*} AS movie`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError("Movie")
	}
	m := movieFromProps(props(records[0], "movie"))
	return &m, nil
}

func (s *Store) FindMovieByTitle(ctx context.Context, title string) (*types.Movie, error) {
	return read(ctx, s, "find movie", func(tx neo4j.ManagedTransaction) (*types.Movie, error) {
		records, err := collect(ctx, tx, `
			MATCH (m:Movie {title_key: $key})
			RETURN m {.*} AS movie
			ORDER BY m.year DESC
			LIMIT 2
		`, map[string]any{"key": database.NameKey(title)})
		if err != nil {
			return nil, err
		}

		switch len(records) {
		case 0:
			return nil, apperrors.NewNotFoundError("Movie")
		case 1:
			m := movieFromProps(props(records[0], "movie"))
			return &m, nil
		default:
			return nil, apperrors.NewConflictError(
				fmt.Sprintf("several movies are titled '%s', use the movie id", title))
		}
	})
}

func (s *Store) MatchMovie(ctx context.Context, query string) (*types.MovieMatch, error) {
	matches, err := s.SearchMovies(ctx, query, 1, true)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, apperrors.NewNotFoundError("Movie")
	}
	return &matches[0], nil
}

func (s *Store) SearchMovies(ctx context.Context, query string, limit int, fuzzy bool) ([]types.MovieMatch, error) {
	if limit <= 0 {
		limit = database.DefaultSearchLimit
	}

	cypher := `
		MATCH (m:Movie)
		WHERE m.title_key CONTAINS $key
		RETURN m {.*} AS movie, 0.0 AS similarity
		ORDER BY m.year DESC, m.title
		LIMIT $limit`
	if fuzzy {
		cypher = `
			MATCH (m:Movie)
			WITH m, apoc.text.sorensenDiceSimilarity(toLower(m.title), toLower($query)) AS similarity
			WHERE similarity > $threshold
			RETURN m {.*} AS movie, similarity
			ORDER BY similarity DESC, m.year DESC, m.title
			LIMIT $limit`
	}

	params := map[string]any{
		"query":     query,
		"key":       database.NameKey(query),
		"threshold": s.opts.SimilarityThreshold,
		"limit":     limit,
	}

	return read(ctx, s, "search movies", func(tx neo4j.ManagedTransaction) ([]types.MovieMatch, error) {
		records, err := collect(ctx, tx, cypher, params)
		if err != nil {
			return nil, err
		}
		matches := make([]types.MovieMatch, 0, len(records))
		for _, rec := range records {
			matches = append(matches, types.MovieMatch{
				Movie:      movieFromProps(props(rec, "movie")),
				Similarity: asFloat(value(rec, "similarity")),
			})
		}
		return matches, nil
	})
}

func (s *Store) GetMovieDetail(ctx context.Context, id string) (*types.MovieDetail, error) {
	return read(ctx, s, "get movie", func(tx neo4j.ManagedTransaction) (*types.MovieDetail, error) {
		return movieDetail(ctx, tx, id)
	})
}

func movieDetail(ctx context.Context, tx neo4j.ManagedTransaction, id string) (*types.MovieDetail, error) {
	records, err := collect(ctx, tx, `MATCH (m:Movie {id: $id})`+movieDetailProjection, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError("Movie")
	}

	rec := records[0]
	return &types.MovieDetail{
		Movie:     movieFromProps(props(rec, "movie")),
		Ratings:   ratingsFromList(value(rec, "ratings")),
		Actors:    creditsFromMaps(value(rec, "actors")),
		Directors: sortedStrings(value(rec, "directors")),
		Producers: sortedStrings(value(rec, "producers")),
		Genres:    sortedStrings(value(rec, "genres")),
		Platforms: sortedStrings(value(rec, "platforms")),
	}, nil
}

func (s *Store) MovieCast(ctx context.Context, movieID string) ([]types.Credit, error) {
	return read(ctx, s, "movie cast", func(tx neo4j.ManagedTransaction) ([]types.Credit, error) {
		records, err := collect(ctx, tx, `
			MATCH (a:Person)-[r:ACTED_IN]->(:Movie {id: $id})
			RETURN a.name AS name, coalesce(r.roles, []) AS roles
			ORDER BY name
		`, map[string]any{"id": movieID})
		if err != nil {
			return nil, err
		}
		cast := make([]types.Credit, 0, len(records))
		for _, rec := range records {
			cast = append(cast, types.Credit{Name: asString(value(rec, "name")), Roles: asStrings(value(rec, "roles"))})
		}
		return cast, nil
	})
}

func movieParams(m types.Movie) map[string]any {
	return map[string]any{
		"id":          m.ID,
		"title":       m.Title,
		"title_key":   database.NameKey(m.Title),
		"key":         database.MovieKey(m.Title, m.Year),
		"year":        int64(m.Year),
		"duration":    intOrNil(m.Duration),
		"tagline":     strOrNil(m.Tagline),
		"synopsis":    strOrNil(m.Synopsis),
		"poster_url":  strOrNil(m.PosterURL),
		"trailer_url": strOrNil(m.TrailerURL),
		"updated_at":  m.Updated,
	}
}

func inputMovie(in types.MovieInput) types.Movie {
	return types.Movie{
		Title:      strings.TrimSpace(in.Title),
		Year:       in.Year,
		Duration:   in.Duration,
		Tagline:    in.Tagline,
		Synopsis:   in.Synopsis,
		PosterURL:  in.PosterURL,
		TrailerURL: in.TrailerURL,
	}
}

func (s *Store) CreateMovie(ctx context.Context, in types.MovieInput) (*types.MovieDetail, error) {
	return write(ctx, s, "create movie", func(tx neo4j.ManagedTransaction) (*types.MovieDetail, error) {
		m := inputMovie(in)
		m.ID = uuid.NewString()
		m.Updated = s.timestamp()

		params := movieParams(m)
		params["created_at"] = m.Updated
		_, err := exec(ctx, tx, `CREATE (m:Movie) SET m = $props`, map[string]any{"props": params})
		if isConstraintViolation(err) {
			return nil, movieConflict(m.Title, m.Year)
		}
		if err != nil {
			return nil, err
		}

		if err := s.linkMovie(ctx, tx, m.ID, links{
			genres: in.Genres, directors: in.Directors, producers: in.Producers,
			actors: in.Actors, platforms: in.Platforms,
		}); err != nil {
			return nil, err
		}
		return movieDetail(ctx, tx, m.ID)
	})
}

type links struct {
	genres, directors, producers, platforms []string
	actors                                  []types.Credit
}

func namedParams(names []string) []map[string]any {
	out := make([]map[string]any, 0, len(names))
	for _, name := range database.DistinctNames(names) {
		out = append(out, map[string]any{"name": name, "key": database.NameKey(name), "id": uuid.NewString()})
	}
	return out
}

// linkMovie merges the named nodes and links them to the movie. Existing
// links are kept; actor roles are overwritten.
func (s *Store) linkMovie(ctx context.Context, tx neo4j.ManagedTransaction, movieID string, l links) error {
	now := s.timestamp()

	run := func(cypher string, items []map[string]any) error {
		if len(items) == 0 {
			return nil
		}
		_, err := exec(ctx, tx, cypher, map[string]any{"id": movieID, "items": items, "now": now})
		return err
	}

	if err := run(`
		MATCH (m:Movie {id: $id})
		UNWIND $items AS item
		MERGE (g:Genre {key: item.key}) ON CREATE SET g.name = item.name
		MERGE (m)-[:HAS_GENRE]->(g)
	`, namedParams(l.genres)); err != nil {
		return err
	}

	if err := run(`
		MATCH (m:Movie {id: $id})
		UNWIND $items AS item
		MERGE (p:Platform {key: item.key}) ON CREATE SET p.name = item.name
		MERGE (m)-[:AVAILABLE_ON]->(p)
	`, namedParams(l.platforms)); err != nil {
		return err
	}

	for _, rel := range []struct {
		kind  string
		names []string
	}{{"DIRECTED", l.directors}, {"PRODUCED", l.producers}} {
		if err := run(`
			MATCH (m:Movie {id: $id})
			UNWIND $items AS item
			MERGE (p:Person {key: item.key})
				ON CREATE SET p.id = item.id, p.name = item.name, p.created_at = $now, p.updated_at = $now
			MERGE (p)-[:`+rel.kind+`]->(m)
		`, namedParams(rel.names)); err != nil {
			return err
		}
	}

	actors := make([]map[string]any, 0, len(l.actors))
	for _, c := range database.DistinctCredits(l.actors) {
		actors = append(actors, map[string]any{
			"name":  c.Name,
			"key":   database.NameKey(c.Name),
			"id":    uuid.NewString(),
			"roles": c.Roles,
		})
	}
	return run(`
		MATCH (m:Movie {id: $id})
		UNWIND $items AS item
		MERGE (p:Person {key: item.key})
			ON CREATE SET p.id = item.id, p.name = item.name, p.created_at = $now, p.updated_at = $now
		MERGE (p)-[r:ACTED_IN]->(m)
		SET r.roles = item.roles
	`, actors)
}

func (s *Store) UpdateMovie(ctx context.Context, id string, upd types.MovieUpdate) (*types.MovieDetail, error) {
	return write(ctx, s, "update movie", func(tx neo4j.ManagedTransaction) (*types.MovieDetail, error) {
		m, err := getMovie(ctx, tx, id)
		if err != nil {
			return nil, err
		}

		if upd.Title != nil {
			m.Title = strings.TrimSpace(*upd.Title)
		}
		if upd.Year != nil {
			m.Year = *upd.Year
		}
		if upd.Duration != nil {
			m.Duration = upd.Duration
		}
		if upd.Tagline != nil {
			m.Tagline = upd.Tagline
		}
		if upd.Synopsis != nil {
			m.Synopsis = upd.Synopsis
		}
		if upd.PosterURL != nil {
			m.PosterURL = upd.PosterURL
		}
		if upd.TrailerURL != nil {
			m.TrailerURL = upd.TrailerURL
		}
		m.Updated = s.timestamp()

		_, err = exec(ctx, tx, `MATCH (m:Movie {id: $id}) SET m += $props`,
			map[string]any{"id": id, "props": movieParams(*m)})
		if isConstraintViolation(err) {
			return nil, movieConflict(m.Title, m.Year)
		}
		if err != nil {
			return nil, err
		}

		replace := []struct {
			present bool
			cypher  string
		}{
			{upd.Genres != nil, `MATCH (:Movie {id: $id})-[r:HAS_GENRE]->() DELETE r`},
			{upd.Platforms != nil, `MATCH (:Movie {id: $id})-[r:AVAILABLE_ON]->() DELETE r`},
			{upd.Directors != nil, `MATCH (:Movie {id: $id})<-[r:DIRECTED]-() DELETE r`},
			{upd.Producers != nil, `MATCH (:Movie {id: $id})<-[r:PRODUCED]-() DELETE r`},
			{upd.Actors != nil, `MATCH (:Movie {id: $id})<-[r:ACTED_IN]-() DELETE r`},
		}
		for _, r := range replace {
			if !r.present {
				continue
			}
			if _, err := exec(ctx, tx, r.cypher, map[string]any{"id": id}); err != nil {
				return nil, err
			}
		}

		if err := s.linkMovie(ctx, tx, id, links{
			genres: upd.Genres, directors: upd.Directors, producers: upd.Producers,
			actors: upd.Actors, platforms: upd.Platforms,
		}); err != nil {
			return nil, err
		}
		return movieDetail(ctx, tx, id)
	})
}

func (s *Store) DeleteMovie(ctx context.Context, id string) error {
	_, err := write(ctx, s, "delete movie", func(tx neo4j.ManagedTransaction) (struct{}, error) {
		summary, err := exec(ctx, tx, `MATCH (m:Movie {id: $id}) DETACH DELETE m`, map[string]any{"id": id})
		if err != nil {
			return struct{}{}, err
		}
		if summary.Counters().NodesDeleted() == 0 {
			return struct{}{}, apperrors.NewNotFoundError("Movie")
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Store) AddActor(ctx context.Context, movieID string, req types.AddActorRequest) error {
	_, err := write(ctx, s, "add actor", func(tx neo4j.ManagedTransaction) (struct{}, error) {
		if _, err := getMovie(ctx, tx, movieID); err != nil {
			return struct{}{}, err
		}

		records, err := collect(ctx, tx, `
			MATCH (p:Person {key: $key}), (m:Movie {id: $id})
			MERGE (p)-[r:ACTED_IN]->(m)
			SET r.roles = $roles
			RETURN p.id AS id
		`, map[string]any{
			"key":   database.NameKey(req.Name),
			"id":    movieID,
			"roles": database.DistinctNames(req.Roles),
		})
		if err != nil {
			return struct{}{}, err
		}
		if len(records) == 0 {
			return struct{}{}, apperrors.NewNotFoundError("Person")
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Store) UpsertMovie(ctx context.Context, in types.MovieInput) (*types.Movie, bool, error) {
	type upserted struct {
		movie   types.Movie
		created bool
	}

	out, err := write(ctx, s, "upsert movie", func(tx neo4j.ManagedTransaction) (upserted, error) {
		m := inputMovie(in)
		m.ID = uuid.NewString()
		m.Updated = s.timestamp()

		params := movieParams(m)
		records, err := collect(ctx, tx, `
			MERGE (m:Movie {key: $key})
			ON CREATE SET m.id = $id, m.title = $title, m.title_key = $title_key,
				m.year = $year, m.created_at = $updated_at
			SET m.duration = coalesce($duration, m.duration),
				m.tagline = coalesce($tagline, m.tagline),
				m.synopsis = coalesce($synopsis, m.synopsis),
				m.poster_url = coalesce($poster_url, m.poster_url),
				m.trailer_url = coalesce($trailer_url, m.trailer_url),
				m.updated_at = $updated_at
			RETURN m {.*} AS movie, m.id = $id AS created
		`, params)
		if err != nil {
			return upserted{}, err
		}

		result := upserted{
			movie:   movieFromProps(props(records[0], "movie")),
			created: asBool(value(records[0], "created")),
		}
		err = s.linkMovie(ctx, tx, result.movie.ID, links{
			genres: in.Genres, directors: in.Directors, producers: in.Producers,
			actors: in.Actors, platforms: in.Platforms,
		})
		return result, err
	})
	if err != nil {
		return nil, false, err
	}
	return &out.movie, out.created, nil
}

func sortRoleCredits(credits []types.RoleCredit) {
	sort.SliceStable(credits, func(i, j int) bool {
		if credits[i].Year != credits[j].Year {
			return credits[i].Year > credits[j].Year
		}
		return credits[i].Movie < credits[j].Movie
	})
}
