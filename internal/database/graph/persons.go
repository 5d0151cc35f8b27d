package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

func personConflict(name string) error {
	return apperrors.NewConflictError(fmt.Sprintf("Person '%s' already exists", name))
}

func (s *Store) ListPersons(ctx context.Context, page types.Page) ([]types.Person, error) {
	page = database.ClampPage(page)
	return read(ctx, s, "list persons", func(tx neo4j.ManagedTransaction) ([]types.Person, error) {
		records, err := collect(ctx, tx, `
			MATCH (p:Person)
			RETURN p {.*} AS person
			ORDER BY p.name
			SKIP $skip LIMIT $limit
		`, map[string]any{"skip": page.Skip, "limit": page.Limit})
		if err != nil {
			return nil, err
		}
		persons := make([]types.Person, 0, len(records))
		for _, rec := range records {
			persons = append(persons, personFromProps(props(rec, "person")))
		}
		return persons, nil
	})
}

func (s *Store) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	return read(ctx, s, "get person", func(tx neo4j.ManagedTransaction) (*types.Person, error) {
		return getPerson(ctx, tx, "id", id)
	})
}

func (s *Store) FindPersonByName(ctx context.Context, name string) (*types.Person, error) {
	return read(ctx, s, "find person", func(tx neo4j.ManagedTransaction) (*types.Person, error) {
		return getPerson(ctx, tx, "key", database.NameKey(name))
	})
}

// getPerson looks a person up by a uniquely constrained property.
func getPerson(ctx context.Context, tx neo4j.ManagedTransaction, property, v string) (*types.Person, error) {
	records, err := collect(ctx, tx,
		`MATCH (p:Person {`+property+`: $value}) RETURN p {.*} AS person`,
		map[string]any{"value": v})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperrors.NewNotFoundError("Person")
	}
	p := personFromProps(props(records[0], "person"))
	return &p, nil
}

func (s *Store) MatchPerson(ctx context.Context, query string) (*types.PersonMatch, error) {
	matches, err := s.SearchPersons(ctx, query, 1, true)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, apperrors.NewNotFoundError("Person")
	}
	return &matches[0], nil
}

func (s *Store) SearchPersons(ctx context.Context, query string, limit int, fuzzy bool) ([]types.PersonMatch, error) {
	if limit <= 0 {
		limit = database.DefaultSearchLimit
	}

	cypher := `
		MATCH (p:Person)
		WHERE p.key CONTAINS $key
		RETURN p {.*} AS person, 0.0 AS similarity
		ORDER BY p.name
		LIMIT $limit`
	if fuzzy {
		cypher = `
			MATCH (p:Person)
			WITH p, apoc.text.sorensenDiceSimilarity(toLower(p.name), toLower($query)) AS similarity
			WHERE similarity > $threshold
			RETURN p {.*} AS person, similarity
			ORDER BY similarity DESC, p.name
			LIMIT $limit`
	}

	params := map[string]any{
		"query":     query,
		"key":       database.NameKey(query),
		"threshold": s.opts.SimilarityThreshold,
		"limit":     limit,
	}

	return read(ctx, s, "search persons", func(tx neo4j.ManagedTransaction) ([]types.PersonMatch, error) {
		records, err := collect(ctx, tx, cypher, params)
		if err != nil {
			return nil, err
		}
		matches := make([]types.PersonMatch, 0, len(records))
		for _, rec := range records {
			matches = append(matches, types.PersonMatch{
				Person:     personFromProps(props(rec, "person")),
				Similarity: asFloat(value(rec, "similarity")),
			})
		}
		return matches, nil
	})
}

func (s *Store) GetPersonDetail(ctx context.Context, id string) (*types.PersonDetail, error) {
	return read(ctx, s, "get person", func(tx neo4j.ManagedTransaction) (*types.PersonDetail, error) {
		records, err := collect(ctx, tx, `
			MATCH (p:Person {id: $id})
			RETURN p {.*} AS person,
				[(p)-[r:ACTED_IN]->(m:Movie) |
					{movie_id: m.id, movie: m.title, year: m.year, roles: coalesce(r.roles, [])}] AS acted_in,
				[(p)-[:DIRECTED]->(m:Movie) | {movie: m.title, year: m.year}] AS directed,
				[(p)-[:PRODUCED]->(m:Movie) | {movie: m.title, year: m.year}] AS produced
		`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, apperrors.NewNotFoundError("Person")
		}

		rec := records[0]
		return &types.PersonDetail{
			Person:   personFromProps(props(rec, "person")),
			ActedIn:  roleCredits(value(rec, "acted_in")),
			Directed: creditTitles(value(rec, "directed")),
			Produced: creditTitles(value(rec, "produced")),
		}, nil
	})
}

func roleCredits(v any) []types.RoleCredit {
	credits := []types.RoleCredit{}
	for _, m := range asMaps(v) {
		credits = append(credits, types.RoleCredit{
			MovieID: asString(m["movie_id"]),
			Movie:   asString(m["movie"]),
			Year:    asInt(m["year"]),
			Roles:   asStrings(m["roles"]),
		})
	}
	sortRoleCredits(credits)
	return credits
}

// creditTitles orders {movie, year} maps newest first.
func creditTitles(v any) []string {
	credits := roleCredits(v)
	titles := make([]string, 0, len(credits))
	for _, c := range credits {
		titles = append(titles, c.Movie)
	}
	return titles
}

func (s *Store) Filmography(ctx context.Context, personID string) ([]types.RoleCredit, error) {
	return read(ctx, s, "filmography", func(tx neo4j.ManagedTransaction) ([]types.RoleCredit, error) {
		records, err := collect(ctx, tx, `
			MATCH (:Person {id: $id})-[r:ACTED_IN]->(m:Movie)
			RETURN collect({movie_id: m.id, movie: m.title, year: m.year, roles: coalesce(r.roles, [])}) AS credits
		`, map[string]any{"id": personID})
		if err != nil {
			return nil, err
		}
		return roleCredits(value(records[0], "credits")), nil
	})
}

func (s *Store) SharedMovies(ctx context.Context, personID1, personID2 string) ([]string, error) {
	return read(ctx, s, "shared movies", func(tx neo4j.ManagedTransaction) ([]string, error) {
		records, err := collect(ctx, tx, `
			MATCH (:Person {id: $id1})-[:ACTED_IN]->(m:Movie)<-[:ACTED_IN]-(:Person {id: $id2})
			RETURN DISTINCT m.title AS title, m.year AS year
			ORDER BY year DESC, title
		`, map[string]any{"id1": personID1, "id2": personID2})
		if err != nil {
			return nil, err
		}
		titles := make([]string, 0, len(records))
		for _, rec := range records {
			titles = append(titles, asString(value(rec, "title")))
		}
		return titles, nil
	})
}

func personParams(p types.Person) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"key":         database.NameKey(p.Name),
		"born":        intOrNil(p.Born),
		"birthdate":   strOrNil(p.Birthdate),
		"nationality": strOrNil(p.Nationality),
		"biography":   strOrNil(p.Biography),
		"photo_url":   strOrNil(p.PhotoURL),
		"updated_at":  p.Updated,
	}
}

func (s *Store) CreatePerson(ctx context.Context, in types.PersonInput) (*types.Person, error) {
	return write(ctx, s, "create person", func(tx neo4j.ManagedTransaction) (*types.Person, error) {
		p := types.Person{
			ID:          uuid.NewString(),
			Name:        strings.TrimSpace(in.Name),
			Born:        in.Born,
			Birthdate:   in.Birthdate,
			Nationality: in.Nationality,
			Biography:   in.Biography,
			PhotoURL:    in.PhotoURL,
			Updated:     s.timestamp(),
		}

		params := personParams(p)
		params["created_at"] = p.Updated
		_, err := exec(ctx, tx, `CREATE (p:Person) SET p = $props`, map[string]any{"props": params})
		if isConstraintViolation(err) {
			return nil, personConflict(p.Name)
		}
		if err != nil {
			return nil, err
		}
		return getPerson(ctx, tx, "id", p.ID)
	})
}

func (s *Store) UpdatePerson(ctx context.Context, id string, upd types.PersonUpdate) (*types.Person, error) {
	return write(ctx, s, "update person", func(tx neo4j.ManagedTransaction) (*types.Person, error) {
		p, err := getPerson(ctx, tx, "id", id)
		if err != nil {
			return nil, err
		}

		if upd.Name != nil {
			p.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Born != nil {
			p.Born = upd.Born
		}
		if upd.Birthdate != nil {
			p.Birthdate = upd.Birthdate
		}
		if upd.Nationality != nil {
			p.Nationality = upd.Nationality
		}
		if upd.Biography != nil {
			p.Biography = upd.Biography
		}
		if upd.PhotoURL != nil {
			p.PhotoURL = upd.PhotoURL
		}
		p.Updated = s.timestamp()

		_, err = exec(ctx, tx, `MATCH (p:Person {id: $id}) SET p += $props`,
			map[string]any{"id": id, "props": personParams(*p)})
		if isConstraintViolation(err) {
			return nil, personConflict(p.Name)
		}
		if err != nil {
			return nil, err
		}
		return getPerson(ctx, tx, "id", id)
	})
}

func (s *Store) DeletePerson(ctx context.Context, id string) error {
	_, err := write(ctx, s, "delete person", func(tx neo4j.ManagedTransaction) (struct{}, error) {
		summary, err := exec(ctx, tx, `MATCH (p:Person {id: $id}) DETACH DELETE p`, map[string]any{"id": id})
		if err != nil {
			return struct{}{}, err
		}
		if summary.Counters().NodesDeleted() == 0 {
			return struct{}{}, apperrors.NewNotFoundError("Person")
		}
		return struct{}{}, nil
	})
	return err
}
