package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

const personColumns = `p.id, p.name, p.born, p.birthdate, p.nationality, p.biography,
	p.photo_url, p.created_at, p.updated_at`

func scanPerson(row scanner, extra ...any) (types.Person, error) {
	var p types.Person
	dest := []any{
		&p.ID, &p.Name, &p.Born, &p.Birthdate, &p.Nationality, &p.Biography,
		&p.PhotoURL, &p.Created, &p.Updated,
	}
	err := row.Scan(append(dest, extra...)...)
	return p, err
}

func personConflict(name string) error {
	return apperrors.NewConflictError(fmt.Sprintf("Person '%s' already exists", name))
}

func (s *Store) ListPersons(ctx context.Context, page types.Page) ([]types.Person, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	page = database.ClampPage(page)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+personColumns+`
		FROM persons p
		ORDER BY p.name
		LIMIT ? OFFSET ?
	`, page.Limit, page.Skip)
	if err != nil {
		return nil, mapError("list persons", err)
	}
	defer rows.Close()

	persons := []types.Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, mapError("list persons", err)
		}
		persons = append(persons, p)
	}
	return persons, mapError("list persons", rows.Err())
}

func (s *Store) GetPerson(ctx context.Context, id string) (*types.Person, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	p, err := getPerson(ctx, s.db, `p.id = ?`, id)
	return p, mapError("get person", err)
}

func (s *Store) FindPersonByName(ctx context.Context, name string) (*types.Person, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	p, err := getPerson(ctx, s.db, `p.name_key = ?`, database.NameKey(name))
	return p, mapError("find person", err)
}

func getPerson(ctx context.Context, q queryer, where string, arg any) (*types.Person, error) {
	p, err := scanPerson(q.QueryRowContext(ctx, `SELECT `+personColumns+` FROM persons p WHERE `+where, arg))
	if err != nil {
		return nil, notFoundIfNoRows(err, "Person")
	}
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
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = database.DefaultSearchLimit
	}

	var (
		rows *sql.Rows
		err  error
	)
	if fuzzy {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+personColumns+`, dice_similarity(p.name, ?) AS similarity
			FROM persons p
			WHERE similarity > ?
			ORDER BY similarity DESC, p.name
			LIMIT ?
		`, query, s.opts.SimilarityThreshold, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+personColumns+`, 0.0
			FROM persons p
			WHERE instr(p.name_key, ?) > 0
			ORDER BY p.name
			LIMIT ?
		`, database.NameKey(query), limit)
	}
	if err != nil {
		return nil, mapError("search persons", err)
	}
	defer rows.Close()

	matches := []types.PersonMatch{}
	for rows.Next() {
		var similarity float64
		p, err := scanPerson(rows, &similarity)
		if err != nil {
			return nil, mapError("search persons", err)
		}
		matches = append(matches, types.PersonMatch{Person: p, Similarity: similarity})
	}
	return matches, mapError("search persons", rows.Err())
}

func (s *Store) GetPersonDetail(ctx context.Context, id string) (*types.PersonDetail, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	p, err := getPerson(ctx, s.db, `p.id = ?`, id)
	if err != nil {
		return nil, mapError("get person", err)
	}

	detail := &types.PersonDetail{Person: *p}
	if detail.ActedIn, err = filmography(ctx, s.db, id); err != nil {
		return nil, mapError("get person", err)
	}
	if detail.Directed, err = creditTitles(ctx, s.db, id, kindDirected); err != nil {
		return nil, mapError("get person", err)
	}
	if detail.Produced, err = creditTitles(ctx, s.db, id, kindProduced); err != nil {
		return nil, mapError("get person", err)
	}
	return detail, nil
}

func creditTitles(ctx context.Context, q queryer, personID, kind string) ([]string, error) {
	return queryStrings(ctx, q, `
		SELECT m.title FROM credits c JOIN movies m ON m.id = c.movie_id
		WHERE c.person_id = ? AND c.kind = ?
		ORDER BY m.year DESC, m.title
	`, personID, kind)
}

func (s *Store) Filmography(ctx context.Context, personID string) ([]types.RoleCredit, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	credits, err := filmography(ctx, s.db, personID)
	return credits, mapError("filmography", err)
}

func filmography(ctx context.Context, q queryer, personID string) ([]types.RoleCredit, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT m.id, m.title, m.year, c.roles
		FROM credits c JOIN movies m ON m.id = c.movie_id
		WHERE c.person_id = ? AND c.kind = 'ACTED_IN'
		ORDER BY m.year DESC, m.title
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credits := []types.RoleCredit{}
	for rows.Next() {
		var (
			rc    types.RoleCredit
			roles string
		)
		if err := rows.Scan(&rc.MovieID, &rc.Movie, &rc.Year, &roles); err != nil {
			return nil, err
		}
		if rc.Roles, err = decodeRoles(roles); err != nil {
			return nil, err
		}
		credits = append(credits, rc)
	}
	return credits, rows.Err()
}

func (s *Store) SharedMovies(ctx context.Context, personID1, personID2 string) ([]string, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	titles, err := queryStrings(ctx, s.db, `
		SELECT m.title
		FROM credits a
		JOIN credits b ON b.movie_id = a.movie_id AND b.kind = 'ACTED_IN'
		JOIN movies m ON m.id = a.movie_id
		WHERE a.person_id = ? AND b.person_id = ? AND a.kind = 'ACTED_IN'
		ORDER BY m.year DESC, m.title
	`, personID1, personID2)
	return titles, mapError("shared movies", err)
}

func (s *Store) CreatePerson(ctx context.Context, in types.PersonInput) (*types.Person, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	id := uuid.NewString()
	now := s.timestamp()
	name := strings.TrimSpace(in.Name)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO persons (id, name, name_key, born, birthdate, nationality, biography,
			photo_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, name, database.NameKey(name), in.Born, in.Birthdate, in.Nationality, in.Biography,
		in.PhotoURL, now, now)
	if isUniqueViolation(err) {
		return nil, personConflict(name)
	}
	if err != nil {
		return nil, mapError("create person", err)
	}

	p, err := getPerson(ctx, s.db, `p.id = ?`, id)
	return p, mapError("create person", err)
}

func (s *Store) UpdatePerson(ctx context.Context, id string, upd types.PersonUpdate) (*types.Person, error) {
	var updated *types.Person
	err := s.withTx(ctx, "update person", func(tx *sql.Tx) error {
		p, err := getPerson(ctx, tx, `p.id = ?`, id)
		if err != nil {
			return err
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

		_, err = tx.ExecContext(ctx, `
			UPDATE persons SET name = ?, name_key = ?, born = ?, birthdate = ?, nationality = ?,
				biography = ?, photo_url = ?, updated_at = ?
			WHERE id = ?
		`, p.Name, database.NameKey(p.Name), p.Born, p.Birthdate, p.Nationality,
			p.Biography, p.PhotoURL, p.Updated, id)
		if isUniqueViolation(err) {
			return personConflict(p.Name)
		}
		updated = p
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) DeletePerson(ctx context.Context, id string) error {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM persons WHERE id = ?`, id)
	if err != nil {
		return mapError("delete person", err)
	}
	return mapError("delete person", requireAffected(res, "Person"))
}
