package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

const movieColumns = `m.id, m.title, m.year, m.duration, m.tagline, m.synopsis,
	m.poster_url, m.trailer_url, m.created_at, m.updated_at`

const (
	kindActedIn  = "ACTED_IN"
	kindDirected = "DIRECTED"
	kindProduced = "PRODUCED"
)

func scanMovie(row scanner, extra ...any) (types.Movie, error) {
	var m types.Movie
	dest := []any{
		&m.ID, &m.Title, &m.Year, &m.Duration, &m.Tagline, &m.Synopsis,
		&m.PosterURL, &m.TrailerURL, &m.Created, &m.Updated,
	}
	err := row.Scan(append(dest, extra...)...)
	return m, err
}

func (s *Store) ListMovies(ctx context.Context, filter types.MovieFilter, page types.Page) ([]types.MovieSummary, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	page = database.ClampPage(page)
	genre := database.NameKey(filter.Genre)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+movieColumns+`, AVG(r.rating), COUNT(r.rating)
		FROM movies m
		LEFT JOIN ratings r ON r.movie_id = m.id
		WHERE (? = 0 OR m.year = ?)
		  AND (? = '' OR EXISTS (
		    SELECT 1 FROM movie_genres mg JOIN genres g ON g.id = mg.genre_id
		    WHERE mg.movie_id = m.id AND instr(g.name_key, ?) > 0
		  ))
		GROUP BY m.id
		ORDER BY m.year DESC, m.title
		LIMIT ? OFFSET ?
	`, filter.Year, filter.Year, genre, genre, page.Limit, page.Skip)
	if err != nil {
		return nil, mapError("list movies", err)
	}
	defer rows.Close()

	movies := []types.MovieSummary{}
	for rows.Next() {
		var ratings types.Ratings
		m, err := scanMovie(rows, &ratings.AvgRating, &ratings.RatingCount)
		if err != nil {
			return nil, mapError("list movies", err)
		}
		movies = append(movies, types.MovieSummary{Movie: m, Ratings: ratings})
	}
	return movies, mapError("list movies", rows.Err())
}

func (s *Store) GetMovie(ctx context.Context, id string) (*types.Movie, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	m, err := getMovie(ctx, s.db, id)
	if err != nil {
		return nil, mapError("get movie", err)
	}
	return m, nil
}

func getMovie(ctx context.Context, q queryer, id string) (*types.Movie, error) {
	m, err := scanMovie(q.QueryRowContext(ctx, `SELECT `+movieColumns+` FROM movies m WHERE m.id = ?`, id))
	if err != nil {
		return nil, notFoundIfNoRows(err, "Movie")
	}
	return &m, nil
}

func (s *Store) FindMovieByTitle(ctx context.Context, title string) (*types.Movie, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+movieColumns+`
		FROM movies m
		WHERE m.title_key = ?
		ORDER BY m.year DESC
		LIMIT 2
	`, database.NameKey(title))
	if err != nil {
		return nil, mapError("find movie", err)
	}
	defer rows.Close()

	var found []types.Movie
	for rows.Next() {
		m, err := scanMovie(rows)
		if err != nil {
			return nil, mapError("find movie", err)
		}
		found = append(found, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("find movie", err)
	}

	switch len(found) {
	case 0:
		return nil, apperrors.NewNotFoundError("Movie")
	case 1:
		return &found[0], nil
	default:
		return nil, apperrors.NewConflictError(
			fmt.Sprintf("several movies are titled '%s', use the movie id", title))
	}
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
			SELECT `+movieColumns+`, dice_similarity(m.title, ?) AS similarity
			FROM movies m
			WHERE similarity > ?
			ORDER BY similarity DESC, m.year DESC, m.title
			LIMIT ?
		`, query, s.opts.SimilarityThreshold, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+movieColumns+`, 0.0
			FROM movies m
			WHERE instr(m.title_key, ?) > 0
			ORDER BY m.year DESC, m.title
			LIMIT ?
		`, database.NameKey(query), limit)
	}
	if err != nil {
		return nil, mapError("search movies", err)
	}
	defer rows.Close()

	matches := []types.MovieMatch{}
	for rows.Next() {
		var similarity float64
		m, err := scanMovie(rows, &similarity)
		if err != nil {
			return nil, mapError("search movies", err)
		}
		matches = append(matches, types.MovieMatch{Movie: m, Similarity: similarity})
	}
	return matches, mapError("search movies", rows.Err())
}

func (s *Store) GetMovieDetail(ctx context.Context, id string) (*types.MovieDetail, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	detail, err := movieDetail(ctx, s.db, id)
	if err != nil {
		return nil, mapError("get movie", err)
	}
	return detail, nil
}

func movieDetail(ctx context.Context, q queryer, id string) (*types.MovieDetail, error) {
	m, err := getMovie(ctx, q, id)
	if err != nil {
		return nil, err
	}

	detail := &types.MovieDetail{Movie: *m}
	if detail.Ratings, err = movieRatings(ctx, q, id); err != nil {
		return nil, err
	}
	if detail.Actors, err = movieCast(ctx, q, id); err != nil {
		return nil, err
	}
	if detail.Directors, err = creditNames(ctx, q, id, kindDirected); err != nil {
		return nil, err
	}
	if detail.Producers, err = creditNames(ctx, q, id, kindProduced); err != nil {
		return nil, err
	}
	if detail.Genres, err = queryStrings(ctx, q, `
		SELECT g.name FROM movie_genres mg JOIN genres g ON g.id = mg.genre_id
		WHERE mg.movie_id = ? ORDER BY g.name
	`, id); err != nil {
		return nil, err
	}
	if detail.Platforms, err = queryStrings(ctx, q, `
		SELECT p.name FROM movie_platforms mp JOIN platforms p ON p.id = mp.platform_id
		WHERE mp.movie_id = ? ORDER BY p.name
	`, id); err != nil {
		return nil, err
	}
	return detail, nil
}

func movieRatings(ctx context.Context, q queryer, movieID string) (types.Ratings, error) {
	var r types.Ratings
	err := q.QueryRowContext(ctx,
		`SELECT AVG(rating), COUNT(*) FROM ratings WHERE movie_id = ?`, movieID).
		Scan(&r.AvgRating, &r.RatingCount)
	return r, err
}

func creditNames(ctx context.Context, q queryer, movieID, kind string) ([]string, error) {
	return queryStrings(ctx, q, `
		SELECT p.name FROM credits c JOIN persons p ON p.id = c.person_id
		WHERE c.movie_id = ? AND c.kind = ?
		ORDER BY p.name
	`, movieID, kind)
}

func (s *Store) MovieCast(ctx context.Context, movieID string) ([]types.Credit, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	cast, err := movieCast(ctx, s.db, movieID)
	return cast, mapError("movie cast", err)
}

func movieCast(ctx context.Context, q queryer, movieID string) ([]types.Credit, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT p.name, c.roles FROM credits c JOIN persons p ON p.id = c.person_id
		WHERE c.movie_id = ? AND c.kind = 'ACTED_IN'
		ORDER BY p.name
	`, movieID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cast := []types.Credit{}
	for rows.Next() {
		var (
			credit types.Credit
			roles  string
		)
		if err := rows.Scan(&credit.Name, &roles); err != nil {
			return nil, err
		}
		if credit.Roles, err = decodeRoles(roles); err != nil {
			return nil, err
		}
		cast = append(cast, credit)
	}
	return cast, rows.Err()
}

func encodeRoles(roles []string) (string, error) {
	if roles == nil {
		roles = []string{}
	}
	b, err := json.Marshal(roles)
	return string(b), err
}

func decodeRoles(raw string) ([]string, error) {
	var roles []string
	if err := json.Unmarshal([]byte(raw), &roles); err != nil {
		return nil, fmt.Errorf("malformed roles %q: %w", raw, err)
	}
	return roles, nil
}

func movieConflict(title string, year int) error {
	return apperrors.NewConflictError(fmt.Sprintf("Movie '%s' (%d) already exists", title, year))
}

func (s *Store) CreateMovie(ctx context.Context, in types.MovieInput) (*types.MovieDetail, error) {
	var id string
	err := s.withTx(ctx, "create movie", func(tx *sql.Tx) error {
		var err error
		id, err = s.insertMovie(ctx, tx, in)
		if err != nil {
			return err
		}
		return s.linkMovie(ctx, tx, id, in.Genres, in.Directors, in.Producers, in.Actors, in.Platforms)
	})
	if err != nil {
		return nil, err
	}
	return s.GetMovieDetail(ctx, id)
}

func (s *Store) insertMovie(ctx context.Context, tx *sql.Tx, in types.MovieInput) (string, error) {
	id := uuid.NewString()
	now := s.timestamp()
	title := strings.TrimSpace(in.Title)

	_, err := tx.ExecContext(ctx, `
		INSERT INTO movies (id, title, title_key, year, duration, tagline, synopsis,
			poster_url, trailer_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, title, database.NameKey(title), in.Year, in.Duration, in.Tagline, in.Synopsis,
		in.PosterURL, in.TrailerURL, now, now)
	if isUniqueViolation(err) {
		return "", movieConflict(title, in.Year)
	}
	return id, err
}

// linkMovie merges the named people, genres and platforms and links them to
// the movie. Existing links are kept; actor roles are overwritten.
func (s *Store) linkMovie(ctx context.Context, tx *sql.Tx, movieID string,
	genres, directors, producers []string, actors []types.Credit, platforms []string) error {
	for _, name := range database.DistinctNames(genres) {
		if err := linkNamed(ctx, tx, "genres", "movie_genres", "genre_id", movieID, name); err != nil {
			return err
		}
	}
	for _, name := range database.DistinctNames(platforms) {
		if err := linkNamed(ctx, tx, "platforms", "movie_platforms", "platform_id", movieID, name); err != nil {
			return err
		}
	}
	for _, name := range database.DistinctNames(directors) {
		if err := s.linkPerson(ctx, tx, movieID, name, kindDirected, nil); err != nil {
			return err
		}
	}
	for _, name := range database.DistinctNames(producers) {
		if err := s.linkPerson(ctx, tx, movieID, name, kindProduced, nil); err != nil {
			return err
		}
	}
	for _, credit := range database.DistinctCredits(actors) {
		if err := s.linkPerson(ctx, tx, movieID, credit.Name, kindActedIn, credit.Roles); err != nil {
			return err
		}
	}
	return nil
}

// linkNamed merges a genre or platform by name. table and joinTable are
// package constants, never user input.
func linkNamed(ctx context.Context, tx *sql.Tx, table, joinTable, column, movieID, name string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO `+table+` (name, name_key) VALUES (?, ?) ON CONFLICT(name_key) DO NOTHING`,
		name, database.NameKey(name))
	if err != nil {
		return err
	}

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE name_key = ?`,
		database.NameKey(name)).Scan(&id); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+joinTable+` (movie_id, `+column+`) VALUES (?, ?)`, movieID, id)
	return err
}

func (s *Store) mergePerson(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	now := s.timestamp()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO persons (id, name, name_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name_key) DO NOTHING
	`, uuid.NewString(), name, database.NameKey(name), now, now)
	if err != nil {
		return "", err
	}

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM persons WHERE name_key = ?`, database.NameKey(name)).Scan(&id)
	return id, err
}

func (s *Store) linkPerson(ctx context.Context, tx *sql.Tx, movieID, name, kind string, roles []string) error {
	personID, err := s.mergePerson(ctx, tx, name)
	if err != nil {
		return err
	}
	return upsertCredit(ctx, tx, personID, movieID, kind, roles)
}

func upsertCredit(ctx context.Context, tx *sql.Tx, personID, movieID, kind string, roles []string) error {
	encoded, err := encodeRoles(roles)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO credits (person_id, movie_id, kind, roles) VALUES (?, ?, ?, ?)
		ON CONFLICT(person_id, movie_id, kind) DO UPDATE SET roles = excluded.roles
	`, personID, movieID, kind, encoded)
	return err
}

func (s *Store) UpdateMovie(ctx context.Context, id string, upd types.MovieUpdate) (*types.MovieDetail, error) {
	err := s.withTx(ctx, "update movie", func(tx *sql.Tx) error {
		m, err := getMovie(ctx, tx, id)
		if err != nil {
			return err
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

		_, err = tx.ExecContext(ctx, `
			UPDATE movies SET title = ?, title_key = ?, year = ?, duration = ?, tagline = ?,
				synopsis = ?, poster_url = ?, trailer_url = ?, updated_at = ?
			WHERE id = ?
		`, m.Title, database.NameKey(m.Title), m.Year, m.Duration, m.Tagline,
			m.Synopsis, m.PosterURL, m.TrailerURL, s.timestamp(), id)
		if isUniqueViolation(err) {
			return movieConflict(m.Title, m.Year)
		}
		if err != nil {
			return err
		}

		return s.replaceLinks(ctx, tx, id, upd)
	})
	if err != nil {
		return nil, err
	}
	return s.GetMovieDetail(ctx, id)
}

// replaceLinks swaps out every relationship list present in upd.
func (s *Store) replaceLinks(ctx context.Context, tx *sql.Tx, id string, upd types.MovieUpdate) error {
	exec := func(query string, args ...any) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}

	var genres, directors, producers, platforms []string
	var actors []types.Credit

	if upd.Genres != nil {
		if err := exec(`DELETE FROM movie_genres WHERE movie_id = ?`, id); err != nil {
			return err
		}
		genres = upd.Genres
	}
	if upd.Platforms != nil {
		if err := exec(`DELETE FROM movie_platforms WHERE movie_id = ?`, id); err != nil {
			return err
		}
		platforms = upd.Platforms
	}
	if upd.Directors != nil {
		if err := exec(`DELETE FROM credits WHERE movie_id = ? AND kind = ?`, id, kindDirected); err != nil {
			return err
		}
		directors = upd.Directors
	}
	if upd.Producers != nil {
		if err := exec(`DELETE FROM credits WHERE movie_id = ? AND kind = ?`, id, kindProduced); err != nil {
			return err
		}
		producers = upd.Producers
	}
	if upd.Actors != nil {
		if err := exec(`DELETE FROM credits WHERE movie_id = ? AND kind = ?`, id, kindActedIn); err != nil {
			return err
		}
		actors = upd.Actors
	}

	return s.linkMovie(ctx, tx, id, genres, directors, producers, actors, platforms)
}

func (s *Store) DeleteMovie(ctx context.Context, id string) error {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
	if err != nil {
		return mapError("delete movie", err)
	}
	return mapError("delete movie", requireAffected(res, "Movie"))
}

func (s *Store) AddActor(ctx context.Context, movieID string, req types.AddActorRequest) error {
	return s.withTx(ctx, "add actor", func(tx *sql.Tx) error {
		if _, err := getMovie(ctx, tx, movieID); err != nil {
			return err
		}

		var personID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM persons WHERE name_key = ?`,
			database.NameKey(req.Name)).Scan(&personID)
		if err != nil {
			return notFoundIfNoRows(err, "Person")
		}

		return upsertCredit(ctx, tx, personID, movieID, kindActedIn, database.DistinctNames(req.Roles))
	})
}

func (s *Store) UpsertMovie(ctx context.Context, in types.MovieInput) (*types.Movie, bool, error) {
	var (
		id      string
		created bool
	)
	err := s.withTx(ctx, "upsert movie", func(tx *sql.Tx) error {
		title := strings.TrimSpace(in.Title)
		err := tx.QueryRowContext(ctx, `SELECT id FROM movies WHERE title_key = ? AND year = ?`,
			database.NameKey(title), in.Year).Scan(&id)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			created = true
			if id, err = s.insertMovie(ctx, tx, in); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE movies SET
					duration = COALESCE(?, duration),
					tagline = COALESCE(?, tagline),
					synopsis = COALESCE(?, synopsis),
					poster_url = COALESCE(?, poster_url),
					trailer_url = COALESCE(?, trailer_url),
					updated_at = ?
				WHERE id = ?
			`, in.Duration, in.Tagline, in.Synopsis, in.PosterURL, in.TrailerURL, s.timestamp(), id)
			if err != nil {
				return err
			}
		}

		return s.linkMovie(ctx, tx, id, in.Genres, in.Directors, in.Producers, in.Actors, in.Platforms)
	})
	if err != nil {
		return nil, false, err
	}

	m, err := s.GetMovie(ctx, id)
	return m, created, err
}
