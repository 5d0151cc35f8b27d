package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
)

const watchlistSelect = `
	SELECT w.id, w.name, w.description, w.is_public, u.username, w.created_at, w.updated_at,
		(SELECT COUNT(*) FROM watchlist_movies wm WHERE wm.watchlist_id = w.id)
	FROM watchlists w
	JOIN users u ON u.id = w.user_id`

func scanWatchlist(row scanner) (types.Watchlist, error) {
	var w types.Watchlist
	err := row.Scan(&w.ID, &w.Name, &w.Description, &w.IsPublic, &w.Username,
		&w.Created, &w.Updated, &w.MovieCount)
	return w, err
}

func getWatchlist(ctx context.Context, q queryer, id string) (*types.Watchlist, error) {
	w, err := scanWatchlist(q.QueryRowContext(ctx, watchlistSelect+` WHERE w.id = ?`, id))
	if err != nil {
		return nil, notFoundIfNoRows(err, "Watchlist")
	}
	return &w, nil
}

// ownWatchlist loads the watchlist and checks that username owns it.
func ownWatchlist(ctx context.Context, q queryer, username, id string) (*types.Watchlist, error) {
	w, err := getWatchlist(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if w.Username != username {
		return nil, apperrors.NewForbiddenError("You do not own this watchlist")
	}
	return w, nil
}

func (s *Store) CreateWatchlist(ctx context.Context, username string, in types.WatchlistInput) (*types.Watchlist, error) {
	var created *types.Watchlist
	err := s.withTx(ctx, "create watchlist", func(tx *sql.Tx) error {
		uid, err := userID(ctx, tx, username)
		if err != nil {
			return err
		}

		id := uuid.NewString()
		now := s.timestamp()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO watchlists (id, user_id, name, description, is_public, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, uid, strings.TrimSpace(in.Name), in.Description, in.IsPublic, now, now)
		if err != nil {
			return err
		}

		created, err = getWatchlist(ctx, tx, id)
		return err
	})
	return created, err
}

func (s *Store) ListWatchlists(ctx context.Context, username string) ([]types.Watchlist, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	lists, err := s.queryWatchlists(ctx,
		watchlistSelect+` WHERE u.username = ? ORDER BY w.created_at DESC, w.name`, username)
	return lists, mapError("list watchlists", err)
}

func (s *Store) PublicWatchlists(ctx context.Context, page types.Page) ([]types.Watchlist, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	page = database.ClampPage(page)
	lists, err := s.queryWatchlists(ctx,
		watchlistSelect+` WHERE w.is_public = 1 ORDER BY w.created_at DESC, w.name LIMIT ? OFFSET ?`,
		page.Limit, page.Skip)
	return lists, mapError("public watchlists", err)
}

func (s *Store) queryWatchlists(ctx context.Context, query string, args ...any) ([]types.Watchlist, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lists := []types.Watchlist{}
	for rows.Next() {
		w, err := scanWatchlist(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, w)
	}
	return lists, rows.Err()
}

func (s *Store) GetWatchlist(ctx context.Context, id string) (*types.WatchlistDetail, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	w, err := getWatchlist(ctx, s.db, id)
	if err != nil {
		return nil, mapError("get watchlist", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.title, m.year, wm.added_at
		FROM watchlist_movies wm JOIN movies m ON m.id = wm.movie_id
		WHERE wm.watchlist_id = ?
		ORDER BY wm.added_at DESC, m.title
	`, id)
	if err != nil {
		return nil, mapError("get watchlist", err)
	}
	defer rows.Close()

	detail := &types.WatchlistDetail{Watchlist: *w, Movies: []types.WatchlistMovie{}}
	for rows.Next() {
		var m types.WatchlistMovie
		if err := rows.Scan(&m.ID, &m.Title, &m.Year, &m.Added); err != nil {
			return nil, mapError("get watchlist", err)
		}
		detail.Movies = append(detail.Movies, m)
	}
	return detail, mapError("get watchlist", rows.Err())
}

func (s *Store) UpdateWatchlist(ctx context.Context, username, id string, in types.WatchlistInput) (*types.Watchlist, error) {
	var updated *types.Watchlist
	err := s.withTx(ctx, "update watchlist", func(tx *sql.Tx) error {
		if _, err := ownWatchlist(ctx, tx, username, id); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE watchlists SET name = ?, description = ?, is_public = ?, updated_at = ?
			WHERE id = ?
		`, strings.TrimSpace(in.Name), in.Description, in.IsPublic, s.timestamp(), id)
		if err != nil {
			return err
		}

		updated, err = getWatchlist(ctx, tx, id)
		return err
	})
	return updated, err
}

func (s *Store) DeleteWatchlist(ctx context.Context, username, id string) error {
	return s.withTx(ctx, "delete watchlist", func(tx *sql.Tx) error {
		if _, err := ownWatchlist(ctx, tx, username, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM watchlists WHERE id = ?`, id)
		return err
	})
}

func (s *Store) AddToWatchlist(ctx context.Context, username, id, movieID string) error {
	return s.withTx(ctx, "add to watchlist", func(tx *sql.Tx) error {
		if _, err := ownWatchlist(ctx, tx, username, id); err != nil {
			return err
		}
		if _, err := getMovie(ctx, tx, movieID); err != nil {
			return err
		}

		now := s.timestamp()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO watchlist_movies (watchlist_id, movie_id, added_at) VALUES (?, ?, ?)
			ON CONFLICT(watchlist_id, movie_id) DO NOTHING
		`, id, movieID, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE watchlists SET updated_at = ? WHERE id = ?`, now, id)
		return err
	})
}

func (s *Store) RemoveFromWatchlist(ctx context.Context, username, id, movieID string) error {
	return s.withTx(ctx, "remove from watchlist", func(tx *sql.Tx) error {
		if _, err := ownWatchlist(ctx, tx, username, id); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM watchlist_movies WHERE watchlist_id = ? AND movie_id = ?`, id, movieID)
		if err != nil {
			return err
		}
		if err := requireAffected(res, "Movie in watchlist"); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE watchlists SET updated_at = ? WHERE id = ?`, s.timestamp(), id)
		return err
	})
}

func (s *Store) WatchlistsContaining(ctx context.Context, username, movieID string) ([]types.WatchlistRef, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT w.id, w.name
		FROM watchlists w
		JOIN users u ON u.id = w.user_id
		JOIN watchlist_movies wm ON wm.watchlist_id = w.id
		WHERE u.username = ? AND wm.movie_id = ?
		ORDER BY w.name
	`, username, movieID)
	if err != nil {
		return nil, mapError("check watchlists", err)
	}
	defer rows.Close()

	refs := []types.WatchlistRef{}
	for rows.Next() {
		var ref types.WatchlistRef
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, mapError("check watchlists", err)
		}
		refs = append(refs, ref)
	}
	return refs, mapError("check watchlists", rows.Err())
}
