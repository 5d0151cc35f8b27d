// Package sqlite is the embedded implementation of database.Store, used for
// development and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"moviegraph/internal/database"
	"moviegraph/internal/fuzzy"
)

const driverName = "sqlite3_moviegraph"

// Applied to every new connection, since SQLite pragmas are per connection.
var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA cache_size = 1000",
	"PRAGMA temp_store = memory",
	"PRAGMA busy_timeout = 5000",
}

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			for _, pragma := range pragmas {
				if _, err := conn.Exec(pragma, nil); err != nil {
					return fmt.Errorf("failed to execute %s: %w", pragma, err)
				}
			}
			return conn.RegisterFunc("dice_similarity", fuzzy.Similarity, true)
		},
	})
}

// Store implements database.Store on SQLite.
type Store struct {
	db     *sql.DB
	opts   database.Options
	logger *zap.Logger
	now    func() time.Time
}

var _ database.Store = (*Store)(nil)

// Open connects to the database at path and applies pending migrations. A
// path starting with "file:" is used as a DSN unchanged.
func Open(ctx context.Context, path string, opts database.Options, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if strings.Contains(path, "mode=memory") {
		// Every connection to a shared-cache memory database sees the same
		// data, but they lock each other at table level.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, opts: opts.Normalize(), logger: logger, now: time.Now}
	if err := s.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	return "file:" + path + "?_txlock=immediate"
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()
	return mapError("ping", s.db.PingContext(ctx))
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// withTx runs fn in a transaction bounded by the query timeout.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return mapError(op, err)
	}
	return mapError(op, tx.Commit())
}

// timestamp truncates to microseconds so values survive a round trip through
// the text representation unchanged.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
