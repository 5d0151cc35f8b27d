// Package graph is the Neo4j implementation of database.Store. Fuzzy
// matching relies on the APOC text functions being installed.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
)

const constraintViolation = "Neo.ClientError.Schema.ConstraintValidationFailed"

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Store implements database.Store on Neo4j. The driver is safe for
// concurrent use; each call opens its own session.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	opts     database.Options
	logger   *zap.Logger
	now      func() time.Time
}

var _ database.Store = (*Store)(nil)

// Open connects to Neo4j, verifies connectivity and ensures the schema.
func Open(ctx context.Context, cfg Config, opts database.Options, logger *zap.Logger) (*Store, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j at %s: %w", cfg.URI, err)
	}

	s := &Store{
		driver:   driver,
		database: cfg.Database,
		opts:     opts.Normalize(),
		logger:   logger,
		now:      time.Now,
	}

	if err := s.EnsureSchema(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()
	return mapError("ping", s.driver.VerifyConnectivity(ctx))
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// read runs work in a managed read transaction bounded by the query timeout.
func read[T any](ctx context.Context, s *Store, op string, work func(tx neo4j.ManagedTransaction) (T, error)) (T, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	out, err := neo4j.ExecuteRead(ctx, session, work)
	if err != nil {
		var zero T
		return zero, mapError(op, err)
	}
	return out, nil
}

// write is read for write transactions. The driver may retry work on
// transient failures, so work must not have side effects outside tx.
func write[T any](ctx context.Context, s *Store, op string, work func(tx neo4j.ManagedTransaction) (T, error)) (T, error) {
	ctx, cancel := s.opts.WithTimeout(ctx)
	defer cancel()

	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	out, err := neo4j.ExecuteWrite(ctx, session, work)
	if err != nil {
		var zero T
		return zero, mapError(op, err)
	}
	return out, nil
}

func collect(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

func exec(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) (neo4j.ResultSummary, error) {
	result, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	return result.Consume(ctx)
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.GetAppError(err) != nil {
		return err
	}
	if ctxErr := apperrors.FromContext(op, err); ctxErr != nil {
		return ctxErr
	}
	if isConstraintViolation(err) {
		return apperrors.NewConflictError("resource already exists").WithCause(err)
	}
	if neo4j.IsConnectivityError(err) {
		return apperrors.NewUnavailableError("neo4j").WithCause(err)
	}
	return apperrors.NewInternalError(op + " failed").WithCause(err)
}

func isConstraintViolation(err error) bool {
	var neoErr *neo4j.Neo4jError
	return errors.As(err, &neoErr) && neoErr.Code == constraintViolation
}

// violatesProperty reports a uniqueness failure on the named property.
func violatesProperty(err error, property string) bool {
	var neoErr *neo4j.Neo4jError
	return errors.As(err, &neoErr) && neoErr.Code == constraintViolation &&
		strings.Contains(neoErr.Msg, "`"+property+"`")
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}
