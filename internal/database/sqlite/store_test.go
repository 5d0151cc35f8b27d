package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/database/storetest"
	"moviegraph/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	s, err := Open(context.Background(), path, database.Options{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) database.Store {
		return newTestStore(t)
	})
}

// A file database uses a connection pool, so concurrent writers really
// contend for the write lock.
func TestStoreContract_FileBacked(t *testing.T) {
	storetest.Run(t, func(t *testing.T) database.Store {
		s, err := Open(context.Background(), filepath.Join(t.TempDir(), "moviegraph.db"), database.Options{}, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { s.Close(context.Background()) })
		return s
	})
}

func TestRunMigrations_Idempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RunMigrations(context.Background()))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestLoadMigrations_Sorted(t *testing.T) {
	migrations, err := loadMigrations(migrationFiles)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "initial_schema", migrations[0].Name)
}

func TestDiceSimilarityFunction(t *testing.T) {
	s := newTestStore(t)

	var score float64
	require.NoError(t, s.db.QueryRow(`SELECT dice_similarity('Night', 'nacht')`).Scan(&score))
	assert.InDelta(t, 0.25, score, 1e-9)
}

func TestQueryTimeout(t *testing.T) {
	s := newTestStore(t)
	s.opts.QueryTimeout = time.Nanosecond

	_, err := s.ListMovies(context.Background(), types.MovieFilter{}, types.Page{})
	assert.True(t, apperrors.IsTimeout(err), "got %v", err)
}

func TestCanceledQuery(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListMovies(ctx, types.MovieFilter{}, types.Page{})
	assert.True(t, apperrors.IsCanceled(err), "got %v", err)
	assert.False(t, apperrors.IsTimeout(err))
}

func TestForeignKeysEnforced(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`INSERT INTO ratings (user_id, movie_id, rating, created_at, updated_at)
		VALUES ('nobody', 'nothing', 5, ?, ?)`, time.Now(), time.Now())
	assert.Error(t, err)
}
