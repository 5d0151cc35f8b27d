//go:build integration

package graph

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"moviegraph/internal/database"
	"moviegraph/internal/database/storetest"
)

const (
	neo4jImage    = "neo4j:5"
	neo4jPassword = "integration-test"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

// startNeo4j runs a Neo4j container with APOC and returns its bolt URI.
func startNeo4j(t *testing.T) string {
	t.Helper()
	skipIfNoDocker(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        neo4jImage,
			ExposedPorts: []string{"7687/tcp"},
			Env: map[string]string{
				"NEO4J_AUTH":    "neo4j/" + neo4jPassword,
				"NEO4J_PLUGINS": `["apoc"]`,
			},
			WaitingFor: wait.ForAll(
				wait.ForLog("Started."),
				wait.ForListeningPort("7687/tcp"),
			).WithStartupTimeout(3 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("neo4j://%s:%s", host, port.Port())
}

func openStore(t *testing.T, uri string) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, Config{URI: uri, Username: "neo4j", Password: neo4jPassword},
		database.Options{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })

	_, err = neo4j.ExecuteQuery(ctx, s.driver, `MATCH (n) DETACH DELETE n`, nil,
		neo4j.EagerResultTransformer)
	require.NoError(t, err)
	return s
}

func TestStoreContract(t *testing.T) {
	uri := startNeo4j(t)

	storetest.Run(t, func(t *testing.T) database.Store {
		return openStore(t, uri)
	})

	t.Run("SchemaIsIdempotent", func(t *testing.T) {
		s := openStore(t, uri)
		assert.NoError(t, s.EnsureSchema(context.Background()))
	})
}
