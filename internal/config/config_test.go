package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsInDevelopment(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, 0.5, cfg.Database.SimilarityThreshold)
	assert.Len(t, cfg.Auth.JWTSecret, 2*minSecretLength, "development gets a random secret")
	assert.False(t, cfg.Server.TrustProxyHeaders)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("PORT", "9090")
	t.Setenv("JWT_SECRET", strings.Repeat("s", 40))
	t.Setenv("NEO4J_URI", "neo4j://graph:7687")
	t.Setenv("MOVIEGRAPH_DATABASE__DRIVER", "neo4j")
	t.Setenv("MOVIEGRAPH_DATABASE__QUERY_TIMEOUT", "2s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, DriverNeo4j, cfg.Database.Driver)
	assert.Equal(t, "neo4j://graph:7687", cfg.Database.Neo4j.URI)
	assert.Equal(t, 2*time.Second, cfg.Database.QueryTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Server.TrustProxyHeaders)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
environment: production
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  token_ttl: 30m
database:
  driver: sqlite
  sqlite:
    path: /var/lib/moviegraph/data.db
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, 30*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "/var/lib/moviegraph/data.db", cfg.Database.SQLite.Path)
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("ENVIRONMENT", EnvProduction)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := defaultConfig()
		cfg.Auth.JWTSecret = strings.Repeat("x", minSecretLength)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "short secret in production",
			mutate:  func(c *Config) { c.Environment = EnvProduction; c.Auth.JWTSecret = "short" },
			wantErr: "at least 32 bytes",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Database.Driver = "postgres" },
			wantErr: "database.driver",
		},
		{
			name:    "zero query timeout",
			mutate:  func(c *Config) { c.Database.QueryTimeout = 0 },
			wantErr: "query_timeout",
		},
		{
			name:    "admin without password",
			mutate:  func(c *Config) { c.Auth.AdminUsername = "root" },
			wantErr: "set together",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Database.SimilarityThreshold = 1.5 },
			wantErr: "similarity_threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "server.port", envTransformFunc("MOVIEGRAPH_SERVER__PORT"))
	assert.Equal(t, "imports.tmdb.api_key", envTransformFunc("TMDB_API_KEY"))
	assert.Equal(t, "", envTransformFunc("HOME"))
}
