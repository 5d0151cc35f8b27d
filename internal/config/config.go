// Package config loads moviegraph configuration from built-in defaults, an
// optional YAML file and the environment, in increasing order of priority.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// ConfigPathEnvVar points at an optional YAML file.
	ConfigPathEnvVar = "CONFIG_PATH"
	// EnvPrefix scopes structured overrides, e.g. MOVIEGRAPH_DATABASE__DRIVER.
	EnvPrefix = "MOVIEGRAPH_"

	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverNeo4j  = "neo4j"
	DriverSQLite = "sqlite"

	minSecretLength = 32
)

// DefaultConfigPaths are probed when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"./config.yaml", "/etc/moviegraph/config.yaml"}

type Config struct {
	Environment string         `koanf:"environment"`
	Seed        bool           `koanf:"seed"`
	Server      ServerConfig   `koanf:"server"`
	Database    DatabaseConfig `koanf:"database"`
	Auth        AuthConfig     `koanf:"auth"`
	Imports     ImportsConfig  `koanf:"imports"`
	Log         LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Port            string        `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	// AuthRateLimit is the number of /login and /register calls allowed per
	// client IP within AuthRateWindow. Zero disables limiting.
	AuthRateLimit  int           `koanf:"auth_rate_limit"`
	AuthRateWindow time.Duration `koanf:"auth_rate_window"`
	// TrustProxyHeaders derives the client IP from X-Forwarded-For and
	// X-Real-IP. Off by default, since any client can set them.
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`
}

type DatabaseConfig struct {
	Driver              string        `koanf:"driver"`
	QueryTimeout        time.Duration `koanf:"query_timeout"`
	SimilarityThreshold float64       `koanf:"similarity_threshold"`
	Neo4j               Neo4jConfig   `koanf:"neo4j"`
	SQLite              SQLiteConfig  `koanf:"sqlite"`
}

type Neo4jConfig struct {
	URI      string `koanf:"uri"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type AuthConfig struct {
	JWTSecret  string        `koanf:"jwt_secret"`
	Issuer     string        `koanf:"issuer"`
	Audience   string        `koanf:"audience"`
	TokenTTL   time.Duration `koanf:"token_ttl"`
	BcryptCost int           `koanf:"bcrypt_cost"`
	// AdminUsername and AdminPassword bootstrap the first administrator.
	AdminUsername string `koanf:"admin_username"`
	AdminPassword string `koanf:"admin_password"`
}

type ImportsConfig struct {
	TMDB TMDBConfig `koanf:"tmdb"`
	Plex PlexConfig `koanf:"plex"`
}

type TMDBConfig struct {
	APIKey   string  `koanf:"api_key"`
	BaseURL  string  `koanf:"base_url"`
	RateRPS  float64 `koanf:"rate_rps"`
	MaxCast  int     `koanf:"max_cast"`
	Language string  `koanf:"language"`
	// Region selects which watch providers become platforms.
	Region string `koanf:"region"`
}

type PlexConfig struct {
	URL   string `koanf:"url"`
	Token string `koanf:"token"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() Config {
	return Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			AuthRateLimit:   20,
			AuthRateWindow:  time.Minute,
		},
		Database: DatabaseConfig{
			Driver:              DriverSQLite,
			QueryTimeout:        5 * time.Second,
			SimilarityThreshold: 0.5,
			Neo4j: Neo4jConfig{
				URI:      "neo4j://localhost:7687",
				Username: "neo4j",
				Database: "neo4j",
			},
			SQLite: SQLiteConfig{Path: "./moviegraph.db"},
		},
		Auth: AuthConfig{
			Issuer:     "moviegraph",
			Audience:   "moviegraph-api",
			TokenTTL:   time.Hour,
			BcryptCost: 12,
		},
		Imports: ImportsConfig{
			TMDB: TMDBConfig{
				BaseURL:  "https://api.themoviedb.org/3",
				RateRPS:  4,
				MaxCast:  10,
				Language: "en-US",
				Region:   "US",
			},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_PATH (or the first of DefaultConfigPaths), then the environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitCommaList(k, "server.cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if cfg.Auth.JWTSecret == "" && cfg.IsDevelopment() {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.Auth.JWTSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the process runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case EnvDevelopment, EnvProduction, "test":
	default:
		errs = append(errs, fmt.Errorf("environment must be development, test or production, got %q", c.Environment))
	}

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.Database.Driver {
	case DriverNeo4j:
		if c.Database.Neo4j.URI == "" {
			errs = append(errs, errors.New("database.neo4j.uri is required"))
		}
	case DriverSQLite:
		if c.Database.SQLite.Path == "" {
			errs = append(errs, errors.New("database.sqlite.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", DriverNeo4j, DriverSQLite, c.Database.Driver))
	}
	if c.Database.QueryTimeout <= 0 {
		errs = append(errs, errors.New("database.query_timeout must be positive"))
	}
	if c.Database.SimilarityThreshold < 0 || c.Database.SimilarityThreshold >= 1 {
		errs = append(errs, errors.New("database.similarity_threshold must be in [0, 1)"))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret (JWT_SECRET) is required"))
	} else if !c.IsDevelopment() && len(c.Auth.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d bytes outside development", minSecretLength))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, errors.New("auth.bcrypt_cost must be between 4 and 31"))
	}
	if (c.Auth.AdminUsername == "") != (c.Auth.AdminPassword == "") {
		errs = append(errs, errors.New("auth.admin_username and auth.admin_password must be set together"))
	}

	return errors.Join(errs...)
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// legacyEnv maps the plain variable names used by deployments to config paths.
var legacyEnv = map[string]string{
	"port":            "server.port",
	"environment":     "environment",
	"log_level":       "log.level",
	"log_format":      "log.format",
	"cors_origins":    "server.cors_origins",
	"trust_proxy":     "server.trust_proxy_headers",
	"database_driver": "database.driver",
	"database_path":   "database.sqlite.path",
	"neo4j_uri":       "database.neo4j.uri",
	"neo4j_user":      "database.neo4j.username",
	"neo4j_password":  "database.neo4j.password",
	"neo4j_database":  "database.neo4j.database",
	"jwt_secret":      "auth.jwt_secret",
	"admin_username":  "auth.admin_username",
	"admin_password":  "auth.admin_password",
	"tmdb_api_key":    "imports.tmdb.api_key",
	"tmdb_region":     "imports.tmdb.region",
	"plex_url":        "imports.plex.url",
	"plex_token":      "imports.plex.token",
}

// envTransformFunc maps an environment variable to a config path, or to ""
// to ignore it. MOVIEGRAPH_SERVER__PORT becomes server.port.
func envTransformFunc(key string) string {
	if strings.HasPrefix(key, EnvPrefix) {
		path := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		return strings.ReplaceAll(path, "__", ".")
	}
	return legacyEnv[strings.ToLower(key)]
}

func splitCommaList(k *koanf.Koanf, path string) error {
	raw, ok := k.Get(path).(string)
	if !ok {
		return nil
	}

	var values []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if err := k.Set(path, values); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, minSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate development secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
