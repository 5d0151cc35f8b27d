package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/auth"
	"moviegraph/internal/config"
	"moviegraph/internal/database"
	"moviegraph/internal/database/graph"
	"moviegraph/internal/database/sqlite"
	"moviegraph/internal/server"
	"moviegraph/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal("Failed to create logger: ", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("failed to close store", zap.Error(err))
		}
	}()

	if cfg.Auth.AdminUsername != "" {
		hash, err := auth.HashPassword(cfg.Auth.AdminPassword, cfg.Auth.BcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}
		if err := database.EnsureAdmin(ctx, store, cfg.Auth.AdminUsername, hash, logger); err != nil {
			return err
		}
	}

	if cfg.Seed {
		if err := database.Seed(ctx, store, logger); err != nil {
			return fmt.Errorf("failed to seed database: %w", err)
		}
	}

	tokens := auth.TokenConfig{
		Secret:   cfg.Auth.JWTSecret,
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		TTL:      cfg.Auth.TokenTTL,
	}
	issuer, err := auth.NewTokenIssuer(tokens)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}
	validator, err := auth.NewValidator(tokens)
	if err != nil {
		return fmt.Errorf("failed to create token validator: %w", err)
	}
	enforcer, err := auth.NewEnforcer()
	if err != nil {
		return fmt.Errorf("failed to create enforcer: %w", err)
	}

	errs := apperrors.NewErrorHandler(logger, cfg.IsDevelopment())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	handler := server.NewRouter(server.Deps{
		Store:          store,
		Issuer:         issuer,
		Auth:           auth.NewMiddleware(validator, store, errs, logger),
		Enforcer:       enforcer,
		Importer:       newImporter(cfg, store, logger),
		Errors:         errs,
		Registry:       registry,
		Logger:         logger,
		BcryptCost:     cfg.Auth.BcryptCost,
		CORSOrigins:    cfg.Server.CORSOrigins,
		AuthRateLimit:  cfg.Server.AuthRateLimit,
		AuthRateWindow: cfg.Server.AuthRateWindow,

		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("environment", cfg.Environment),
			zap.String("database", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (database.Store, error) {
	opts := database.Options{
		QueryTimeout:        cfg.Database.QueryTimeout,
		SimilarityThreshold: cfg.Database.SimilarityThreshold,
	}

	switch cfg.Database.Driver {
	case config.DriverNeo4j:
		store, err := graph.Open(ctx, graph.Config{
			URI:      cfg.Database.Neo4j.URI,
			Username: cfg.Database.Neo4j.Username,
			Password: cfg.Database.Neo4j.Password,
			Database: cfg.Database.Neo4j.Database,
		}, opts, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
		}
		return store, nil
	default:
		store, err := sqlite.Open(ctx, cfg.Database.SQLite.Path, opts, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return store, nil
	}
}

// newImporter enables only the sources that are configured.
func newImporter(cfg *config.Config, store database.Store, logger *zap.Logger) *services.Importer {
	var tmdb services.TMDBSource
	if cfg.Imports.TMDB.APIKey != "" {
		tmdb = services.NewTMDBClient(cfg.Imports.TMDB.APIKey, services.TMDBOptions{
			BaseURL:  cfg.Imports.TMDB.BaseURL,
			Language: cfg.Imports.TMDB.Language,
			RateRPS:  cfg.Imports.TMDB.RateRPS,
		}, logger.Named("tmdb"))
	} else {
		logger.Info("tmdb import disabled, no api key configured")
	}

	return services.NewImporter(store, tmdb, services.NewPlexClient(logger.Named("plex")), services.ImportOptions{
		PlexURL:   cfg.Imports.Plex.URL,
		PlexToken: cfg.Imports.Plex.Token,
		MaxCast:   cfg.Imports.TMDB.MaxCast,
		Region:    cfg.Imports.TMDB.Region,
	}, logger.Named("importer"))
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.IsDevelopment() {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zc = zap.NewProductionConfig()
	}
	if cfg.Log.Format == "console" {
		zc.Encoding = "console"
	} else if cfg.Log.Format == "json" && !cfg.IsDevelopment() {
		zc.Encoding = "json"
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stdout"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build()
}
