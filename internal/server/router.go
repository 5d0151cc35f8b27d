// Package server assembles the HTTP API.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/auth"
	"moviegraph/internal/database"
	"moviegraph/internal/handlers"
	"moviegraph/internal/middleware"
	"moviegraph/internal/services"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Store      database.Store
	Issuer     *auth.TokenIssuer
	Auth       *auth.Middleware
	Enforcer   *auth.Enforcer
	Importer   *services.Importer
	Errors     *apperrors.ErrorHandler
	Registry   *prometheus.Registry
	Logger     *zap.Logger
	BcryptCost int

	CORSOrigins []string
	// AuthRateLimit requests per AuthRateWindow are allowed on /login and
	// /register for each client IP. Zero disables the limit.
	AuthRateLimit  int
	AuthRateWindow time.Duration
	// TrustProxyHeaders takes the client IP from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

func NewRouter(d Deps) http.Handler {
	movies := handlers.NewMovieHandler(d.Store, d.Errors)
	persons := handlers.NewPersonHandler(d.Store, d.Errors)
	users := handlers.NewUserHandler(d.Store, d.Enforcer, d.Errors)
	reviews := handlers.NewReviewHandler(d.Store, d.Enforcer, d.Errors)
	watchlists := handlers.NewWatchlistHandler(d.Store, d.Errors)
	recommend := handlers.NewRecommendHandler(d.Store, d.Enforcer, d.Errors)
	stats := handlers.NewStatsHandler(d.Store, d.Errors)
	authHandler := handlers.NewAuthHandler(d.Store, d.Issuer, d.BcryptCost, d.Errors, d.Logger)
	imports := handlers.NewImportHandler(d.Importer, d.Errors)

	requireAuth := d.Auth.RequireAuth
	allow := func(object, action, denied string) func(http.Handler) http.Handler {
		return d.Enforcer.Authorize(object, action, denied, d.Errors)
	}
	adminOnly := "Admin privileges required"

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if d.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.NewMetrics(d.Registry).Handler)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		d.Errors.HandleStatus(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		d.Errors.HandleStatus(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", stats.Health)
	r.Get("/stats", stats.GetStats)
	r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		if d.AuthRateLimit > 0 {
			r.Use(httprate.Limit(d.AuthRateLimit, d.AuthRateWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					d.Errors.Handle(w, r, apperrors.NewRateLimitError("Too many requests, try again later"))
				}),
			))
		}
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/me", users.GetCurrentUser)
		r.Get("/me/reviews", users.GetCurrentUserReviews)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(requireAuth)
		r.With(allow(auth.ObjUsers, auth.ActManage, adminOnly)).Get("/", users.GetUsers)
		r.Get("/{username}", users.GetUser)
		r.Get("/{username}/stats", users.GetUserStats)
		r.With(allow(auth.ObjUsers, auth.ActManage, adminOnly)).Put("/{username}/role", users.UpdateRole)
	})

	r.Route("/movies", func(r chi.Router) {
		r.Get("/", movies.ListMovies)
		r.Get("/search", movies.SearchMovies)
		r.Get("/{ref}", movies.GetMovie)
		r.Get("/{ref}/actors", movies.GetMovieActors)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth, allow(auth.ObjMovies, auth.ActWrite, adminOnly))
			r.Post("/", movies.CreateMovie)
			r.Put("/{ref}", movies.UpdateMovie)
			r.Delete("/{ref}", movies.DeleteMovie)
			r.Post("/{ref}/actors", movies.AddActor)
		})
	})

	r.Route("/persons", func(r chi.Router) {
		r.Get("/", persons.ListPersons)
		r.Get("/search", persons.SearchPersons)
		r.Get("/collaborations", persons.GetCollaborations)
		r.Get("/{ref}", persons.GetPerson)
		r.Get("/{ref}/movies", persons.GetPersonMovies)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth, allow(auth.ObjPersons, auth.ActWrite, adminOnly))
			r.Post("/", persons.CreatePerson)
			r.Put("/{ref}", persons.UpdatePerson)
			r.Delete("/{ref}", persons.DeletePerson)
		})
	})

	r.Route("/reviews", func(r chi.Router) {
		r.Get("/{movie}", reviews.GetReviews)
		r.Get("/{movie}/stats", reviews.GetReviewStats)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", reviews.CreateReview)
			r.Delete("/{movie}", reviews.DeleteReview)
		})
	})

	r.Route("/recommend/movies", func(r chi.Router) {
		r.Get("/similar/{title}", recommend.SimilarMovies)
		r.With(requireAuth).Get("/{username}", recommend.ForUser)
	})

	r.Route("/watchlists", func(r chi.Router) {
		r.Get("/public", watchlists.GetPublicWatchlists)
		r.With(d.Auth.OptionalAuth).Get("/{id}", watchlists.GetWatchlist)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", watchlists.GetWatchlists)
			r.Get("/movie/{movie}/check", watchlists.CheckMovie)

			r.Group(func(r chi.Router) {
				r.Use(allow(auth.ObjWatchlists, auth.ActWrite, "Visitors cannot modify watchlists"))
				r.Post("/", watchlists.CreateWatchlist)
				r.Put("/{id}", watchlists.UpdateWatchlist)
				r.Delete("/{id}", watchlists.DeleteWatchlist)
				r.Post("/{id}/movies", watchlists.AddMovie)
				r.Delete("/{id}/movies/{movie}", watchlists.RemoveMovie)
			})
		})
	})

	r.Route("/imports", func(r chi.Router) {
		r.Use(requireAuth, allow(auth.ObjImports, auth.ActRun, adminOnly))
		r.Post("/tmdb", imports.ImportTMDB)
		r.Post("/plex", imports.ImportPlex)
	})

	return r
}
