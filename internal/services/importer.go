package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/database"
	"moviegraph/internal/types"
	"moviegraph/internal/utils"
)

const (
	defaultImportLimit = 10
	plexPlatform       = "Plex"
)

// TMDBSource is the part of the TMDB API the importer needs.
type TMDBSource interface {
	SearchMovies(ctx context.Context, query string, page int) (*TMDBSearchResponse, error)
	GetMovieDetails(ctx context.Context, tmdbID int) (*TMDBMovieDetails, error)
	GetMovieCredits(ctx context.Context, tmdbID int) (*TMDBCredits, error)
}

// PlexSource lists movies of a Plex Media Server.
type PlexSource interface {
	MovieSections(ctx context.Context, token, serverURL string) ([]PlexSection, error)
	SectionMovies(ctx context.Context, token, serverURL string, sectionKey int) ([]PlexMovie, error)
}

type ImportOptions struct {
	// PlexURL and PlexToken are used when a request names no server.
	PlexURL   string
	PlexToken string
	// MaxCast caps the actors taken from TMDB credits.
	MaxCast int
	// Region selects the TMDB watch providers recorded as platforms.
	Region string
}

// Importer upserts movies from external catalogs. A nil source disables
// the corresponding import.
type Importer struct {
	movies database.MovieStore
	tmdb   TMDBSource
	plex   PlexSource
	opts   ImportOptions
	logger *zap.Logger
}

func NewImporter(movies database.MovieStore, tmdb TMDBSource, plex PlexSource, opts ImportOptions, logger *zap.Logger) *Importer {
	if opts.MaxCast <= 0 {
		opts.MaxCast = 10
	}
	return &Importer{movies: movies, tmdb: tmdb, plex: plex, opts: opts, logger: logger}
}

// ImportTMDB imports the given TMDB ids, or the top search results for the query.
func (i *Importer) ImportTMDB(ctx context.Context, req types.TMDBImportRequest) (*types.ImportResult, error) {
	if i.tmdb == nil {
		return nil, apperrors.NewUnavailableError("tmdb")
	}

	ids := req.TMDBIDs
	if len(ids) == 0 {
		limit := req.Limit
		if limit <= 0 {
			limit = defaultImportLimit
		}
		found, err := i.tmdb.SearchMovies(ctx, req.Query, 1)
		if err != nil {
			return nil, upstreamError("tmdb", err)
		}
		for _, m := range found.Results {
			if len(ids) == limit {
				break
			}
			ids = append(ids, m.ID)
		}
	}

	result := newImportResult()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, apperrors.FromContext("tmdb import", err)
		}

		in, err := i.tmdbMovie(ctx, id)
		if err != nil {
			if errors.Is(err, errSkip) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("tmdb %d: %v", id, err))
			continue
		}
		i.upsert(ctx, "tmdb", *in, result)
	}

	i.logger.Info("tmdb import finished",
		zap.Int("imported", result.Imported), zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped), zap.Int("errors", len(result.Errors)))
	return result, nil
}

var errSkip = errors.New("skipped")

func (i *Importer) tmdbMovie(ctx context.Context, id int) (*types.MovieInput, error) {
	details, err := i.tmdb.GetMovieDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	credits, err := i.tmdb.GetMovieCredits(ctx, id)
	if err != nil {
		return nil, err
	}

	year := ExtractYear(details.ReleaseDate)
	if year == nil {
		i.logger.Debug("skipping tmdb movie without release year", zap.Int("tmdb_id", id))
		return nil, errSkip
	}

	in := MovieFromTMDB(details, credits, *year, i.opts.MaxCast)
	in.Platforms = database.DistinctNames(details.StreamingProviders(i.opts.Region))
	if err := utils.Validate(in); err != nil {
		i.logger.Debug("skipping invalid tmdb movie", zap.Int("tmdb_id", id), zap.Error(err))
		return nil, errSkip
	}
	return &in, nil
}

// MovieFromTMDB maps TMDB details and credits to a movie input, keeping the
// first maxCast billed actors.
func MovieFromTMDB(details *TMDBMovieDetails, credits *TMDBCredits, year, maxCast int) types.MovieInput {
	in := types.MovieInput{
		Title:    strings.TrimSpace(details.Title),
		Year:     year,
		Synopsis: nonEmpty(details.Overview),
		Tagline:  nonEmpty(details.Tagline),
	}
	if details.Runtime > 0 {
		runtime := details.Runtime
		in.Duration = &runtime
	}
	in.PosterURL = nonEmpty(PosterURL(details.PosterPath, "w500"))
	in.TrailerURL = nonEmpty(details.TrailerURL())

	for _, g := range details.Genres {
		in.Genres = append(in.Genres, g.Name)
	}

	for _, c := range credits.Crew {
		switch c.Job {
		case "Director":
			in.Directors = append(in.Directors, c.Name)
		case "Producer":
			in.Producers = append(in.Producers, c.Name)
		}
	}
	in.Directors = database.DistinctNames(in.Directors)
	in.Producers = database.DistinctNames(in.Producers)

	cast := append([]TMDBCast(nil), credits.Cast...)
	sort.SliceStable(cast, func(a, b int) bool { return cast[a].Order < cast[b].Order })
	for _, c := range cast {
		if len(in.Actors) == maxCast {
			break
		}
		credit := types.Credit{Name: c.Name}
		for _, role := range strings.Split(c.Character, " / ") {
			if role = strings.TrimSpace(role); role != "" {
				credit.Roles = append(credit.Roles, role)
			}
		}
		in.Actors = append(in.Actors, credit)
	}
	in.Actors = database.DistinctCredits(in.Actors)
	return in
}

// ImportPlex upserts every movie of the requested sections, or of all movie
// sections, and marks them available on Plex.
func (i *Importer) ImportPlex(ctx context.Context, req types.PlexImportRequest) (*types.ImportResult, error) {
	serverURL, token := req.ServerURL, req.Token
	if serverURL == "" {
		serverURL = i.opts.PlexURL
	}
	if token == "" {
		token = i.opts.PlexToken
	}
	if i.plex == nil || serverURL == "" || token == "" {
		return nil, apperrors.NewUnavailableError("plex")
	}

	keys := req.SectionKeys
	if len(keys) == 0 {
		sections, err := i.plex.MovieSections(ctx, token, serverURL)
		if err != nil {
			return nil, upstreamError("plex", err)
		}
		for _, s := range sections {
			keys = append(keys, s.Key)
		}
	}

	result := newImportResult()
	for _, key := range keys {
		movies, err := i.plex.SectionMovies(ctx, token, serverURL, key)
		if err != nil {
			if ctxErr := apperrors.FromContext("plex import", err); ctxErr != nil {
				return result, ctxErr
			}
			result.Errors = append(result.Errors, fmt.Sprintf("plex section %d: %v", key, err))
			continue
		}

		for _, m := range movies {
			if m.Year == nil || strings.TrimSpace(m.Title) == "" {
				result.Skipped++
				continue
			}
			in := types.MovieInput{Title: strings.TrimSpace(m.Title), Year: *m.Year, Platforms: []string{plexPlatform}}
			if enriched := i.enrichFromTMDB(ctx, m.GUID); enriched != nil {
				enriched.Platforms = database.DistinctNames(append(enriched.Platforms, plexPlatform))
				in = *enriched
			}
			if err := utils.Validate(in); err != nil {
				result.Skipped++
				continue
			}
			i.upsert(ctx, "plex", in, result)
		}
	}

	i.logger.Info("plex import finished",
		zap.Int("imported", result.Imported), zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped), zap.Int("errors", len(result.Errors)))
	return result, nil
}

// enrichFromTMDB loads full metadata for Plex items matched by the TMDB
// agent. It returns nil when TMDB is not configured or the lookup fails.
func (i *Importer) enrichFromTMDB(ctx context.Context, guid string) *types.MovieInput {
	if i.tmdb == nil {
		return nil
	}
	id, ok := TMDBIDFromGUID(guid)
	if !ok {
		return nil
	}
	in, err := i.tmdbMovie(ctx, id)
	if err != nil {
		i.logger.Debug("tmdb enrichment failed", zap.String("guid", guid), zap.Error(err))
		return nil
	}
	return in
}

func (i *Importer) upsert(ctx context.Context, source string, in types.MovieInput, result *types.ImportResult) {
	_, created, err := i.movies.UpsertMovie(ctx, in)
	switch {
	case err != nil:
		i.logger.Warn("import upsert failed",
			zap.String("source", source), zap.String("title", in.Title), zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("%s '%s' (%d): upsert failed", source, in.Title, in.Year))
	case created:
		result.Imported++
	default:
		result.Updated++
	}
}

func newImportResult() *types.ImportResult {
	return &types.ImportResult{Errors: []string{}}
}

func upstreamError(service string, err error) error {
	if ctxErr := apperrors.FromContext(service, err); ctxErr != nil {
		return ctxErr
	}
	return apperrors.NewUnavailableError(service).WithCause(err)
}

func nonEmpty(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
