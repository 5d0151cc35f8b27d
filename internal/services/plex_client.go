package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/LukeHagar/plexgo"
	"github.com/LukeHagar/plexgo/models/operations"
	"go.uber.org/zap"
)

// PlexSection is a Plex library section.
type PlexSection struct {
	Key   int
	Title string
	Type  string
}

// PlexMovie is a movie item of a library section.
type PlexMovie struct {
	Title string
	Year  *int
	GUID  string
}

// PlexClient lists movie libraries of one Plex Media Server through plexgo.
type PlexClient struct {
	logger *zap.Logger
}

func NewPlexClient(logger *zap.Logger) *PlexClient {
	return &PlexClient{logger: logger}
}

// MovieSections returns the sections of type movie.
func (p *PlexClient) MovieSections(ctx context.Context, token, serverURL string) ([]PlexSection, error) {
	client := plexgo.New(
		plexgo.WithSecurity(token),
		plexgo.WithServerURL(serverURL),
	)

	res, err := client.Library.GetAllLibraries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get libraries: %w", err)
	}

	var sections []PlexSection
	if res.Object != nil && res.Object.MediaContainer != nil {
		for _, dir := range res.Object.MediaContainer.Directory {
			if string(dir.Type) != "movie" {
				continue
			}
			key, err := strconv.Atoi(dir.Key)
			if err != nil {
				p.logger.Debug("skipping plex section with non-numeric key", zap.String("key", dir.Key))
				continue
			}
			sections = append(sections, PlexSection{Key: key, Title: dir.Title, Type: string(dir.Type)})
		}
	}
	return sections, nil
}

// SectionMovies lists the movies of a section.
func (p *PlexClient) SectionMovies(ctx context.Context, token, serverURL string, sectionKey int) ([]PlexMovie, error) {
	client := plexgo.New(
		plexgo.WithSecurity(token),
		plexgo.WithServerURL(serverURL),
	)

	res, err := client.Library.GetLibraryItems(ctx, operations.GetLibraryItemsRequest{
		SectionKey: sectionKey,
		Tag:        operations.Tag("all"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get library items: %w", err)
	}

	var movies []PlexMovie
	if res.Object != nil && res.Object.MediaContainer != nil {
		for _, metadata := range res.Object.MediaContainer.Metadata {
			if metadata.Type != operations.GetLibraryItemsTypeMovie {
				continue
			}
			movies = append(movies, PlexMovie{Title: metadata.Title, Year: metadata.Year, GUID: metadata.GUID})
		}
	}

	p.logger.Debug("listed plex section", zap.Int("section", sectionKey), zap.Int("movies", len(movies)))
	return movies, nil
}
