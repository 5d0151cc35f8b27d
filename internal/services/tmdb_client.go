package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTMDBBaseURL = "https://api.themoviedb.org/3"
	tmdbImageBaseURL   = "https://image.tmdb.org/t/p/"
	maxTMDBBody        = 4 << 20
)

// ErrTMDBNotFound is returned for ids TMDB does not know.
var ErrTMDBNotFound = errors.New("tmdb: not found")

// TMDBClient talks to the TMDB v3 API. Requests are paced by a token bucket
// and short-circuited while TMDB keeps failing.
type TMDBClient struct {
	apiKey   string
	baseURL  string
	language string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[[]byte]
	logger   *zap.Logger
}

type TMDBOptions struct {
	BaseURL  string
	Language string
	// RateRPS bounds outgoing requests per second. TMDB allows roughly 50.
	RateRPS    float64
	HTTPClient *http.Client
}

type TMDBSearchResponse struct {
	Page         int         `json:"page"`
	Results      []TMDBMovie `json:"results"`
	TotalPages   int         `json:"total_pages"`
	TotalResults int         `json:"total_results"`
}

type TMDBMovie struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	PosterPath  *string `json:"poster_path"`
	Popularity  float64 `json:"popularity"`
}

type TMDBMovieDetails struct {
	TMDBMovie
	Runtime int     `json:"runtime"`
	Genres  []Genre `json:"genres"`
	Tagline string  `json:"tagline"`
	Videos  struct {
		Results []TMDBVideo `json:"results"`
	} `json:"videos"`
	WatchProviders struct {
		Results map[string]TMDBRegionProviders `json:"results"`
	} `json:"watch/providers"`
}

// TMDBRegionProviders lists where a movie can be watched in one region.
type TMDBRegionProviders struct {
	Link     string         `json:"link"`
	Flatrate []TMDBProvider `json:"flatrate"`
	Free     []TMDBProvider `json:"free"`
	Rent     []TMDBProvider `json:"rent"`
	Buy      []TMDBProvider `json:"buy"`
}

type TMDBProvider struct {
	ProviderID   int    `json:"provider_id"`
	ProviderName string `json:"provider_name"`
}

type TMDBVideo struct {
	Key  string `json:"key"`
	Site string `json:"site"`
	Type string `json:"type"`
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type TMDBCredits struct {
	Cast []TMDBCast `json:"cast"`
	Crew []TMDBCrew `json:"crew"`
}

type TMDBCast struct {
	Name      string `json:"name"`
	Character string `json:"character"`
	Order     int    `json:"order"`
}

type TMDBCrew struct {
	Name string `json:"name"`
	Job  string `json:"job"`
}

func NewTMDBClient(apiKey string, opts TMDBOptions, logger *zap.Logger) *TMDBClient {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultTMDBBaseURL
	}
	if opts.RateRPS <= 0 {
		opts.RateRPS = 4
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	c := &TMDBClient{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		language: opts.Language,
		client:   opts.HTTPClient,
		limiter:  rate.NewLimiter(rate.Limit(opts.RateRPS), 1),
		logger:   logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "tmdb",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrTMDBNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c
}

func (c *TMDBClient) get(ctx context.Context, endpoint string, params url.Values, dst any) error {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, endpoint, params)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", endpoint, err)
	}
	return nil
}

func (c *TMDBClient) fetch(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	query := u.Query()
	for key, values := range params {
		for _, v := range values {
			query.Add(key, v)
		}
	}
	if c.language != "" {
		query.Set("language", c.language)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrTMDBNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("tmdb %s returned status %d", endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTMDBBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func (c *TMDBClient) SearchMovies(ctx context.Context, query string, page int) (*TMDBSearchResponse, error) {
	if page <= 0 {
		page = 1
	}

	var resp TMDBSearchResponse
	err := c.get(ctx, "/search/movie", url.Values{
		"query": {query},
		"page":  {strconv.Itoa(page)},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	return &resp, nil
}

// GetMovieDetails fetches a movie with its trailers and watch providers appended.
func (c *TMDBClient) GetMovieDetails(ctx context.Context, tmdbID int) (*TMDBMovieDetails, error) {
	var movie TMDBMovieDetails
	err := c.get(ctx, fmt.Sprintf("/movie/%d", tmdbID), url.Values{"append_to_response": {"videos,watch/providers"}}, &movie)
	if err != nil {
		return nil, fmt.Errorf("movie details request failed: %w", err)
	}
	return &movie, nil
}

func (c *TMDBClient) GetMovieCredits(ctx context.Context, tmdbID int) (*TMDBCredits, error) {
	var credits TMDBCredits
	if err := c.get(ctx, fmt.Sprintf("/movie/%d/credits", tmdbID), nil, &credits); err != nil {
		return nil, fmt.Errorf("credits request failed: %w", err)
	}
	return &credits, nil
}

// PosterURL builds the full URL for a poster path.
func PosterURL(posterPath *string, size string) string {
	if posterPath == nil || *posterPath == "" {
		return ""
	}
	if size == "" {
		size = "w500"
	}
	return tmdbImageBaseURL + size + *posterPath
}

// TrailerURL returns the first YouTube trailer, if any.
func (d *TMDBMovieDetails) TrailerURL() string {
	for _, v := range d.Videos.Results {
		if v.Site == "YouTube" && v.Type == "Trailer" && v.Key != "" {
			return "https://www.youtube.com/watch?v=" + v.Key
		}
	}
	return ""
}

// StreamingProviders returns the subscription and free providers of region.
// Rental and purchase storefronts are not platforms a movie is available on.
func (d *TMDBMovieDetails) StreamingProviders(region string) []string {
	providers, ok := d.WatchProviders.Results[region]
	if !ok {
		return nil
	}
	var names []string
	for _, p := range append(providers.Flatrate, providers.Free...) {
		names = append(names, p.ProviderName)
	}
	return names
}

// ExtractYear reads the year of a YYYY-MM-DD release date.
func ExtractYear(releaseDate string) *int {
	if releaseDate == "" {
		return nil
	}

	yearPart, _, _ := strings.Cut(releaseDate, "-")
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return nil
	}
	return &year
}
