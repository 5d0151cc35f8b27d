package types

import "time"

const (
	RoleAdmin   = "admin"
	RoleUser    = "user"
	RoleVisitor = "visitor"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleUser, RoleVisitor:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Created      time.Time `json:"created_at"`
}

type Movie struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Year       int       `json:"year"`
	Duration   *int      `json:"duration,omitempty"`
	Tagline    *string   `json:"tagline,omitempty"`
	Synopsis   *string   `json:"synopsis,omitempty"`
	PosterURL  *string   `json:"poster_url,omitempty"`
	TrailerURL *string   `json:"trailer_url,omitempty"`
	Created    time.Time `json:"created_at"`
	Updated    time.Time `json:"updated_at"`
}

// Credit is one actor on a movie.
type Credit struct {
	Name  string   `json:"name" validate:"required,max=200"`
	Roles []string `json:"roles,omitempty" validate:"max=20,dive,max=200"`
}

// Ratings aggregates the reviews of one movie. AvgRating is nil while the
// movie is unrated.
type Ratings struct {
	AvgRating   *float64 `json:"avg_rating"`
	RatingCount int      `json:"rating_count"`
}

// MovieSummary is one entry of the movie list.
type MovieSummary struct {
	Movie
	Ratings
}

// MovieFilter narrows the movie list. Genre matches any genre whose name
// contains it, case-insensitively. Zero values do not filter.
type MovieFilter struct {
	Genre string
	Year  int
}

type MovieDetail struct {
	Movie
	Ratings
	Actors     []Credit `json:"actors"`
	Directors  []string `json:"directors"`
	Producers  []string `json:"producers"`
	Genres     []string `json:"genres"`
	Platforms  []string `json:"platforms"`
	Similarity float64  `json:"similarity"`
}

// MovieMatch is a search hit. Similarity is zero for substring searches.
type MovieMatch struct {
	Movie
	Similarity float64 `json:"similarity,omitempty"`
}

type Person struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Born        *int      `json:"born,omitempty"`
	Birthdate   *string   `json:"birthdate,omitempty"`
	Nationality *string   `json:"nationality,omitempty"`
	Biography   *string   `json:"biography,omitempty"`
	PhotoURL    *string   `json:"photo_url,omitempty"`
	Created     time.Time `json:"created_at"`
	Updated     time.Time `json:"updated_at"`
}

// RoleCredit is a movie a person acted in together with the characters played.
type RoleCredit struct {
	MovieID string   `json:"movie_id"`
	Movie   string   `json:"movie"`
	Year    int      `json:"year"`
	Roles   []string `json:"roles,omitempty"`
}

type PersonDetail struct {
	Person
	ActedIn    []RoleCredit `json:"acted_in"`
	Directed   []string     `json:"directed"`
	Produced   []string     `json:"produced"`
	Similarity float64      `json:"similarity"`
}

type PersonMatch struct {
	Person
	Similarity float64 `json:"similarity,omitempty"`
}

type Collaboration struct {
	Person1     string   `json:"person1"`
	Person2     string   `json:"person2"`
	Movies      []string `json:"movies"`
	Count       int      `json:"collaborations"`
	Similarity1 float64  `json:"similarity1"`
	Similarity2 float64  `json:"similarity2"`
}

type Review struct {
	Username   string    `json:"username"`
	MovieID    string    `json:"movie_id"`
	MovieTitle string    `json:"movie_title"`
	Rating     int       `json:"rating"`
	Comment    *string   `json:"comment,omitempty"`
	Created    time.Time `json:"created_at"`
	Updated    time.Time `json:"updated_at"`
}

type ReviewStats struct {
	MovieID      string      `json:"movie_id"`
	MovieTitle   string      `json:"movie_title"`
	Total        int         `json:"total"`
	Average      *float64    `json:"average"`
	Min          *int        `json:"min"`
	Max          *int        `json:"max"`
	Distribution map[int]int `json:"distribution"`
}

// UserStats summarizes the reviews of one user. FavoriteGenres holds at most
// five genres, most rated first.
type UserStats struct {
	Username       string   `json:"username"`
	TotalRatings   int      `json:"total_ratings"`
	AvgRating      *float64 `json:"avg_rating"`
	FavoriteGenres []string `json:"favorite_genres"`
}

// Recommendation is a scored movie. Score is the number of shared people for
// content-based results and the number of similar users for collaborative ones.
type Recommendation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Year  int    `json:"year"`
	Score int    `json:"score"`
}

type Watchlist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	IsPublic    bool      `json:"is_public"`
	Username    string    `json:"username"`
	MovieCount  int       `json:"movie_count"`
	Created     time.Time `json:"created_at"`
	Updated     time.Time `json:"updated_at"`
}

type WatchlistMovie struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Year  int       `json:"year"`
	Added time.Time `json:"added_at"`
}

type WatchlistDetail struct {
	Watchlist
	Movies []WatchlistMovie `json:"movies"`
}

type WatchlistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type RelationshipCounts struct {
	ActedIn  int `json:"acted_in"`
	Directed int `json:"directed"`
	Produced int `json:"produced"`
}

type Stats struct {
	Movies        int                `json:"movies_count"`
	Persons       int                `json:"persons_count"`
	Users         int                `json:"users_count"`
	Reviews       int                `json:"reviews_count"`
	Watchlists    int                `json:"watchlists_count"`
	Relationships RelationshipCounts `json:"relationships"`
	LatestMovie   *Movie             `json:"latest_movie"`
}

// Page bounds list queries.
type Page struct {
	Limit int
	Skip  int
}

// Request/Response types

type RegisterRequest struct {
	Username string  `json:"username" validate:"required,min=3,max=50,username"`
	Password string  `json:"password" validate:"required,min=5,max=72"`
	Email    *string `json:"email" validate:"omitempty,email,max=254"`
	// Role is accepted for compatibility with older clients and ignored.
	Role string `json:"role"`
}

type RegisterResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Username    string `json:"username"`
	Role        string `json:"role"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin user visitor"`
}

// MovieInput creates a movie. Person names in Directors, Producers and
// Actors are merged: missing people are created.
type MovieInput struct {
	Title      string   `json:"title" validate:"required,max=300"`
	Year       int      `json:"year" validate:"required,min=1888,max=2030"`
	Duration   *int     `json:"duration" validate:"omitempty,min=1,max=1000"`
	Tagline    *string  `json:"tagline" validate:"omitempty,max=500"`
	Synopsis   *string  `json:"synopsis" validate:"omitempty,max=5000"`
	PosterURL  *string  `json:"poster_url" validate:"omitempty,url"`
	TrailerURL *string  `json:"trailer_url" validate:"omitempty,url"`
	Genres     []string `json:"genres" validate:"max=20,dive,required,max=50"`
	Directors  []string `json:"directors" validate:"max=50,dive,required,max=200"`
	Producers  []string `json:"producers" validate:"max=50,dive,required,max=200"`
	Actors     []Credit `json:"actors" validate:"max=200,dive"`
	Platforms  []string `json:"platforms" validate:"max=20,dive,required,max=50"`
}

// MovieUpdate changes only the fields that are present. A present list
// (even empty) replaces the corresponding relationships.
type MovieUpdate struct {
	Title      *string  `json:"title" validate:"omitempty,min=1,max=300"`
	Year       *int     `json:"year" validate:"omitempty,min=1888,max=2030"`
	Duration   *int     `json:"duration" validate:"omitempty,min=1,max=1000"`
	Tagline    *string  `json:"tagline" validate:"omitempty,max=500"`
	Synopsis   *string  `json:"synopsis" validate:"omitempty,max=5000"`
	PosterURL  *string  `json:"poster_url" validate:"omitempty,url"`
	TrailerURL *string  `json:"trailer_url" validate:"omitempty,url"`
	Genres     []string `json:"genres" validate:"omitempty,max=20,dive,required,max=50"`
	Directors  []string `json:"directors" validate:"omitempty,max=50,dive,required,max=200"`
	Producers  []string `json:"producers" validate:"omitempty,max=50,dive,required,max=200"`
	Actors     []Credit `json:"actors" validate:"omitempty,max=200,dive"`
	Platforms  []string `json:"platforms" validate:"omitempty,max=20,dive,required,max=50"`
}

type AddActorRequest struct {
	Name  string   `json:"name" validate:"required,max=200"`
	Roles []string `json:"roles" validate:"max=20,dive,max=200"`
}

type PersonInput struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Born        *int    `json:"born" validate:"omitempty,min=1800,max=2030"`
	Birthdate   *string `json:"birthdate" validate:"omitempty,datetime=2006-01-02"`
	Nationality *string `json:"nationality" validate:"omitempty,max=100"`
	Biography   *string `json:"biography" validate:"omitempty,max=5000"`
	PhotoURL    *string `json:"photo_url" validate:"omitempty,url"`
}

type PersonUpdate struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Born        *int    `json:"born" validate:"omitempty,min=1800,max=2030"`
	Birthdate   *string `json:"birthdate" validate:"omitempty,datetime=2006-01-02"`
	Nationality *string `json:"nationality" validate:"omitempty,max=100"`
	Biography   *string `json:"biography" validate:"omitempty,max=5000"`
	PhotoURL    *string `json:"photo_url" validate:"omitempty,url"`
}

// ReviewRequest identifies the movie by id or exact title.
type ReviewRequest struct {
	MovieID    string  `json:"movie_id" validate:"required_without=MovieTitle"`
	MovieTitle string  `json:"movie_title" validate:"required_without=MovieID"`
	Rating     *int    `json:"rating" validate:"required,min=0,max=10"`
	Comment    *string `json:"comment" validate:"omitempty,max=1000"`
}

type WatchlistInput struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	IsPublic    bool    `json:"is_public"`
}

type WatchlistMovieRequest struct {
	MovieID    string `json:"movie_id" validate:"required_without=MovieTitle"`
	MovieTitle string `json:"movie_title" validate:"required_without=MovieID"`
}

// MovieImport is one catalog entry coming from an external source.
type MovieImport struct {
	Source     string
	Movie      MovieInput
	ExternalID string
}

type ImportResult struct {
	Imported int      `json:"imported"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

type TMDBImportRequest struct {
	Query   string `json:"query" validate:"required_without=TMDBIDs,max=200"`
	TMDBIDs []int  `json:"tmdb_ids" validate:"max=50,dive,min=1"`
	Limit   int    `json:"limit" validate:"omitempty,min=1,max=50"`
}

type PlexImportRequest struct {
	ServerURL   string `json:"server_url" validate:"omitempty,url"`
	Token       string `json:"token"`
	SectionKeys []int  `json:"section_keys" validate:"max=50,dive,min=1"`
}
