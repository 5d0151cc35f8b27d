package services

import (
	"regexp"
	"strconv"
)

// ExternalID is an agent identifier carried in a Plex GUID.
type ExternalID struct {
	Type  string // tmdb, imdb, tvdb or plex
	Value string
}

// Plex GUIDs come from the legacy agents ("com.plexapp.agents.themoviedb://123?lang=en"),
// direct references ("tmdb://123", "imdb://tt0133093") or Plex's own catalog
// ("plex://movie/5d7768258df361001bdc8b4b").
var guidPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"tmdb", regexp.MustCompile(`^(?:com\.plexapp\.agents\.themoviedb|tmdb)://(\d+)`)},
	{"imdb", regexp.MustCompile(`^(?:com\.plexapp\.agents\.imdb|imdb)://(tt\d+)`)},
	{"tvdb", regexp.MustCompile(`^(?:com\.plexapp\.agents\.thetvdb|tvdb)://(\d+)`)},
	{"plex", regexp.MustCompile(`^plex://movie/([a-f0-9]{24})`)},
}

func ParseGUID(guid string) (ExternalID, bool) {
	for _, p := range guidPatterns {
		if m := p.re.FindStringSubmatch(guid); len(m) > 1 {
			return ExternalID{Type: p.kind, Value: m[1]}, true
		}
	}
	return ExternalID{}, false
}

// TMDBIDFromGUID returns the TMDB id of a movie matched by the TMDB agent.
func TMDBIDFromGUID(guid string) (int, bool) {
	ext, ok := ParseGUID(guid)
	if !ok || ext.Type != "tmdb" {
		return 0, false
	}
	id, err := strconv.Atoi(ext.Value)
	return id, err == nil && id > 0
}
