package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGUID(t *testing.T) {
	tests := []struct {
		guid string
		want ExternalID
		ok   bool
	}{
		{"com.plexapp.agents.themoviedb://603?lang=en", ExternalID{"tmdb", "603"}, true},
		{"tmdb://27205", ExternalID{"tmdb", "27205"}, true},
		{"com.plexapp.agents.imdb://tt0133093?lang=en", ExternalID{"imdb", "tt0133093"}, true},
		{"imdb://tt1375666", ExternalID{"imdb", "tt1375666"}, true},
		{"tvdb://81189", ExternalID{"tvdb", "81189"}, true},
		{"plex://movie/5d7768258df361001bdc8b4b", ExternalID{"plex", "5d7768258df361001bdc8b4b"}, true},
		{"local://42", ExternalID{}, false},
		{"", ExternalID{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.guid, func(t *testing.T) {
			got, ok := ParseGUID(tt.guid)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTMDBIDFromGUID(t *testing.T) {
	id, ok := TMDBIDFromGUID("com.plexapp.agents.themoviedb://603?lang=en")
	assert.True(t, ok)
	assert.Equal(t, 603, id)

	_, ok = TMDBIDFromGUID("imdb://tt0133093")
	assert.False(t, ok)
}
