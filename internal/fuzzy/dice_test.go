package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "Inception", b: "Inception", want: 1},
		{name: "case insensitive", a: "INCEPTION", b: "inception", want: 1},
		{name: "classic night/nacht", a: "night", b: "nacht", want: 0.25},
		{name: "disjoint", a: "abc", b: "xyz", want: 0},
		{name: "single rune differs", a: "a", b: "b", want: 0},
		{name: "empty against text", a: "", b: "matrix", want: 0},
		{name: "repeated bigrams counted once each", a: "aaaa", b: "aa", want: 0.5},
		{name: "bigrams stay inside words", a: "ab cd", b: "abcd", want: 0.8},
		{name: "repeated short words", a: "Go Go Go", b: "gogogo", want: 0.75},
		{name: "single letter words carry no bigrams", a: "a b", b: "b a", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Similarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"The Matrix", "Matrix"},
		{"Keanu Reeves", "Keanu Reves"},
		{"Inceptoin", "Inception"},
	}

	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), "%q vs %q", p[0], p[1])
	}
}

func TestSimilarity_TypoClearsThreshold(t *testing.T) {
	assert.True(t, Matches(Similarity("Inceptoin", "Inception"), DefaultThreshold))
	assert.True(t, Matches(Similarity("keanu reves", "Keanu Reeves"), DefaultThreshold))
	assert.False(t, Matches(Similarity("Titanic", "Inception"), DefaultThreshold))
}

func TestMatches_IsStrict(t *testing.T) {
	assert.False(t, Matches(0.5, 0.5))
	assert.True(t, Matches(0.5000001, 0.5))
}
