package graph

import (
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"moviegraph/internal/types"
)

// Helpers turning driver values into Go types. Integers arrive as int64,
// lists as []any and maps as map[string]any.

func value(rec *neo4j.Record, key string) any {
	v, _ := rec.Get(key)
	return v
}

func props(rec *neo4j.Record, key string) map[string]any {
	m, _ := value(rec, key).(map[string]any)
	return m
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringPtr(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func asIntPtr(v any) *int {
	switch v.(type) {
	case int64, float64:
		n := asInt(v)
		return &n
	}
	return nil
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func asFloatPtr(v any) *float64 {
	switch v.(type) {
	case int64, float64:
		f := asFloat(v)
		return &f
	}
	return nil
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case neo4j.LocalDateTime:
		return t.Time()
	}
	return time.Time{}
}

func asStrings(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asMaps(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func sortedStrings(v any) []string {
	out := asStrings(v)
	sort.Strings(out)
	return out
}

func movieFromProps(p map[string]any) types.Movie {
	return types.Movie{
		ID:         asString(p["id"]),
		Title:      asString(p["title"]),
		Year:       asInt(p["year"]),
		Duration:   asIntPtr(p["duration"]),
		Tagline:    asStringPtr(p["tagline"]),
		Synopsis:   asStringPtr(p["synopsis"]),
		PosterURL:  asStringPtr(p["poster_url"]),
		TrailerURL: asStringPtr(p["trailer_url"]),
		Created:    asTime(p["created_at"]),
		Updated:    asTime(p["updated_at"]),
	}
}

func ratingsFromList(v any) types.Ratings {
	list, _ := v.([]any)
	r := types.Ratings{RatingCount: len(list)}
	if len(list) == 0 {
		return r
	}
	sum := 0.0
	for _, rating := range list {
		sum += asFloat(rating)
	}
	avg := sum / float64(len(list))
	r.AvgRating = &avg
	return r
}

func personFromProps(p map[string]any) types.Person {
	return types.Person{
		ID:          asString(p["id"]),
		Name:        asString(p["name"]),
		Born:        asIntPtr(p["born"]),
		Birthdate:   asStringPtr(p["birthdate"]),
		Nationality: asStringPtr(p["nationality"]),
		Biography:   asStringPtr(p["biography"]),
		PhotoURL:    asStringPtr(p["photo_url"]),
		Created:     asTime(p["created_at"]),
		Updated:     asTime(p["updated_at"]),
	}
}

func userFromProps(p map[string]any) types.User {
	return types.User{
		ID:           asString(p["id"]),
		Username:     asString(p["username"]),
		Email:        asStringPtr(p["email"]),
		PasswordHash: asString(p["password_hash"]),
		Role:         asString(p["role"]),
		Created:      asTime(p["created_at"]),
	}
}

func creditsFromMaps(v any) []types.Credit {
	credits := []types.Credit{}
	for _, m := range asMaps(v) {
		credits = append(credits, types.Credit{Name: asString(m["name"]), Roles: asStrings(m["roles"])})
	}
	sort.Slice(credits, func(i, j int) bool { return credits[i].Name < credits[j].Name })
	return credits
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func intOrNil(n *int) any {
	if n == nil {
		return nil
	}
	return int64(*n)
}
