package utils

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"moviegraph/internal/apperrors"
	"moviegraph/internal/types"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	maxBodyBytes     = 1 << 20
)

// GetPathParam extracts a chi URL parameter.
func GetPathParam(r *http.Request, param string) string {
	return chi.URLParam(r, param)
}

// GetQueryParam gets a query parameter with optional default value
func GetQueryParam(r *http.Request, param, defaultValue string) string {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetQueryParamInt gets a query parameter as int. A malformed value is a
// validation error rather than a silent fallback.
func GetQueryParamInt(r *http.Request, param string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperrors.NewValidationError(param + " must be an integer")
	}
	return intValue, nil
}

// GetQueryParamBool gets a query parameter as bool with a default.
func GetQueryParamBool(r *http.Request, param string, defaultValue bool) (bool, error) {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue, nil
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, apperrors.NewValidationError(param + " must be a boolean")
	}
	return b, nil
}

// GetLimit reads ?limit= bounded to [1, max].
func GetLimit(r *http.Request, defaultValue, max int) (int, error) {
	limit, err := GetQueryParamInt(r, "limit", defaultValue)
	if err != nil {
		return 0, err
	}
	if limit < 1 || limit > max {
		return 0, apperrors.NewValidationError("limit must be between 1 and " + strconv.Itoa(max))
	}
	return limit, nil
}

// GetPage reads ?limit= and ?skip=.
func GetPage(r *http.Request) (types.Page, error) {
	limit, err := GetLimit(r, DefaultPageLimit, MaxPageLimit)
	if err != nil {
		return types.Page{}, err
	}
	skip, err := GetQueryParamInt(r, "skip", 0)
	if err != nil {
		return types.Page{}, err
	}
	if skip < 0 {
		return types.Page{}, apperrors.NewValidationError("skip must not be negative")
	}
	return types.Page{Limit: limit, Skip: skip}, nil
}

// RequireQuery returns the trimmed value of a mandatory text parameter.
func RequireQuery(r *http.Request, param string) (string, error) {
	value := strings.TrimSpace(r.URL.Query().Get(param))
	if value == "" {
		return "", apperrors.NewValidationError(param + " is required")
	}
	return value, nil
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, data any, statusCode int) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// DecodeJSON reads a JSON body into dst and validates it.
func DecodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return apperrors.NewValidationError("request body is required")
		}
		return apperrors.NewValidationError("invalid request body").WithCause(err)
	}
	return Validate(dst)
}
