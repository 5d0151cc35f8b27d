package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("loading movie: %w", NewNotFoundError("movie"))

	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.True(t, IsConflict(NewConflictError("username already exists")))
	assert.False(t, IsNotFound(errors.New("plain")))
}

func TestWrap(t *testing.T) {
	t.Run("keeps app errors", func(t *testing.T) {
		orig := NewForbiddenError("nope")
		assert.Same(t, orig, Wrap(orig, "ctx"))
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		err := Wrap(fmt.Errorf("run: %w", context.DeadlineExceeded), "list movies")
		require.True(t, IsTimeout(err))
		assert.Equal(t, http.StatusGatewayTimeout, GetAppError(err).HTTPStatus)
	})

	t.Run("cancellation is not a timeout", func(t *testing.T) {
		err := Wrap(fmt.Errorf("run: %w", context.Canceled), "list movies")
		require.True(t, IsCanceled(err))
		assert.False(t, IsTimeout(err))
		assert.Equal(t, StatusClientClosedRequest, GetAppError(err).HTTPStatus)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("other errors become internal", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := Wrap(cause, "list movies")
		appErr := GetAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, ErrorTypeInternal, appErr.Type)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, "noop"))
	})
}

func TestErrorHandler_Handle(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantType    string
		wantMessage string
	}{
		{
			name:        "not found",
			err:         NewNotFoundError("movie"),
			wantStatus:  http.StatusNotFound,
			wantType:    "NOT_FOUND",
			wantMessage: "movie not found",
		},
		{
			name:        "plain error is opaque",
			err:         errors.New("neo4j: Neo.ClientError.Statement.SyntaxError near MATCH"),
			wantStatus:  http.StatusInternalServerError,
			wantType:    "INTERNAL",
			wantMessage: "An internal error occurred",
		},
		{
			name:        "internal app error hides its message",
			err:         NewInternalError("failed to scan row").WithCause(errors.New("driver detail")),
			wantStatus:  http.StatusInternalServerError,
			wantType:    "INTERNAL",
			wantMessage: "An internal error occurred",
		},
		{
			name:        "timeout",
			err:         NewTimeoutError("get movie"),
			wantStatus:  http.StatusGatewayTimeout,
			wantType:    "TIMEOUT",
			wantMessage: "operation 'get movie' timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/movies/x", nil)

			// Act
			h.Handle(rec, req, tt.err)

			// Assert
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.True(t, body.Error)
			assert.Equal(t, tt.wantType, body.Type)
			assert.Equal(t, tt.wantMessage, body.Message)
		})
	}
}

func TestErrorHandler_HandleStatus(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	rec := httptest.NewRecorder()

	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusUnauthorized, "Invalid or missing token")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"UNAUTHORIZED"`)
}

func TestErrorHandler_CanceledLogsAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := NewErrorHandler(zap.New(core), false)
	rec := httptest.NewRecorder()

	h.Handle(rec, httptest.NewRequest(http.MethodGet, "/movies", nil),
		FromContext("list movies", context.Canceled))

	assert.Equal(t, StatusClientClosedRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"CANCELED"`)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}
