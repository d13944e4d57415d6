package middleware_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onetask/onetask-api/internal/api/middleware"
	"github.com/onetask/onetask-api/internal/api/shared"
	"github.com/onetask/onetask-api/internal/platform/logger"
)

func TestTraceMiddlewareSetsTraceID(t *testing.T) {
	t.Parallel()

	var captured string
	handler := middleware.TraceMiddleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = shared.GetTraceID(r.Context())
			w.WriteHeader(http.StatusOK)
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))

	assert.NotEmpty(t, captured)
}

func TestTraceMiddlewarePropagatesLoggerThroughContext(t *testing.T) {
	// Not parallel: swaps the process-wide default logger to capture output.
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(previous)

	handler := middleware.TraceMiddleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Lower layers retrieve their logger from the context; the line
			// they emit must carry the request's trace ID.
			logger.FromContext(r.Context()).Info("notification persisted")
			w.WriteHeader(http.StatusOK)
		}),
	)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	handler.ServeHTTP(rec, req)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)

	var traceIDs []string
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		traceID, ok := entry["trace_id"].(string)
		require.True(t, ok, "log line missing trace_id: %s", line)
		assert.NotEmpty(t, traceID)
		traceIDs = append(traceIDs, traceID)
	}

	// The handler's line and the middleware's own line share one trace ID.
	last := traceIDs[len(traceIDs)-1]
	for _, id := range traceIDs {
		assert.Equal(t, last, id)
	}
}
