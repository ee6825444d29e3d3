// internal/middleware/logging_test.go
package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogMiddlewareRecordsRequestFields(t *testing.T) {
	logger, hook := test.NewNullLogger()

	handler := LogMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, "http request", entry.Message)
	assert.Equal(t, "GET", entry.Data["method"])
	assert.Equal(t, "/ws", entry.Data["path"])
	assert.Equal(t, "10.0.0.1:1234", entry.Data["addr"])
	assert.Contains(t, entry.Data, "elapsed")
}

func TestWebSocketLogHelpers(t *testing.T) {
	logger, hook := test.NewNullLogger()

	LogWebSocketConnect(logger, "10.0.0.1:1234", "/ws")
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "websocket opened", hook.LastEntry().Message)

	LogWebSocketDisconnect(logger, "10.0.0.1:1234", "/ws", nil)
	assert.Equal(t, "websocket closed", hook.LastEntry().Message)
	assert.NotContains(t, hook.LastEntry().Data, "reason")

	LogWebSocketDisconnect(logger, "10.0.0.1:1234", "/ws", errors.New("peer reset"))
	assert.Contains(t, hook.LastEntry().Data, "reason")
}
