package errors

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/hyperopt/internal/logging"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(line, &entry))
		out = append(out, entry)
	}
	return out
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.DebugLevel, &buf)

	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom?x=1", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "ERROR", entries[0]["level"])
	assert.Equal(t, "Recovered from panic", entries[0]["message"])
	assert.Contains(t, entries[0]["error"], "handler exploded")
	assert.Contains(t, entries[0]["error"], "operation=GET /boom")
	assert.Equal(t, "x=1", entries[0]["query"])
}

func TestRecoveryMiddlewareUsesRequestLogger(t *testing.T) {
	var base, scoped bytes.Buffer
	h := RecoveryMiddleware(logging.New(logging.InfoLevel, &base))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("scoped")
	}))

	reqLogger := &logging.CtxLogger{Logger: logging.New(logging.InfoLevel, &scoped).WithField("request_id", "abc")}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(reqLogger.WithContext(req.Context()))

	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Zero(t, base.Len())
	entries := decodeLines(t, &scoped)
	require.Len(t, entries, 1)
	assert.Equal(t, "abc", entries[0]["request_id"])
}

func TestRecoveryMiddlewareAbortHandler(t *testing.T) {
	h := RecoveryMiddleware(logging.New(logging.InfoLevel, &bytes.Buffer{}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestErrorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.DebugLevel, &buf)

	h := ErrorHandler(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Zero(t, buf.Len())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, 404.0, entries[0]["status"])
	assert.Equal(t, "/missing", entries[0]["path"])
}
