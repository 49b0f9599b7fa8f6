package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func entries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		out = append(out, entry)
	}
	return out
}

func fixedClock(l *Logger) *Logger {
	l.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := fixedClock(New(InfoLevel, &buf)).WithField("service", "test")

	logger.Debug("hidden")
	logger.Info("hello", map[string]interface{}{"n": 3})
	logger.WithError(errors.New("bad")).Warn("careful")

	got := entries(t, &buf)
	require.Len(t, got, 2)

	assert.Equal(t, "INFO", got[0]["level"])
	assert.Equal(t, "hello", got[0]["message"])
	assert.Equal(t, "test", got[0]["service"])
	assert.Equal(t, 3.0, got[0]["n"])
	assert.Equal(t, "2024-01-02T03:04:05Z", got[0]["timestamp"])
	assert.Contains(t, got[0]["caller"], "logging/logger_test.go:")

	assert.Equal(t, "WARN", got[1]["level"])
	assert.Equal(t, "bad", got[1]["error"])
}

func TestLoggerFieldsDoNotLeak(t *testing.T) {
	var buf bytes.Buffer
	base := New(DebugLevel, &buf)
	_ = base.WithField("child", true)

	base.Info("plain")
	got := entries(t, &buf)
	require.Len(t, got, 1)
	assert.NotContains(t, got[0], "child")
	assert.Same(t, base, base.WithError(nil))
}

func TestLoggerText(t *testing.T) {
	var buf bytes.Buffer
	logger := fixedClock(New(DebugLevel, &buf)).WithFormat(FormatText).WithFields(map[string]interface{}{
		"b": 2,
		"a": "x",
	})

	logger.Error("failed")

	line := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(line, "2024-01-02T03:04:05Z ERROR failed a=x b=2 caller="), line)
}

func TestLoggerFatalExits(t *testing.T) {
	var buf bytes.Buffer
	logger := New(InfoLevel, &buf)
	code := -1
	logger.exit = func(c int) { code = c }

	logger.Fatal("bye")
	assert.Equal(t, 1, code)
	assert.Equal(t, "FATAL", entries(t, &buf)[0]["level"])
}

func TestNewLoggerConfig(t *testing.T) {
	logger, err := NewLogger(&Config{Level: "warn", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, logger.Level())
	assert.Equal(t, FormatText, logger.format)

	logger, err = NewLogger(nil)
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, logger.Level())

	logger, err = NewLogger(&Config{Level: "loud"})
	require.NoError(t, err)
	assert.Equal(t, InfoLevel, logger.Level())

	_, err = NewLogger(&Config{Format: "xml"})
	assert.EqualError(t, err, `unknown log format "xml"`)
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	fallback := New(InfoLevel, &buf)

	assert.Same(t, fallback, FromContextOr(context.Background(), fallback))
	assert.NotNil(t, FromContext(context.Background()))

	scoped := &CtxLogger{fallback.WithField("request_id", "r1")}
	ctx := scoped.WithContext(context.Background())
	assert.Same(t, scoped, FromContext(ctx))
	assert.Same(t, scoped.Logger, FromContextOr(ctx, fallback))
}

func TestZapBridge(t *testing.T) {
	var buf bytes.Buffer
	logger := New(InfoLevel, &buf).WithField("service", "test")
	z := NewZapLogger(logger).Named("driver").With(zap.String("job", "j1"))

	z.Debug("dropped")
	z.Info("evaluated",
		zap.Float64("y", 0.25),
		zap.Float64s("x", []float64{1, 2}),
		zap.Uint64("iteration", 4),
		zap.Duration("elapsed", time.Second),
	)

	got := entries(t, &buf)
	require.Len(t, got, 1)
	e := got[0]
	assert.Equal(t, "INFO", e["level"])
	assert.Equal(t, "evaluated", e["message"])
	assert.Equal(t, "driver", e["logger"])
	assert.Equal(t, "test", e["service"])
	assert.Equal(t, "j1", e["job"])
	assert.Equal(t, 0.25, e["y"])
	assert.Equal(t, []interface{}{1.0, 2.0}, e["x"])
	assert.Equal(t, 4.0, e["iteration"])
	assert.Contains(t, e["caller"], "logging/logger_test.go:")
}

func TestZapFromContext(t *testing.T) {
	_, ok := ZapFromContext(context.Background())
	assert.False(t, ok)

	var buf bytes.Buffer
	ctx := (&CtxLogger{New(DebugLevel, &buf)}).WithContext(context.Background())
	z, ok := ZapFromContext(ctx)
	require.True(t, ok)

	z.Debug("through context")
	got := entries(t, &buf)
	require.Len(t, got, 1)
	assert.Equal(t, "DEBUG", got[0]["level"])
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(DebugLevel, &buf)

	var inner *CtxLogger
	h := middleware.RequestID(Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("tea"))
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))

	require.NotNil(t, inner)
	got := entries(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "Request started", got[0]["message"])
	assert.Equal(t, "Request completed", got[1]["message"])
	assert.Equal(t, 418.0, got[1]["status"])
	assert.Equal(t, 3.0, got[1]["bytes"])
	assert.Equal(t, "/brew", got[1]["path"])
	assert.NotEmpty(t, got[1]["request_id"])
}
