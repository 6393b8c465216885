package tracing

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"next2play/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("disabled without endpoint", func(t *testing.T) {
		p, err := Setup(context.Background(), log, config.Tracing{})
		require.NoError(t, err)
		assert.NoError(t, p.Shutdown(context.Background()))

		_, span := StartSpan(context.Background(), "test")
		assert.False(t, span.SpanContext().IsSampled())
		span.End()
	})

	t.Run("sample ratio out of range", func(t *testing.T) {
		_, err := Setup(context.Background(), log, config.Tracing{Endpoint: "localhost:4317", SampleRatio: 1.5})
		assert.ErrorIs(t, err, ErrSampleRatio)
	})
}

func TestMiddlewareAndClient(t *testing.T) {
	srv := httptest.NewServer(Middleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	defer srv.Close()

	client := NewHTTPClient(time.Second)
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, time.Second, client.Timeout)
}
