package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func newTestConnector(url string, opts ...HttpOpts) *Connector {
	return NewConnector(&ConnectorConfig{BaseURL: url, Logger: zap.NewNop()}, opts...)
}

func TestConnector_DoRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc", r.Header.Get("X-Request-ID"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ping", body["msg"])

		w.Write([]byte(`{"msg":"pong"}`))
	}))
	defer srv.Close()

	c := newTestConnector(srv.URL, WithRequestLogging(), WithAuthToken("secret"))

	var resp map[string]string
	err := c.DoRequest(context.Background(), http.MethodPost, "/embeddings", map[string]string{"msg": "ping"}, &resp,
		WithHeader("X-Request-ID", "abc"))
	require.NoError(t, err)
	assert.Equal(t, "pong", resp["msg"])
}

func TestConnector_DoRequest_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	err := newTestConnector(srv.URL).DoRequest(context.Background(), http.MethodPost, "/", nil, nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.Equal(t, "rate limited", httpErr.Message)
}

func TestConnector_DoRequest_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newTestConnector(url).DoRequest(context.Background(), http.MethodGet, "/", nil, nil)

	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestConnector_DoStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: one\n\n"))
		w.(http.Flusher).Flush()
		w.Write([]byte("data: two\n\n"))
	}))
	defer srv.Close()

	body, err := newTestConnector(srv.URL).DoStream(context.Background(), http.MethodPost, "/chat/completions", map[string]bool{"stream": true})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "data: one\n\ndata: two\n\n", string(data))
}

func TestConnector_DoStream_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	body, err := newTestConnector(srv.URL).DoStream(context.Background(), http.MethodPost, "/", nil)
	assert.Nil(t, body)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Contains(t, httpErr.Message, "bad key")
}

func TestConnector_WithURLOverride(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/hook", r.URL.Path)
	}))
	defer srv.Close()

	err := newTestConnector("http://unused.invalid").DoRequest(context.Background(), http.MethodPost, "", map[string]int{}, nil,
		WithURL(srv.URL+"/hook"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRateLimitTransport_HonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	c := newTestConnector(srv.URL, WithRateLimit(limiter))

	require.NoError(t, c.DoRequest(context.Background(), http.MethodGet, "/", nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.DoRequest(ctx, http.MethodGet, "/", nil, nil)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.False(t, errors.Is(err, context.Canceled))
}

func TestConnector_FixedHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "report-test/0.1", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestConnector(srv.URL, WithAuthToken(""), WithUserAgent("report-test/0.1"), WithoutCompression())
	require.NoError(t, c.DoRequest(context.Background(), http.MethodGet, "/", nil, nil))
}
