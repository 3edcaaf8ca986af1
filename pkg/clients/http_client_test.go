package clients

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestGetSetsHeaders(t *testing.T) {
	var gotClient, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClient = r.Header.Get("XA-CLIENT")
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(nil, zaptest.NewLogger(t))
	defer func() { _ = client.Close() }()

	resp, err := client.Get(context.Background(), srv.URL, map[string]string{"XA-CLIENT": "ACCESS"})
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, "ACCESS", gotClient)
	assert.Equal(t, "training-sync/1.0", gotAgent)

	total, failed := client.Stats()
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(0), failed)
}

func TestGetConnectionRefused(t *testing.T) {
	client := NewHTTPClient(nil, zaptest.NewLogger(t))
	defer func() { _ = client.Close() }()

	_, err := client.Get(context.Background(), "http://127.0.0.1:1/none", nil)
	require.Error(t, err)

	total, failed := client.Stats()
	assert.Equal(t, int64(1), total)
	assert.Equal(t, int64(1), failed)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	cfg := DefaultHTTPConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1

	client := NewHTTPClient(cfg, zaptest.NewLogger(t))
	defer func() { _ = client.Close() }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// First request consumes the burst
	resp, err := client.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()

	// Second request would wait ~1000s; a cancelled context fails fast
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Get(ctx, srv.URL, nil)
	require.Error(t, err)
}
