package warehouse

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ncsa/training-sync/pkg/catalog"
	"github.com/ncsa/training-sync/pkg/clients"
	"github.com/ncsa/training-sync/pkg/errors"
	"github.com/ncsa/training-sync/pkg/json"
)

func newTestClient(t *testing.T, srvURL, index string) *SearchClient {
	t.Helper()
	hc := clients.NewHTTPClient(&clients.HTTPConfig{RateLimit: 0}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = hc.Close() })
	return NewSearchClient(srvURL, index, Credentials{}, hc, zaptest.NewLogger(t))
}

func TestUpdateEntryRequestShape(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "abc-123")
	entry := &catalog.Entry{
		Subject:   "urn:catalog:resource:42",
		VisibleTo: []string{"public"},
		Content:   map[string]interface{}{"Title": "Go Basics"},
	}
	require.NoError(t, c.UpdateEntry(context.Background(), entry))

	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/v1/index/abc-123/entry", gotPath)
	assert.Empty(t, gotAuth, "no credentials configured, so no bearer token")

	var decoded catalog.Entry
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, entry.Subject, decoded.Subject)
	assert.Equal(t, entry.VisibleTo, decoded.VisibleTo)
}

func TestIngestEnvelopeShape(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "abc-123")
	entries := []*catalog.Entry{
		{Subject: "urn:catalog:resource:1", VisibleTo: []string{"public"}, Content: map[string]interface{}{}},
		{Subject: "urn:catalog:resource:2", VisibleTo: []string{"public"}, Content: map[string]interface{}{}},
	}
	require.NoError(t, c.Ingest(context.Background(), entries))

	assert.Equal(t, "/v1/index/abc-123/ingest", gotPath)

	var envelope struct {
		IngestType string `json:"ingest_type"`
		IngestData struct {
			GMeta []catalog.Entry `json:"gmeta"`
		} `json:"ingest_data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	assert.Equal(t, "GMetaList", envelope.IngestType)
	require.Len(t, envelope.IngestData.GMeta, 2)
	assert.Equal(t, "urn:catalog:resource:1", envelope.IngestData.GMeta[0].Subject)
	assert.Equal(t, "urn:catalog:resource:2", envelope.IngestData.GMeta[1].Subject)
}

func TestDecodeStructuredRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{
			"code": "BadRequest.InvalidDocument",
			"message": "one or more entries failed validation",
			"errors": [
				{"code": "InvalidField", "message": "subject must be a URN"},
				{"code": "MissingField", "message": "visible_to is required"}
			]
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "abc-123")
	err := c.UpdateEntry(context.Background(), &catalog.Entry{Subject: "bad"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSink))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "BadRequest.InvalidDocument", apiErr.Code)
	assert.False(t, apiErr.Retryable())
	require.Len(t, apiErr.Errors, 2)
	assert.Contains(t, apiErr.SubErrorSummary(), "subject must be a URN")
	assert.Contains(t, apiErr.SubErrorSummary(), "visible_to is required")
}

func TestDecodeUnstructuredRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timed out"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "abc-123")
	err := c.Ingest(context.Background(), []*catalog.Entry{{Subject: "urn:catalog:resource:1"}})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "Bad Gateway", apiErr.Code)
	assert.Equal(t, "upstream timed out", apiErr.Message)
	assert.True(t, apiErr.Retryable())
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"unavailable", http.StatusServiceUnavailable, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &APIError{StatusCode: tt.status}
			assert.Equal(t, tt.retryable, e.Retryable())
		})
	}
}
