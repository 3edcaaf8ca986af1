// Package warehouse implements the search index sink: a REST client for
// single-entry updates and bulk ingests, and a batching ingestor with
// at-least-once flush semantics.
package warehouse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ncsa/training-sync/pkg/catalog"
	"github.com/ncsa/training-sync/pkg/clients"
	"github.com/ncsa/training-sync/pkg/errors"
	"github.com/ncsa/training-sync/pkg/json"
)

// Scopes requested for the client-credentials grant
var DefaultScopes = []string{
	"urn:globus:auth:scope:search.api.globus.org:ingest",
	"urn:globus:auth:scope:search.api.globus.org:search",
}

// SubError is one nested error reported by the sink
type SubError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIError is the structured rejection the sink returns
type APIError struct {
	StatusCode int        `json:"-"`
	Code       string     `json:"code"`
	Message    string     `json:"message"`
	Errors     []SubError `json:"errors,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("sink API error: code=%s, message=%s", e.Code, e.Message)
}

// SubErrorSummary joins the sub-errors into one log-friendly string
func (e *APIError) SubErrorSummary() string {
	if len(e.Errors) == 0 {
		return ""
	}
	parts := make([]string, 0, len(e.Errors))
	for _, sub := range e.Errors {
		parts = append(parts, fmt.Sprintf("code=%s, message=%s", sub.Code, sub.Message))
	}
	return strings.Join(parts, ";")
}

// Retryable reports whether the rejection is worth retrying
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ingestEnvelope wraps a bulk ingest payload
type ingestEnvelope struct {
	IngestType string     `json:"ingest_type"`
	IngestData ingestData `json:"ingest_data"`
}

type ingestData struct {
	GMeta []*catalog.Entry `json:"gmeta"`
}

// Client is the sink protocol: update one entry or bulk-ingest many
type Client interface {
	UpdateEntry(ctx context.Context, entry *catalog.Entry) error
	Ingest(ctx context.Context, entries []*catalog.Entry) error
}

// Credentials configures the confidential client used against the sink
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// SearchClient talks to the remote search index over HTTPS
type SearchClient struct {
	baseURL string
	index   string
	http    *clients.HTTPClient
	tokens  oauth2.TokenSource
	log     *zap.Logger
}

// NewSearchClient creates a sink client bound to one index. When credentials
// are empty no Authorization header is sent, which the tests rely on.
func NewSearchClient(baseURL, index string, creds Credentials, httpClient *clients.HTTPClient, log *zap.Logger) *SearchClient {
	c := &SearchClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
		http:    httpClient,
		log:     log.With(zap.String("component", "search_client"), zap.String("index", index)),
	}

	if creds.ClientID != "" {
		scopes := creds.Scopes
		if len(scopes) == 0 {
			scopes = DefaultScopes
		}
		cc := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			Scopes:       scopes,
		}
		c.tokens = cc.TokenSource(context.Background())
	}

	return c
}

// UpdateEntry upserts a single entry
func (c *SearchClient) UpdateEntry(ctx context.Context, entry *catalog.Entry) error {
	url := fmt.Sprintf("%s/v1/index/%s/entry", c.baseURL, c.index)
	return c.send(ctx, http.MethodPut, url, entry)
}

// Ingest submits an ordered list of entries in one grouped call
func (c *SearchClient) Ingest(ctx context.Context, entries []*catalog.Entry) error {
	url := fmt.Sprintf("%s/v1/index/%s/ingest", c.baseURL, c.index)
	payload := ingestEnvelope{
		IngestType: "GMetaList",
		IngestData: ingestData{GMeta: entries},
	}
	return c.send(ctx, http.MethodPost, url, payload)
}

func (c *SearchClient) send(ctx context.Context, method, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "encoding sink payload")
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "acquiring sink token")
		}
		headers["Authorization"] = "Bearer " + tok.AccessToken
	}

	var resp *http.Response
	switch method {
	case http.MethodPut:
		resp, err = c.http.Put(ctx, url, bytes.NewReader(body), headers)
	default:
		resp, err = c.http.Post(ctx, url, bytes.NewReader(body), headers)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "sink request failed").
			WithDetail("url", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	return c.decodeError(resp)
}

func (c *SearchClient) decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(resp.Body)
	if err == nil && len(data) > 0 {
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Message = string(data)
		}
	} else {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}

	return errors.Wrap(apiErr, errors.ErrorTypeSink, "sink rejected request").
		WithDetail("status", resp.StatusCode)
}
