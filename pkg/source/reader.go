// Package source retrieves raw catalog documents from a local cache file or
// a remote HTTP endpoint. A Reader either returns a fully parsed document or
// an explicit error; it never hands back a partially parsed structure.
package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"

	"go.uber.org/zap"

	"github.com/ncsa/training-sync/pkg/catalog"
	"github.com/ncsa/training-sync/pkg/clients"
	"github.com/ncsa/training-sync/pkg/endpoint"
	"github.com/ncsa/training-sync/pkg/errors"
	"github.com/ncsa/training-sync/pkg/json"
)

// Headers the catalog endpoint expects on every fetch
const (
	headerClient    = "XA-CLIENT"
	headerKeyFormat = "XA-KEY-FORMAT"
)

// Reader fetches one raw document per call
type Reader interface {
	Fetch(ctx context.Context) (*catalog.Document, error)
}

// NewReader builds the reader matching the source endpoint's scheme
func NewReader(ep *endpoint.Endpoint, affiliation string, client *clients.HTTPClient, log *zap.Logger) (Reader, error) {
	switch ep.Scheme {
	case endpoint.SchemeFile:
		return &FileReader{path: ep.Path, log: log}, nil
	case endpoint.SchemeHTTP, endpoint.SchemeHTTPS:
		return NewHTTPReader(ep.Scheme+"://"+ep.Path, affiliation, client, log)
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "no reader for source scheme").
			WithDetail("scheme", ep.Scheme)
	}
}

// FileReader reads a previously cached document from disk
type FileReader struct {
	path string
	log  *zap.Logger
}

// Fetch reads and parses the cache file. A parse failure is fatal; the
// process must not proceed with partial data.
func (r *FileReader) Fetch(_ context.Context) (*catalog.Document, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "reading cache file").
			WithDetail("path", r.path)
	}

	var doc catalog.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeParse, "parsing cache file").
			WithDetail("path", r.path)
	}

	r.log.Info("read and parsed cache file",
		zap.Int("bytes", len(data)),
		zap.String("file", r.path))
	return &doc, nil
}

// HTTPReader performs one GET per fetch against the catalog endpoint
type HTTPReader struct {
	url         string
	affiliation string
	client      *clients.HTTPClient
	log         *zap.Logger
}

// NewHTTPReader validates the URL up front; a bad URL is a config error
// reported before any cycle runs.
func NewHTTPReader(rawURL, affiliation string, client *clients.HTTPClient, log *zap.Logger) (*HTTPReader, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "source URL is not valid").
			WithDetail("url", rawURL)
	}
	if u.Scheme == "" || u.Host == "" || u.Path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "source URL is not valid").
			WithDetail("url", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New(errors.ErrorTypeConfig, "source URL scheme is not valid").
			WithDetail("url", rawURL)
	}

	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		u.Host = u.Hostname() + ":" + port
	}

	return &HTTPReader{
		url:         u.String(),
		affiliation: affiliation,
		client:      client,
		log:         log,
	}, nil
}

// Fetch performs the GET and parses the body. A transport failure or a
// non-JSON body yields a source error; the caller treats that as "no data"
// and skips downstream processing for the cycle.
func (r *HTTPReader) Fetch(ctx context.Context) (*catalog.Document, error) {
	headers := map[string]string{
		"Content-Type":  "application/json",
		headerClient:    r.affiliation,
		headerKeyFormat: "underscore",
	}

	r.log.Debug("HTTP GET", zap.String("url", r.url))
	resp, err := r.client.Get(ctx, r.url, headers)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSource, "source fetch failed").
			WithDetail("url", r.url)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSource, "reading source response").
			WithDetail("url", r.url)
	}

	r.log.Debug("HTTP RESP",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New(errors.ErrorTypeSource,
			fmt.Sprintf("source returned status %d", resp.StatusCode)).
			WithDetail("url", r.url)
	}

	var doc catalog.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSource, "response not in expected JSON format").
			WithDetail("url", r.url)
	}

	r.log.Debug("retrieved and parsed source document",
		zap.Int("bytes", len(data)),
		zap.Int("records", len(doc.Results)))
	return &doc, nil
}

// WriteCache serializes a document to the file destination, reporting the
// byte count written.
func WriteCache(path string, doc *catalog.Document, log *zap.Logger) (int, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "serializing cache document")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "writing cache file").
			WithDetail("path", path)
	}

	log.Info("serialized and wrote cache file",
		zap.Int("bytes", len(data)),
		zap.String("file", path))
	return len(data), nil
}
