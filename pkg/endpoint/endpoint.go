// Package endpoint parses compact scheme:path specifiers into typed
// source and destination references. Parsing is pure; no I/O happens here.
package endpoint

import (
	"strings"

	"github.com/ncsa/training-sync/pkg/errors"
)

// Role states whether an endpoint feeds the pipeline or receives from it
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

// Supported schemes per role
const (
	SchemeFile    = "file"
	SchemeHTTP    = "http"
	SchemeHTTPS   = "https"
	SchemeAnalyze = "analyze"
	SchemeIndex   = "index"
)

var allowedSchemes = map[Role][]string{
	RoleSource:      {SchemeFile, SchemeHTTP, SchemeHTTPS},
	RoleDestination: {SchemeFile, SchemeAnalyze, SchemeIndex},
}

// Endpoint is a typed reference to a data source or sink. Constructed once
// at startup and immutable thereafter.
type Endpoint struct {
	Role    Role
	Scheme  string
	Path    string // empty when the specifier is a bare scheme
	URI     string // the original specifier, unchanged
	Display string
}

// Parse splits a scheme:path specifier on the first colon and validates the
// scheme against the role's allow-list. A specifier without a colon is a bare
// scheme with no path. For http/https the remainder must begin with "//",
// which is stripped from Path.
func Parse(role Role, spec string) (*Endpoint, error) {
	ep := &Endpoint{
		Role:    role,
		URI:     spec,
		Display: spec,
	}

	if idx := strings.Index(spec, ":"); idx > 0 {
		ep.Scheme = spec[:idx]
		ep.Path = spec[idx+1:]
	} else {
		ep.Scheme = spec
	}

	if !schemeAllowed(role, ep.Scheme) {
		return nil, errors.New(errors.ErrorTypeConfig, "unsupported "+string(role)+" scheme").
			WithDetail("scheme", ep.Scheme).
			WithDetail("allowed", strings.Join(allowedSchemes[role], ", "))
	}

	if ep.Scheme == SchemeHTTP || ep.Scheme == SchemeHTTPS {
		if !strings.HasPrefix(ep.Path, "//") {
			return nil, errors.New(errors.ErrorTypeConfig, "source URL not followed by \"//\"").
				WithDetail("uri", spec)
		}
		ep.Path = ep.Path[2:]
	}

	return ep, nil
}

// ParseSource parses a source specifier (file, http, https)
func ParseSource(spec string) (*Endpoint, error) {
	return Parse(RoleSource, spec)
}

// ParseDestination parses a destination specifier (file, analyze, index)
func ParseDestination(spec string) (*Endpoint, error) {
	return Parse(RoleDestination, spec)
}

// ValidatePair rejects configurations that would copy one static artifact to
// another with no transformation in between.
func ValidatePair(src, dst *Endpoint) error {
	if src.Scheme == SchemeFile && dst.Scheme == SchemeFile {
		return errors.New(errors.ErrorTypeConfig, "source and destination can not both be a file")
	}
	return nil
}

// DaemonAllowed reports whether the endpoint combination may run as a daemon:
// only a remote http(s) source feeding the index is re-polled forever.
func DaemonAllowed(src, dst *Endpoint) bool {
	httpSource := src.Scheme == SchemeHTTP || src.Scheme == SchemeHTTPS
	return httpSource && dst.Scheme == SchemeIndex
}

// IsRemote reports whether the endpoint refers to a network source
func (e *Endpoint) IsRemote() bool {
	return e.Scheme == SchemeHTTP || e.Scheme == SchemeHTTPS
}

func schemeAllowed(role Role, scheme string) bool {
	for _, s := range allowedSchemes[role] {
		if s == scheme {
			return true
		}
	}
	return false
}
