// Package result streams compute job outputs back to their owners.
package result

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported result url scheme")
	ErrObjectNotFound    = errors.New("result object not found")
)

// Upstream is an opened result stream. Callers must close Body.
type Upstream struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Fetcher opens the resource behind a result URL. rangeHeader is forwarded
// verbatim when non-empty.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, rangeHeader string) (*Upstream, error)
}

// Mux dispatches fetches by URL scheme.
type Mux struct {
	fetchers map[string]Fetcher
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{fetchers: make(map[string]Fetcher)}
}

// Handle registers f for scheme. Registering a scheme twice replaces the
// previous fetcher.
func (m *Mux) Handle(scheme string, f Fetcher) {
	m.fetchers[strings.ToLower(scheme)] = f
}

// Fetch implements Fetcher.
func (m *Mux) Fetch(ctx context.Context, rawURL, rangeHeader string) (*Upstream, error) {
	scheme := Scheme(rawURL)
	f, ok := m.fetchers[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return f.Fetch(ctx, rawURL, rangeHeader)
}

// Scheme returns the lowercased scheme of rawURL, or "" if it has none.
func Scheme(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Scheme)
}
