package result

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// HTTPFetcher downloads results from http(s) URLs, typically an IPFS gateway
// or a provider storage endpoint.
type HTTPFetcher struct {
	client   *http.Client
	apiKey   string
	clientID string
}

// NewHTTPFetcher creates a fetcher whose connect and response-header phases
// are bounded by timeout. The body is streamed without an overall deadline.
func NewHTTPFetcher(timeout time.Duration, apiKey, clientID string) *HTTPFetcher {
	dialer := &net.Dialer{Timeout: timeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout

	return &HTTPFetcher{
		client:   &http.Client{Transport: transport},
		apiKey:   apiKey,
		clientID: clientID,
	}
}

// Fetch implements Fetcher. Single attempt, no retry.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, rangeHeader string) (*Upstream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	if f.apiKey != "" {
		req.Header.Set("X-API-KEY", f.apiKey)
	}
	if f.clientID != "" {
		req.Header.Set("CLIENT-ID", f.clientID)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", req.URL.Redacted(), err)
	}
	return &Upstream{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
