package result

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/operator-service/internal/apperrors"
	"github.com/kiranshivaraju/operator-service/internal/observability"
	"github.com/kiranshivaraju/operator-service/internal/store"
	"github.com/kiranshivaraju/operator-service/pkg/models"
)

const chunkSize = 4096

// Store resolves where a job's outputs live.
type Store interface {
	GetResultLocator(ctx context.Context, jobID string) (*models.ResultLocator, error)
}

// Authenticator recovers and checks the provider behind a signed request.
type Authenticator interface {
	Verify(signature, message, nonce string) (string, error)
}

// Request identifies one output of one job.
type Request struct {
	JobID             string
	Index             string
	Owner             string
	ProviderSignature string
	Nonce             string
	Range             string
}

// Download is an opened result ready to be streamed to the caller.
type Download struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser

	jobID  string
	scheme string
}

// Service resolves and opens job results.
type Service struct {
	store   Store
	auth    Authenticator
	fetcher Fetcher
	metrics *observability.Metrics
}

// NewService creates a new result service. metrics may be nil.
func NewService(s Store, auth Authenticator, fetcher Fetcher, metrics *observability.Metrics) *Service {
	return &Service{store: s, auth: auth, fetcher: fetcher, metrics: metrics}
}

// Open authenticates the request, looks up the output at req.Index and opens
// it upstream. The caller must Stream or Close the returned Download.
func (s *Service) Open(ctx context.Context, req *Request) (*Download, error) {
	for _, f := range []struct{ name, value string }{
		{"jobId", req.JobID},
		{"index", req.Index},
		{"owner", req.Owner},
	} {
		if f.value == "" {
			return nil, apperrors.Validation(f.name, fmt.Sprintf("%q is required in the call to getResult", f.name))
		}
	}
	index, err := strconv.Atoi(strings.TrimSpace(req.Index))
	if err != nil {
		return nil, apperrors.Validation("index", "`index` must be an integer")
	}

	if _, err := s.auth.Verify(req.ProviderSignature, req.Owner+req.JobID, req.Nonce); err != nil {
		return nil, err
	}

	locator, err := s.store.GetResultLocator(ctx, req.JobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, noResults()
		}
		return nil, apperrors.Upstream("store.getResultLocator", err)
	}
	if !strings.EqualFold(locator.Owner, req.Owner) {
		slog.Warn("Result requested by non-owner", "jobId", req.JobID, "owner", req.Owner)
		return nil, noResults()
	}
	if index < 0 || index >= len(locator.Outputs) {
		return nil, apperrors.NotFound("result", fmt.Sprintf("No such index %d in this compute job", index))
	}

	output := locator.Outputs[index]
	scheme := Scheme(output.URL)
	started := time.Now()
	up, err := s.fetcher.Fetch(ctx, output.URL, req.Range)
	if s.metrics != nil {
		s.metrics.RecordResultFetch(ctx, scheme, err == nil, time.Since(started).Seconds())
	}
	if err != nil {
		slog.Error("Error preparing file download response", "jobId", req.JobID, "index", index, "error", err)
		if errors.Is(err, ErrObjectNotFound) {
			return nil, apperrors.NotFound("result", fmt.Sprintf("No such index %d in this compute job", index))
		}
		return nil, apperrors.Fetch("result.fetch", "Error getting the result file", err)
	}

	return &Download{
		StatusCode: up.StatusCode,
		Header:     downloadHeaders(output.URL, req.Range, up.Header),
		Body:       up.Body,
		jobID:      req.JobID,
		scheme:     scheme,
	}, nil
}

// Stream copies the download to w in fixed-size chunks, flushing after each
// one when w supports it. The body is always closed.
func (s *Service) Stream(ctx context.Context, w io.Writer, d *Download) (int64, error) {
	defer d.Body.Close()

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, chunkSize)
	var written int64
	var err error
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			break
		}
		n, readErr := d.Body.Read(buf)
		if n > 0 {
			m, writeErr := w.Write(buf[:n])
			written += int64(m)
			if writeErr != nil {
				err = writeErr
				break
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			err = readErr
			break
		}
	}

	if s.metrics != nil {
		s.metrics.RecordResultBytes(ctx, d.scheme, written)
	}
	if err != nil {
		slog.Warn("Result stream interrupted", "jobId", d.jobID, "bytes", written, "error", err)
	}
	return written, err
}

// Close releases a download that will not be streamed.
func (d *Download) Close() error {
	return d.Body.Close()
}

func noResults() error {
	return apperrors.NotFound("result", "No results found for this compute job")
}
