package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/kiranshivaraju/operator-service/internal/api/response"
	"github.com/kiranshivaraju/operator-service/internal/result"
)

// ResultService defines the interface the getResult handler depends on.
type ResultService interface {
	Open(ctx context.Context, req *result.Request) (*result.Download, error)
	Stream(ctx context.Context, w io.Writer, d *result.Download) (int64, error)
}

// NewGetResultHandler returns an http.HandlerFunc for GET /getResult.
func NewGetResultHandler(svc ResultService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values := r.URL.Query()
		req := &result.Request{
			JobID:             values.Get("jobId"),
			Index:             values.Get("index"),
			Owner:             values.Get("owner"),
			ProviderSignature: values.Get("providerSignature"),
			Nonce:             values.Get("nonce"),
			Range:             r.Header.Get("Range"),
		}

		d, err := svc.Open(r.Context(), req)
		if err != nil {
			response.FromError(w, r, err)
			return
		}

		for k, v := range d.Header {
			w.Header()[k] = v
		}
		w.WriteHeader(d.StatusCode)

		// Headers are already sent; Stream logs interruptions itself.
		_, _ = svc.Stream(r.Context(), w, d)
	}
}
