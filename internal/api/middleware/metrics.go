package middleware

import (
	"net/http"
	"time"

	"github.com/kiranshivaraju/operator-service/internal/observability"
)

// Metrics records request count and latency. A nil m disables recording.
func Metrics(m *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.RecordHTTPRequest(r.Context(), r.Method, r.URL.Path, rec.status, time.Since(start).Seconds())
		})
	}
}
