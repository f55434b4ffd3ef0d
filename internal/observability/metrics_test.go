package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	metrics, handler, err := NewMetrics(context.Background())
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}
	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestMetricsExposed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	metrics.RecordHTTPRequest(ctx, "POST", "/api/v1/operator/compute", 200, 0.02)
	metrics.RecordHTTPRequest(ctx, "GET", "/api/v1/operator/getResult", 404, 0.001)
	metrics.RecordJobAdmitted(ctx, "ocean-compute")
	metrics.RecordJobRejected(ctx, "conflict")
	metrics.RecordStopRequested(ctx, 2)
	metrics.RecordDispatchFailure(ctx, "ocean-compute")
	metrics.RecordAnnounce(ctx, "ocean-compute")
	metrics.RecordResultFetch(ctx, "https", true, 0.3)
	metrics.RecordResultBytes(ctx, "https", 4096)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"http_requests", "compute_jobs_admitted", "result_bytes", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/", "/"},
		{"/health", "/health"},
		{"/api/v1/operator/compute", "/api/v1/operator/compute"},
		{"/api/v1/operator/compute/", "/api/v1/operator/compute"},
		{"/wp-admin.php", "other"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.input); got != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestStatusAttr(t *testing.T) {
	t.Parallel()
	if got := statusAttr(404).Value.AsString(); got != "4xx" {
		t.Errorf("statusAttr(404) = %q", got)
	}
}
