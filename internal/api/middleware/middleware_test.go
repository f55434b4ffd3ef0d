package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mw "github.com/kiranshivaraju/operator-service/internal/api/middleware"
	"github.com/kiranshivaraju/operator-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Counter ---

type mockCounter struct {
	counter int64
	keys    []string
	err     error
}

func (m *mockCounter) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.counter++
	m.keys = append(m.keys, key)
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func errMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

// ========================================
// Admin Middleware Tests
// ========================================

func TestAdmin_MissingHeader(t *testing.T) {
	handler := mw.NewAdminAuth([]string{"0xadmin"}).RequireAdmin(okHandler())

	req := httptest.NewRequest("GET", "/api/v1/operator/list", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Admin header is empty.", errMessage(t, w))
}

func TestAdmin_UnknownAddress(t *testing.T) {
	handler := mw.NewAdminAuth([]string{"0xadmin"}).RequireAdmin(okHandler())

	req := httptest.NewRequest("GET", "/api/v1/operator/list", nil)
	req.Header.Set("Admin", "0xintruder")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Access admin route failed due to invalid admin address.", errMessage(t, w))
}

func TestAdmin_EmptyAllowListRejectsEveryone(t *testing.T) {
	handler := mw.NewAdminAuth(nil).RequireAdmin(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Admin", "0xadmin")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_Allowed(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = mw.GetAdmin(r)
		w.WriteHeader(http.StatusOK)
	})
	handler := mw.NewAdminAuth([]string{"0xAdMiN"}).RequireAdmin(inner)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Admin", "0xADMIN")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xadmin", seen)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCounter{}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	require.Len(t, mc.keys, 1)
	assert.True(t, strings.HasPrefix(mc.keys[0], "ratelimit:10.1.2.3:"))
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCounter{counter: 60}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "Too many requests", errMessage(t, w))
}

func TestRateLimit_CounterErrorFailsOpen(t *testing.T) {
	mc := &mockCounter{counter: 1000, err: errors.New("redis down")}
	handler := mw.NewRateLimit(mc, 60).Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_InProcess(t *testing.T) {
	handler := mw.NewRateLimit(nil, 2).Limit(okHandler())

	do := func(addr string) int {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:2"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:3"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1"))
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "An unexpected error occurred", errMessage(t, w))
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLogger_PassesFlush(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("chunk"))
		f, ok := w.(http.Flusher)
		require.True(t, ok)
		f.Flush()
	})

	w := httptest.NewRecorder()
	mw.Logger(inner).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.True(t, w.Flushed)
}

// ========================================
// Metrics Middleware Tests
// ========================================

func TestMetrics_RecordsRequests(t *testing.T) {
	m, exposition, err := observability.NewMetrics(context.Background())
	require.NoError(t, err)

	handler := mw.Metrics(m)(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/operator/compute", nil))

	w := httptest.NewRecorder()
	exposition.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "http_requests")
	assert.Contains(t, string(body), `/api/v1/operator/compute`)
}

func TestMetrics_NilIsPassThrough(t *testing.T) {
	w := httptest.NewRecorder()
	mw.Metrics(nil)(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
