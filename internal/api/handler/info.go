package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/operator-service/internal/api/response"
)

// ServiceInfo is the body of GET /.
type ServiceInfo struct {
	Software          string `json:"software"`
	Version           string `json:"version"`
	Address           string `json:"address"`
	AlgoTimeLimit     int64  `json:"algoTimeLimit"`
	StorageExpiry     int64  `json:"storageExpiry"`
	SignatureRequired bool   `json:"signatureRequired"`
}

// NewServiceInfoHandler returns an http.HandlerFunc for GET /.
func NewServiceInfoHandler(info ServiceInfo) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		response.OK(w, info)
	}
}

// Pinger is anything whose connectivity can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /health. cache may be
// nil when no Redis is configured.
func NewHealthHandler(db Pinger, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if cache == nil {
			checks["cache"] = "disabled"
		} else if err := cache.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		if checks["database"] == "degraded" || checks["cache"] == "degraded" {
			response.JSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":   "degraded",
				"services": checks,
			})
			return
		}

		response.OK(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
