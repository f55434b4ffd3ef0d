package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/operator-service/internal/api/response"
	"github.com/kiranshivaraju/operator-service/internal/apperrors"
	"github.com/kiranshivaraju/operator-service/pkg/models"
)

// EnvironmentService defines the interface the environment handlers depend on.
type EnvironmentService interface {
	List(ctx context.Context, chainID *int64) ([]*models.Environment, error)
	Announce(ctx context.Context, namespace string, status models.EnvironmentStatus, limit int) ([]string, error)
}

// NewListEnvironmentsHandler returns an http.HandlerFunc for GET /environments.
// An optional chainId query parameter restricts the list to environments
// that accept that chain.
func NewListEnvironmentsHandler(svc EnvironmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var chain models.ChainID
		if v := r.URL.Query().Get("chainId"); v != "" {
			if err := chain.UnmarshalJSON([]byte(v)); err != nil {
				response.FromError(w, r, apperrors.Validation("chainId", "`chainId` must be an integer"))
				return
			}
		}

		envs, err := svc.List(r.Context(), chain.Value)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.OK(w, envs)
	}
}

// NewAnnounceHandler returns an http.HandlerFunc for POST /announce.
func NewAnnounceHandler(svc EnvironmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Environment string                   `json:"environment"`
			Status      models.EnvironmentStatus `json:"status"`
			Limit       int                      `json:"limit"`
		}
		if err := decodeBody(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		ids, err := svc.Announce(r.Context(), req.Environment, req.Status, req.Limit)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		response.OK(w, ids)
	}
}
