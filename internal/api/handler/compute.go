package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kiranshivaraju/operator-service/internal/api/response"
	"github.com/kiranshivaraju/operator-service/internal/apperrors"
	"github.com/kiranshivaraju/operator-service/internal/compute"
	"github.com/kiranshivaraju/operator-service/pkg/models"
)

const maxBodyBytes = 1 << 20

// ComputeService defines the interface the compute handlers depend on.
type ComputeService interface {
	StartJob(ctx context.Context, req *compute.StartRequest) ([]*models.JobView, error)
	StopJob(ctx context.Context, q *compute.JobQuery) ([]*models.JobView, error)
	DeleteJob(ctx context.Context, q *compute.JobQuery) ([]*models.JobView, error)
	GetStatus(ctx context.Context, q *compute.JobQuery) ([]*models.JobView, error)
	ListRunningJobs(ctx context.Context) ([]*models.JobView, error)
}

// NewStartJobHandler returns an http.HandlerFunc for POST /compute.
func NewStartJobHandler(svc ComputeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req compute.StartRequest
		if err := decodeBody(r, &req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		views, err := svc.StartJob(r.Context(), &req)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.OK(w, views)
	}
}

// NewStopJobHandler returns an http.HandlerFunc for PUT /compute.
func NewStopJobHandler(svc ComputeService) http.HandlerFunc {
	return jobQueryHandler(svc.StopJob)
}

// NewDeleteJobHandler returns an http.HandlerFunc for DELETE /compute.
func NewDeleteJobHandler(svc ComputeService) http.HandlerFunc {
	return jobQueryHandler(svc.DeleteJob)
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /compute.
func NewJobStatusHandler(svc ComputeService) http.HandlerFunc {
	return jobQueryHandler(svc.GetStatus)
}

// NewRunningJobsHandler returns an http.HandlerFunc for GET /runningjobs.
func NewRunningJobsHandler(svc ComputeService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := svc.ListRunningJobs(r.Context())
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.OK(w, views)
	}
}

func jobQueryHandler(op func(context.Context, *compute.JobQuery) ([]*models.JobView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseJobQuery(r)
		if err != nil {
			response.FromError(w, r, err)
			return
		}

		views, err := op(r.Context(), q)
		if err != nil {
			response.FromError(w, r, err)
			return
		}
		response.OK(w, views)
	}
}

// parseJobQuery reads the job selector from the query string, then lets a
// JSON body override any field it carries.
func parseJobQuery(r *http.Request) (*compute.JobQuery, error) {
	values := r.URL.Query()
	q := &compute.JobQuery{
		AgreementID:       values.Get("agreementId"),
		JobID:             values.Get("jobId"),
		Owner:             values.Get("owner"),
		ProviderSignature: values.Get("providerSignature"),
		Nonce:             models.Nonce(values.Get("nonce")),
	}
	if v := values.Get("chainId"); v != "" {
		if err := q.ChainID.UnmarshalJSON([]byte(v)); err != nil {
			return nil, apperrors.Validation("chainId", "`chainId` must be an integer")
		}
	}

	if err := decodeBody(r, q); err != nil {
		return nil, apperrors.Validation("body", "Invalid JSON body")
	}
	return q, nil
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}
