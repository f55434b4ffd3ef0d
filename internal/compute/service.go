// Package compute admits, stops and reports on compute jobs.
package compute

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/operator-service/internal/apperrors"
	"github.com/kiranshivaraju/operator-service/internal/cluster"
	"github.com/kiranshivaraju/operator-service/internal/observability"
	"github.com/kiranshivaraju/operator-service/internal/store"
	"github.com/kiranshivaraju/operator-service/pkg/models"
)

// Store is the subset of store.Store the admission flow needs.
type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	HasActiveJob(ctx context.Context, agreementID string) (bool, error)
	QueryStatus(ctx context.Context, filter store.JobFilter) ([]*models.JobView, error)
	ListJobIDs(ctx context.Context, filter store.JobFilter) ([]string, error)
	MarkStopRequested(ctx context.Context, jobID string) error
	MarkRemoved(ctx context.Context, jobID string) error
	ListRunningJobs(ctx context.Context) ([]*models.JobView, error)
	RecordNonce(ctx context.Context, provider, nonce string) error
}

// Environments decides whether a namespace may run a job for a chain.
type Environments interface {
	Eligible(ctx context.Context, namespace string, chainID *int64) (bool, error)
}

// Authenticator recovers and checks the provider behind a signed request.
type Authenticator interface {
	Verify(signature, message, nonce string) (string, error)
}

// Dispatcher creates WorkFlow objects. Only used with inline dispatch.
type Dispatcher interface {
	CreateWorkflow(ctx context.Context, res *cluster.Resource) error
}

// Options configures the admission service.
type Options struct {
	Group          string
	Version        string
	AlgoPodTimeout int64
	Resources      map[string]string
	InlineDispatch bool
}

// Service is the job admission controller. It holds no per-job state; the
// store is the only source of truth.
type Service struct {
	store      Store
	envs       Environments
	auth       Authenticator
	dispatcher Dispatcher
	metrics    *observability.Metrics
	opts       Options

	now   func() time.Time
	newID func() string
}

// NewService creates a new admission service. dispatcher and metrics may be nil.
func NewService(s Store, envs Environments, auth Authenticator, dispatcher Dispatcher, metrics *observability.Metrics, opts Options) *Service {
	return &Service{
		store:      s,
		envs:       envs,
		auth:       auth,
		dispatcher: dispatcher,
		metrics:    metrics,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      NewJobID,
	}
}

// NewJobID returns a random 128-bit id, hex encoded.
func NewJobID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// StartRequest is the body of a start call.
type StartRequest struct {
	AgreementID       string          `json:"agreementId"`
	Owner             string          `json:"owner"`
	ProviderSignature string          `json:"providerSignature"`
	Environment       string          `json:"environment"`
	Nonce             models.Nonce    `json:"nonce"`
	ChainID           models.ChainID  `json:"chainId"`
	Workflow          json.RawMessage `json:"workflow"`
}

// JobQuery targets existing jobs for stop, delete and status calls.
type JobQuery struct {
	AgreementID       string         `json:"agreementId"`
	JobID             string         `json:"jobId"`
	Owner             string         `json:"owner"`
	ProviderSignature string         `json:"providerSignature"`
	Nonce             models.Nonce   `json:"nonce"`
	ChainID           models.ChainID `json:"chainId"`
}

func (q JobQuery) filter() store.JobFilter {
	return store.JobFilter{AgreementID: q.AgreementID, JobID: q.JobID, Owner: q.Owner}
}

// signedMessage is "{owner}{jobId}" when a job id is given, else "{owner}".
func (q JobQuery) signedMessage() string {
	return q.Owner + q.JobID
}

// compensationTimeout bounds the MarkRemoved that releases a job whose
// WorkFlow could not be created.
const compensationTimeout = 5 * time.Second

var requiredStageKeys = []string{"algorithm", "compute", "input", "output"}

// StartJob validates, authenticates and records a new job, then returns its
// status view.
func (s *Service) StartJob(ctx context.Context, req *StartRequest) ([]*models.JobView, error) {
	wf, chainID, err := s.validateStart(req)
	if err != nil {
		s.rejected(ctx, "validation")
		return nil, err
	}

	ok, err := s.envs.Eligible(ctx, req.Environment, chainID)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.rejected(ctx, "environment")
		return nil, apperrors.Validation("environment", "Environment invalid or does not exist")
	}

	provider, err := s.authenticate(ctx, req.ProviderSignature, req.Owner, string(req.Nonce))
	if err != nil {
		s.rejected(ctx, "signature")
		return nil, err
	}

	if err := validateStages(wf); err != nil {
		s.rejected(ctx, "workflow")
		return nil, err
	}

	active, err := s.store.HasActiveJob(ctx, req.AgreementID)
	if err != nil {
		return nil, apperrors.Upstream("store.hasActiveJob", err)
	}
	if active {
		s.rejected(ctx, "conflict")
		return nil, agreementInUse()
	}

	if err := s.applyComputeDefaults(wf); err != nil {
		return nil, apperrors.Validation("workflow.stages", fmt.Sprintf("Invalid compute section in first stage: %v", err))
	}
	body, err := json.Marshal(wf)
	if err != nil {
		return nil, apperrors.Internal("encode workflow", err)
	}

	jobID := s.newID()
	logger := slog.With("jobId", jobID, "agreementId", req.AgreementID, "owner", req.Owner, "namespace", req.Environment)

	job := &models.Job{
		AgreementID: req.AgreementID,
		JobID:       jobID,
		Owner:       req.Owner,
		Provider:    provider,
		Status:      models.JobStatusWarmingUp,
		StatusText:  models.JobStatusText(models.JobStatusWarmingUp),
		Workflow:    body,
		Namespace:   req.Environment,
		ChainID:     chainID,
		DateCreated: s.now(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			s.rejected(ctx, "conflict")
			return nil, agreementInUse()
		}
		logger.Error("Failed to create job record", "error", err)
		return nil, apperrors.Upstream("store.createJob", err)
	}

	if s.opts.InlineDispatch && s.dispatcher != nil {
		if err := s.dispatch(ctx, job); err != nil {
			logger.Error("WorkFlow creation failed", "error", err)
			return nil, err
		}
	}

	if s.metrics != nil {
		s.metrics.RecordJobAdmitted(ctx, req.Environment)
	}
	logger.Info("Job admitted", "provider", provider)

	views, err := s.store.QueryStatus(ctx, store.JobFilter{AgreementID: req.AgreementID, JobID: jobID, Owner: req.Owner})
	if err != nil {
		return nil, apperrors.Upstream("store.queryStatus", err)
	}
	return views, nil
}

// StopJob flags every matching job for stop and returns their status views.
func (s *Service) StopJob(ctx context.Context, q *JobQuery) ([]*models.JobView, error) {
	if err := requireTarget(q); err != nil {
		return nil, err
	}
	if err := requireFields("stop", map[string]string{
		"owner":             q.Owner,
		"providerSignature": q.ProviderSignature,
		"nonce":             string(q.Nonce),
	}, "owner", "providerSignature", "nonce"); err != nil {
		return nil, err
	}
	if _, err := s.authenticate(ctx, q.ProviderSignature, q.signedMessage(), string(q.Nonce)); err != nil {
		return nil, err
	}

	filter := q.filter()
	ids, err := s.store.ListJobIDs(ctx, filter)
	if err != nil {
		return nil, apperrors.Upstream("store.listJobIds", err)
	}
	for _, id := range ids {
		if err := s.store.MarkStopRequested(ctx, id); err != nil {
			return nil, apperrors.Upstream("store.markStopRequested", err)
		}
	}
	if s.metrics != nil && len(ids) > 0 {
		s.metrics.RecordStopRequested(ctx, len(ids))
	}
	slog.Info("Stop requested", "owner", q.Owner, "agreementId", q.AgreementID, "jobId", q.JobID, "jobs", len(ids))

	views, err := s.store.QueryStatus(ctx, filter)
	if err != nil {
		return nil, apperrors.Upstream("store.queryStatus", err)
	}
	return views, nil
}

// DeleteJob authenticates the request and returns an empty result. Removal of
// cluster objects is left to the controller that watches the store.
func (s *Service) DeleteJob(ctx context.Context, q *JobQuery) ([]*models.JobView, error) {
	if err := requireTarget(q); err != nil {
		return nil, err
	}
	if err := requireFields("delete", map[string]string{
		"owner":             q.Owner,
		"providerSignature": q.ProviderSignature,
		"nonce":             string(q.Nonce),
	}, "owner", "providerSignature", "nonce"); err != nil {
		return nil, err
	}
	if _, err := s.authenticate(ctx, q.ProviderSignature, q.signedMessage(), string(q.Nonce)); err != nil {
		return nil, err
	}
	return []*models.JobView{}, nil
}

// GetStatus returns the status views of jobs matching the query.
func (s *Service) GetStatus(ctx context.Context, q *JobQuery) ([]*models.JobView, error) {
	if err := requireTarget(q); err != nil {
		return nil, err
	}
	if _, err := s.authenticate(ctx, q.ProviderSignature, q.signedMessage(), string(q.Nonce)); err != nil {
		return nil, err
	}

	filter := q.filter()
	filter.ChainID = q.ChainID.Value
	views, err := s.store.QueryStatus(ctx, filter)
	if err != nil {
		return nil, apperrors.Upstream("store.queryStatus", err)
	}
	return views, nil
}

// ListRunningJobs returns every job that has not finished.
func (s *Service) ListRunningJobs(ctx context.Context) ([]*models.JobView, error) {
	views, err := s.store.ListRunningJobs(ctx)
	if err != nil {
		return nil, apperrors.Upstream("store.listRunningJobs", err)
	}
	return views, nil
}

// authenticate verifies the signature and records the nonce for the provider.
// A failed nonce write does not fail the request.
func (s *Service) authenticate(ctx context.Context, sig, message, nonce string) (string, error) {
	provider, err := s.auth.Verify(sig, message, nonce)
	if err != nil {
		slog.Warn("Signature check failed", "error", err)
		return "", err
	}
	if provider != "" && nonce != "" {
		if err := s.store.RecordNonce(ctx, provider, nonce); err != nil {
			slog.Warn("Failed to record provider nonce", "provider", provider, "error", err)
		}
	}
	return provider, nil
}

// dispatch creates the WorkFlow object for a freshly written job. On failure
// the row is marked removed so the controller never picks it up.
func (s *Service) dispatch(ctx context.Context, job *models.Job) error {
	res, err := cluster.BuildResource(s.opts.Group, s.opts.Version, job.JobID, job.Namespace, job.Workflow)
	if err == nil {
		err = s.dispatcher.CreateWorkflow(ctx, res)
	}
	if err == nil {
		return nil
	}

	if s.metrics != nil {
		s.metrics.RecordDispatchFailure(ctx, job.Namespace)
	}
	// The caller may already be gone; the row must still be released.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()
	if rmErr := s.store.MarkRemoved(cleanupCtx, job.JobID); rmErr != nil {
		slog.Error("Failed to mark job removed after dispatch failure", "jobId", job.JobID, "error", rmErr)
	} else {
		slog.Info("Job marked removed after dispatch failure", "jobId", job.JobID)
	}
	return apperrors.Upstream("cluster.createWorkflow", err)
}

func (s *Service) rejected(ctx context.Context, reason string) {
	if s.metrics != nil {
		s.metrics.RecordJobRejected(ctx, reason)
	}
}

func (s *Service) validateStart(req *StartRequest) (*models.Workflow, *int64, error) {
	workflow := ""
	if len(req.Workflow) > 0 && string(req.Workflow) != "null" {
		workflow = "present"
	}
	if err := requireFields("start", map[string]string{
		"workflow":          workflow,
		"agreementId":       req.AgreementID,
		"owner":             req.Owner,
		"providerSignature": req.ProviderSignature,
		"environment":       req.Environment,
		"nonce":             string(req.Nonce),
	}, "workflow", "agreementId", "owner", "providerSignature", "environment", "nonce"); err != nil {
		return nil, nil, err
	}

	var wf models.Workflow
	if err := json.Unmarshal(req.Workflow, &wf); err != nil {
		return nil, nil, apperrors.Validation("workflow", "`workflow` must be a JSON object")
	}

	chainID := req.ChainID.Value
	if chainID == nil {
		chainID = wf.ChainID
	}
	return &wf, chainID, nil
}

func validateStages(wf *models.Workflow) error {
	if !wf.HasStages() || len(wf.Stages) == 0 {
		return apperrors.Validation("workflow.stages", "\"workflow.stages\" is required in the call to start")
	}
	if len(wf.Stages) > 1 {
		return apperrors.Validation("workflow.stages", "Multiple stages are not supported yet")
	}
	for _, key := range requiredStageKeys {
		if _, ok := wf.Stages[0][key]; !ok {
			return apperrors.Validation("workflow.stages", fmt.Sprintf("Missing attribute %s in first stage", key))
		}
	}
	return nil
}

// applyComputeDefaults fills stage-0 compute resources and maxtime that the
// caller left out.
func (s *Service) applyComputeDefaults(wf *models.Workflow) error {
	stage := wf.Stages[0]
	c, err := stage.Compute()
	if err != nil {
		return err
	}
	if c.Resources == nil {
		c.Resources = make(map[string]any, len(s.opts.Resources))
	}
	for k, v := range s.opts.Resources {
		if _, ok := c.Resources[k]; !ok {
			c.Resources[k] = v
		}
	}
	if c.MaxTime <= 0 && s.opts.AlgoPodTimeout > 0 {
		c.MaxTime = s.opts.AlgoPodTimeout
	}
	return stage.SetCompute(c)
}

func requireTarget(q *JobQuery) error {
	if q.AgreementID == "" && q.JobID == "" && q.Owner == "" {
		return apperrors.Validation("jobId", "At least one of agreementId, jobId or owner is required")
	}
	return nil
}

func requireFields(op string, values map[string]string, order ...string) error {
	for _, field := range order {
		if values[field] == "" {
			return apperrors.Validation(field, fmt.Sprintf("%q is required in the call to %s", field, op))
		}
	}
	return nil
}

func agreementInUse() error {
	return apperrors.Conflict("agreementId", "`agreementId` already in use for other job.")
}
