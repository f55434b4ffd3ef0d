package store

import (
	"context"
	"errors"

	"github.com/kiranshivaraju/operator-service/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// Each call runs in its own implicit transaction.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	HasActiveJob(ctx context.Context, agreementID string) (bool, error)
	QueryStatus(ctx context.Context, filter JobFilter) ([]*models.JobView, error)
	ListJobIDs(ctx context.Context, filter JobFilter) ([]string, error)
	MarkStopRequested(ctx context.Context, jobID string) error
	MarkRemoved(ctx context.Context, jobID string) error
	ListRunningJobs(ctx context.Context) ([]*models.JobView, error)
	GetResultLocator(ctx context.Context, jobID string) (*models.ResultLocator, error)

	GetEnvironment(ctx context.Context, namespace string) (*models.Environment, error)
	ListEnvironments(ctx context.Context, chainID *int64) ([]*models.Environment, error)
	EnvironmentExists(ctx context.Context, namespace string, chainID *int64) (bool, error)
	Announce(ctx context.Context, namespace string, status models.EnvironmentStatus, limit int) ([]string, error)

	RecordNonce(ctx context.Context, provider, nonce string) error
}

// JobFilter selects jobs by any combination of correlation keys. Empty fields
// are ignored; supplied fields are ANDed. ChainID is applied after decoding
// the stored workflow.
type JobFilter struct {
	AgreementID string
	JobID       string
	Owner       string
	ChainID     *int64
}

// IsEmpty reports whether no correlation key was supplied.
func (f JobFilter) IsEmpty() bool {
	return f.AgreementID == "" && f.JobID == "" && f.Owner == ""
}
