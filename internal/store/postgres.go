package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/operator-service/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobViewColumns = `agreementId, workflowId, owner, status, statusText,
	EXTRACT(EPOCH FROM dateCreated)::float8, EXTRACT(EPOCH FROM dateFinished)::float8,
	algologURL, outputsURL, ddo, stopreq, removed, namespace, workflow, chainid`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	var chainID *string
	if job.ChainID != nil {
		v := strconv.FormatInt(*job.ChainID, 10)
		chainID = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (agreementId, workflowId, owner, status, statusText, workflow, namespace, provider, chainid, dateCreated, laststatusupdate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		job.AgreementID, job.JobID, job.Owner, job.Status, job.StatusText, string(job.Workflow),
		job.Namespace, job.Provider, chainID, job.DateCreated)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) HasActiveJob(ctx context.Context, agreementID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE agreementId = $1 AND dateFinished IS NULL AND removed = 0)`,
		agreementID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active job: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) QueryStatus(ctx context.Context, filter JobFilter) ([]*models.JobView, error) {
	where, args := filter.where()
	rows, err := s.pool.Query(ctx,
		"SELECT "+jobViewColumns+" FROM jobs WHERE "+where+" ORDER BY dateCreated", args...)
	if err != nil {
		return nil, fmt.Errorf("query job status: %w", err)
	}
	defer rows.Close()

	views := []*models.JobView{}
	for rows.Next() {
		v, chainID, err := scanJobView(rows)
		if err != nil {
			return nil, err
		}
		if filter.ChainID != nil && chainID != nil && *chainID != *filter.ChainID {
			continue
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (s *PostgresStore) ListJobIDs(ctx context.Context, filter JobFilter) ([]string, error) {
	where, args := filter.where()
	rows, err := s.pool.Query(ctx, "SELECT workflowId FROM jobs WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) MarkStopRequested(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE jobs SET stopreq = 1 WHERE workflowId = $1`, jobID)
	if err != nil {
		return fmt.Errorf("mark stop requested: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkRemoved(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `UPDATE jobs SET removed = 1 WHERE workflowId = $1`, jobID)
	if err != nil {
		return fmt.Errorf("mark removed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRunningJobs(ctx context.Context) ([]*models.JobView, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+jobViewColumns+" FROM jobs WHERE dateFinished IS NULL ORDER BY dateCreated")
	if err != nil {
		return nil, fmt.Errorf("list running jobs: %w", err)
	}
	defer rows.Close()

	views := []*models.JobView{}
	for rows.Next() {
		v, _, err := scanJobView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (s *PostgresStore) GetResultLocator(ctx context.Context, jobID string) (*models.ResultLocator, error) {
	var outputs, owner *string
	err := s.pool.QueryRow(ctx,
		`SELECT outputsURL, owner FROM jobs WHERE workflowId = $1 LIMIT 1`, jobID,
	).Scan(&outputs, &owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result locator: %w", err)
	}
	if outputs == nil {
		return nil, ErrNotFound
	}

	var list []models.ResultOutput
	if err := json.Unmarshal([]byte(*outputs), &list); err != nil || list == nil {
		return nil, ErrNotFound
	}
	loc := &models.ResultLocator{Outputs: list}
	if owner != nil {
		loc.Owner = *owner
	}
	return loc, nil
}

// --- Environments ---

func (s *PostgresStore) GetEnvironment(ctx context.Context, namespace string) (*models.Environment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT namespace, status, lastping FROM envs WHERE namespace = $1`, namespace)
	env, err := scanEnvironment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get environment: %w", err)
	}
	return env, nil
}

func (s *PostgresStore) ListEnvironments(ctx context.Context, chainID *int64) ([]*models.Environment, error) {
	rows, err := s.pool.Query(ctx, `SELECT namespace, status, lastping FROM envs ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}
	defer rows.Close()

	envs := []*models.Environment{}
	for rows.Next() {
		env, err := scanEnvironment(rows)
		if errors.Is(err, errMalformedStatus) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scan environment: %w", err)
		}
		if chainID != nil && !env.Status.AcceptsChain(chainID) {
			continue
		}
		envs = append(envs, env)
	}
	return envs, rows.Err()
}

func (s *PostgresStore) EnvironmentExists(ctx context.Context, namespace string, chainID *int64) (bool, error) {
	env, err := s.GetEnvironment(ctx, namespace)
	if errors.Is(err, ErrNotFound) || errors.Is(err, errMalformedStatus) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return env.Status.AcceptsChain(chainID), nil
}

func (s *PostgresStore) Announce(ctx context.Context, namespace string, status models.EnvironmentStatus, limit int) ([]string, error) {
	blob, err := json.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("encode environment status: %w", err)
	}
	rows, err := s.pool.Query(ctx, `SELECT workflow FROM announce($1, $2, $3)`, namespace, string(blob), limit)
	if err != nil {
		return nil, fmt.Errorf("announce: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan announced job: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Nonces ---

func (s *PostgresStore) RecordNonce(ctx context.Context, provider, nonce string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO nonces (provider, nonce, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (provider) DO UPDATE SET nonce = EXCLUDED.nonce, updated_at = EXCLUDED.updated_at`,
		strings.ToLower(provider), nonce)
	if err != nil {
		return fmt.Errorf("record nonce: %w", err)
	}
	return nil
}

// --- helpers ---

var errMalformedStatus = errors.New("malformed environment status")

func (f JobFilter) where() (string, []any) {
	conditions := []string{"1=1"}
	var args []any
	argIdx := 1

	if f.AgreementID != "" {
		conditions = append(conditions, fmt.Sprintf("agreementId = $%d", argIdx))
		args = append(args, f.AgreementID)
		argIdx++
	}
	if f.JobID != "" {
		conditions = append(conditions, fmt.Sprintf("workflowId = $%d", argIdx))
		args = append(args, f.JobID)
		argIdx++
	}
	if f.Owner != "" {
		conditions = append(conditions, fmt.Sprintf("owner = $%d", argIdx))
		args = append(args, f.Owner)
	}
	return strings.Join(conditions, " AND "), args
}

// scanJobView decodes one jobViewColumns row. It also returns the chain id
// the job was submitted for, taken from the workflow or the chainid column.
func scanJobView(row pgx.Row) (*models.JobView, *int64, error) {
	var (
		v                                 models.JobView
		owner, statusText, algoLog        *string
		outputs, ddo, namespace, workflow *string
		chainCol                          *string
		status                            *int
		stopreq, removed                  *int16
	)
	if err := row.Scan(&v.AgreementID, &v.JobID, &owner, &status, &statusText,
		&v.DateCreated, &v.DateFinished, &algoLog, &outputs, &ddo,
		&stopreq, &removed, &namespace, &workflow, &chainCol); err != nil {
		return nil, nil, fmt.Errorf("scan job: %w", err)
	}

	v.Owner = deref(owner)
	v.StatusText = deref(statusText)
	v.AlgorithmLogURL = deref(algoLog)
	v.Namespace = deref(namespace)
	if status != nil {
		v.Status = *status
	}
	if stopreq != nil {
		v.StopRequested = int(*stopreq)
	}
	if removed != nil {
		v.Removed = int(*removed)
	}

	v.ResultsURL = ""
	if outputs != nil && len(*outputs) > 2 {
		var decoded any
		if err := json.Unmarshal([]byte(*outputs), &decoded); err == nil {
			v.ResultsURL = decoded
		}
	}
	if ddo != nil && len(*ddo) > 2 {
		var d struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal([]byte(*ddo), &d); err == nil {
			v.ResultsDID = d.ID
		}
	}

	var wf models.Workflow
	v.AlgoDID = "raw"
	v.InputDID = []string{}
	if workflow != nil && json.Unmarshal([]byte(*workflow), &wf) == nil {
		v.AlgoDID = wf.AlgorithmDID()
		v.InputDID = wf.InputDIDs()
	}

	chainID := wf.ChainID
	if chainID == nil && chainCol != nil {
		if c, err := strconv.ParseInt(strings.TrimSpace(*chainCol), 10, 64); err == nil {
			chainID = &c
		}
	}
	return &v, chainID, nil
}

func scanEnvironment(row pgx.Row) (*models.Environment, error) {
	var (
		env    models.Environment
		status *string
	)
	if err := row.Scan(&env.Namespace, &status, &env.LastPing); err != nil {
		return nil, err
	}
	if status != nil && *status != "" {
		if err := json.Unmarshal([]byte(*status), &env.Status); err != nil {
			return nil, fmt.Errorf("%w for %s: %v", errMalformedStatus, env.Namespace, err)
		}
	}
	return &env, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// isDuplicateKeyError checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
