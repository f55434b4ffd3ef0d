package models

import (
	"encoding/json"
	"time"
)

// Status codes written to jobs.status. The service itself only ever writes
// JobStatusWarmingUp; the remaining codes are set by the external executor.
const (
	JobStatusWarmingUp                   = 1
	JobStatusStarted                     = 10
	JobStatusConfiguringVolumes          = 20
	JobStatusProvisioningSuccess         = 30
	JobStatusDataProvisioningFailed      = 31
	JobStatusAlgorithmProvisioningFailed = 32
	JobStatusRunningAlgorithm            = 40
	JobStatusFilteringResults            = 50
	JobStatusPublishingResults           = 60
	JobStatusFinished                    = 70
)

var jobStatusText = map[int]string{
	JobStatusWarmingUp:                   "Warming up",
	JobStatusStarted:                     "Job started",
	JobStatusConfiguringVolumes:          "Configuring volumes",
	JobStatusProvisioningSuccess:         "Provisioning success",
	JobStatusDataProvisioningFailed:      "Data provisioning failed",
	JobStatusAlgorithmProvisioningFailed: "Algorithm provisioning failed",
	JobStatusRunningAlgorithm:            "Running algorithm",
	JobStatusFilteringResults:            "Filtering results",
	JobStatusPublishingResults:           "Publishing results",
	JobStatusFinished:                    "Job finished",
}

// JobStatusText returns the human-readable mirror of a status code.
func JobStatusText(status int) string {
	if s, ok := jobStatusText[status]; ok {
		return s
	}
	return "Unknown"
}

// Job is a row of the jobs table as written at admission time.
// Result and log pointers are filled in later by the external executor.
type Job struct {
	AgreementID   string          `db:"agreementid"  json:"agreementId"`
	JobID         string          `db:"workflowid"   json:"jobId"`
	Owner         string          `db:"owner"        json:"owner"`
	Provider      string          `db:"provider"     json:"provider"`
	Status        int             `db:"status"       json:"status"`
	StatusText    string          `db:"statustext"   json:"statusText"`
	Workflow      json.RawMessage `db:"workflow"     json:"workflow"`
	Namespace     string          `db:"namespace"    json:"namespace"`
	ChainID       *int64          `db:"chainid"      json:"chainId,omitempty"`
	DateCreated   time.Time       `db:"datecreated"  json:"dateCreated"`
	DateFinished  *time.Time      `db:"datefinished" json:"dateFinished,omitempty"`
	StopRequested bool            `db:"stopreq"      json:"stopreq"`
	Removed       bool            `db:"removed"      json:"removed"`
}

// JobView is the denormalized status row returned by status, stop, start and
// running-job queries. Dates are epoch seconds.
type JobView struct {
	AgreementID     string   `json:"agreementId"`
	JobID           string   `json:"jobId"`
	Owner           string   `json:"owner"`
	Status          int      `json:"status"`
	StatusText      string   `json:"statusText"`
	DateCreated     float64  `json:"dateCreated"`
	DateFinished    *float64 `json:"dateFinished"`
	AlgorithmLogURL string   `json:"algorithmLogUrl"`
	ResultsURL      any      `json:"resultsUrl"`
	ResultsDID      string   `json:"resultsDid"`
	StopRequested   int      `json:"stopreq"`
	Removed         int      `json:"removed"`
	AlgoDID         string   `json:"algoDID"`
	InputDID        []string `json:"inputDID"`
	Namespace       string   `json:"namespace"`
}

// ResultOutput is one entry of the outputsURL list recorded by the executor.
type ResultOutput struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
	Filesize int64  `json:"filesize,omitempty"`
	Type     string `json:"type,omitempty"`
}

// ResultLocator is what the result endpoint needs to serve an output file.
type ResultLocator struct {
	Outputs []ResultOutput
	Owner   string
}
