package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	mw "github.com/kiranshivaraju/operator-service/internal/api/middleware"
	"github.com/kiranshivaraju/operator-service/internal/api/response"
	"github.com/kiranshivaraju/operator-service/internal/cluster"
)

// ClusterReader is the read side of the cluster executor used by admin routes.
type ClusterReader interface {
	GetWorkflow(ctx context.Context, namespace, name string) (map[string]any, error)
	ListWorkflows(ctx context.Context, namespace string) ([]string, error)
	PodLogs(ctx context.Context, namespace, selector string) (io.ReadCloser, error)
}

// Migrator applies the schema and reports the resulting version.
type Migrator func(ctx context.Context) (uint, error)

// NewPgsqlInitHandler returns an http.HandlerFunc for POST /pgsqlinit.
// Running it repeatedly is a no-op once the schema is current.
func NewPgsqlInitHandler(migrate Migrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin, _ := mw.GetAdmin(r)
		version, err := migrate(r.Context())
		if err != nil {
			slog.Error("schema migration failed", "admin", admin, "error", err)
			response.Error(w, http.StatusBadGateway, "Error PostgreSQL: schema migration failed")
			return
		}
		slog.Info("schema migrated", "admin", admin, "version", version)
		response.OK(w, map[string]uint{"schemaVersion": version})
	}
}

// NewJobInfoHandler returns an http.HandlerFunc for GET /info.
func NewJobInfoHandler(c ClusterReader, defaultNamespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := r.URL.Query().Get("jobId")
		if jobID == "" {
			response.Error(w, http.StatusBadRequest, `"jobId" is required in the call to info`)
			return
		}

		obj, err := c.GetWorkflow(r.Context(), namespaceParam(r, defaultNamespace), jobID)
		if err != nil {
			slog.Error("workflow lookup failed", "jobId", jobID, "error", err)
			response.Error(w, http.StatusBadRequest, fmt.Sprintf("The jobId %s is not registered in your namespace.", jobID))
			return
		}
		response.OK(w, obj)
	}
}

// NewListWorkflowsHandler returns an http.HandlerFunc for GET /list.
func NewListWorkflowsHandler(c ClusterReader, defaultNamespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := c.ListWorkflows(r.Context(), namespaceParam(r, defaultNamespace))
		if err != nil {
			slog.Error("workflow list failed", "error", err)
			response.Error(w, http.StatusBadRequest, "Error listing workflows")
			return
		}
		if names == nil {
			names = []string{}
		}
		response.OK(w, names)
	}
}

// NewLogsHandler returns an http.HandlerFunc for GET /logs. The log of the
// first pod labelled with the job and component is streamed as plain text.
func NewLogsHandler(c ClusterReader, defaultNamespace string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := r.URL.Query().Get("jobId")
		component := r.URL.Query().Get("component")
		if jobID == "" || component == "" {
			response.Error(w, http.StatusBadRequest, "jobId and component are required")
			return
		}

		selector := fmt.Sprintf("workflow=%s,component=%s", jobID, component)
		logs, err := c.PodLogs(r.Context(), namespaceParam(r, defaultNamespace), selector)
		if errors.Is(err, cluster.ErrPodNotFound) {
			response.Error(w, http.StatusNotFound, fmt.Sprintf("Pod with workflow=%s and component=%s not found", jobID, component))
			return
		}
		if err != nil {
			slog.Error("pod logs failed", "selector", selector, "error", err)
			response.Error(w, http.StatusBadRequest, "Error getting the logs")
			return
		}
		defer logs.Close()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, logs); err != nil {
			slog.Warn("pod log stream interrupted", "selector", selector, "error", err)
		}
	}
}

func namespaceParam(r *http.Request, fallback string) string {
	if ns := r.URL.Query().Get("namespace"); ns != "" {
		return ns
	}
	return fallback
}
