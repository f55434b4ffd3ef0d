package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/operator-service/internal/api/middleware"
	"github.com/kiranshivaraju/operator-service/internal/api/response"
	"github.com/kiranshivaraju/operator-service/internal/observability"
)

// BasePath prefixes every operator route.
const BasePath = "/api/v1/operator"

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Admin     *mw.AdminAuth
	RateLimit *mw.RateLimit
	Metrics   *observability.Metrics

	// TrustProxy makes X-Forwarded-For and X-Real-IP the client address.
	// Only set it when a reverse proxy overwrites those headers.
	TrustProxy bool

	ServiceInfoHandler http.HandlerFunc
	HealthHandler      http.HandlerFunc
	MetricsHandler     http.Handler

	StartJobHandler     http.HandlerFunc
	StopJobHandler      http.HandlerFunc
	DeleteJobHandler    http.HandlerFunc
	JobStatusHandler    http.HandlerFunc
	RunningJobsHandler  http.HandlerFunc
	GetResultHandler    http.HandlerFunc
	EnvironmentsHandler http.HandlerFunc

	PgsqlInitHandler http.HandlerFunc
	JobInfoHandler   http.HandlerFunc
	ListJobsHandler  http.HandlerFunc
	LogsHandler      http.HandlerFunc
	AnnounceHandler  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics(deps.Metrics))

	// Operational endpoints
	r.Get("/", orNotImplemented(deps.ServiceInfoHandler))
	r.Get("/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route(BasePath, func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/compute", orNotImplemented(deps.StartJobHandler))
		r.Put("/compute", orNotImplemented(deps.StopJobHandler))
		r.Delete("/compute", orNotImplemented(deps.DeleteJobHandler))
		r.Get("/compute", orNotImplemented(deps.JobStatusHandler))
		r.Get("/runningjobs", orNotImplemented(deps.RunningJobsHandler))
		r.Get("/getResult", orNotImplemented(deps.GetResultHandler))
		r.Get("/environments", orNotImplemented(deps.EnvironmentsHandler))

		// Admin routes
		r.Group(func(r chi.Router) {
			if deps.Admin != nil {
				r.Use(deps.Admin.RequireAdmin)
			} else {
				r.Use(denyAll)
			}

			r.Post("/pgsqlinit", orNotImplemented(deps.PgsqlInitHandler))
			r.Get("/info", orNotImplemented(deps.JobInfoHandler))
			r.Get("/list", orNotImplemented(deps.ListJobsHandler))
			r.Get("/logs", orNotImplemented(deps.LogsHandler))
			r.Post("/announce", orNotImplemented(deps.AnnounceHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "Endpoint not yet implemented")
	}
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusUnauthorized, "Access admin route failed due to invalid admin address.")
	})
}
