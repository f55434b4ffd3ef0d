package observability

import (
	"context"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the operator's request and job-admission metrics.
type Metrics struct {
	meter metric.Meter

	// HTTP metrics
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job admission metrics
	JobsAdmitted        metric.Int64Counter
	JobsRejected        metric.Int64Counter
	StopRequests        metric.Int64Counter
	DispatchFailures    metric.Int64Counter
	EnvironmentAnnounce metric.Int64Counter

	// Result proxy metrics
	ResultFetchDuration metric.Float64Histogram
	ResultBytes         metric.Int64Counter
}

// NewMetrics creates all metrics on a private Prometheus registry and returns
// the handler that exposes it.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("operator-service")
	m := &Metrics{meter: meter}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsAdmitted, err = meter.Int64Counter(
		"compute_jobs_admitted_total",
		metric.WithDescription("Total number of compute jobs written to the store"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsRejected, err = meter.Int64Counter(
		"compute_jobs_rejected_total",
		metric.WithDescription("Total number of start requests refused, by reason"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.StopRequests, err = meter.Int64Counter(
		"compute_stop_requests_total",
		metric.WithDescription("Total number of jobs flagged for stop"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.DispatchFailures, err = meter.Int64Counter(
		"compute_dispatch_failures_total",
		metric.WithDescription("Total number of WorkFlow objects that could not be created"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.EnvironmentAnnounce, err = meter.Int64Counter(
		"environment_announces_total",
		metric.WithDescription("Total number of environment heartbeats"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ResultFetchDuration, err = meter.Float64Histogram(
		"result_fetch_duration_seconds",
		metric.WithDescription("Time to first byte from a result source"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ResultBytes, err = meter.Int64Counter(
		"result_bytes_total",
		metric.WithDescription("Total bytes streamed from result sources"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobAdmitted records a job accepted into namespace.
func (m *Metrics) RecordJobAdmitted(ctx context.Context, namespace string) {
	m.JobsAdmitted.Add(ctx, 1, metric.WithAttributes(namespaceAttr(namespace)))
}

// RecordJobRejected records a refused start request.
func (m *Metrics) RecordJobRejected(ctx context.Context, reason string) {
	m.JobsRejected.Add(ctx, 1, metric.WithAttributes(reasonAttr(reason)))
}

// RecordStopRequested records jobs flagged for stop by one request.
func (m *Metrics) RecordStopRequested(ctx context.Context, count int) {
	m.StopRequests.Add(ctx, int64(count))
}

// RecordDispatchFailure records a failed WorkFlow creation.
func (m *Metrics) RecordDispatchFailure(ctx context.Context, namespace string) {
	m.DispatchFailures.Add(ctx, 1, metric.WithAttributes(namespaceAttr(namespace)))
}

// RecordAnnounce records an environment heartbeat.
func (m *Metrics) RecordAnnounce(ctx context.Context, namespace string) {
	m.EnvironmentAnnounce.Add(ctx, 1, metric.WithAttributes(namespaceAttr(namespace)))
}

// RecordResultFetch records the upstream latency of a result fetch.
func (m *Metrics) RecordResultFetch(ctx context.Context, scheme string, success bool, durationSeconds float64) {
	m.ResultFetchDuration.Record(ctx, durationSeconds, metric.WithAttributes(schemeAttr(scheme), successAttr(success)))
}

// RecordResultBytes records bytes streamed to a caller.
func (m *Metrics) RecordResultBytes(ctx context.Context, scheme string, n int64) {
	m.ResultBytes.Add(ctx, n, metric.WithAttributes(schemeAttr(scheme)))
}
