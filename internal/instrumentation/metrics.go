package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrRoute     = "route"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrAccount   = "account"
	attrKind      = "kind"
)

// Metrics records the service's OpenTelemetry metrics. A zero Metrics and
// a nil *Metrics are both valid no-op recorders.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	activeStreams       metric.Int64UpDownCounter
	bytesStreamed       metric.Int64Counter

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// Credential metrics
	credentialLookupsTotal metric.Int64Counter
	tokenRefreshTotal      metric.Int64Counter

	// File operation metrics
	fileOperationsTotal   metric.Int64Counter
	fileOperationDuration metric.Float64Histogram
	uploadedFilesTotal    metric.Int64Counter

	detailedLabels bool
}

// NewMetrics creates a Metrics instance with all instruments registered on meter.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.activeStreams, err = meter.Int64UpDownCounter(
		"drive_active_streams",
		metric.WithDescription("Number of Drive content streams currently proxied to callers"),
		metric.WithUnit("{stream}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive_active_streams gauge: %w", err)
	}

	m.bytesStreamed, err = meter.Int64Counter(
		"drive_streamed_bytes_total",
		metric.WithDescription("Total bytes copied from Drive content streams to callers"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive_streamed_bytes_total counter: %w", err)
	}

	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	m.credentialLookupsTotal, err = meter.Int64Counter(
		"credential_lookups_total",
		metric.WithDescription("Total number of linked-account lookups in the credential store"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential_lookups_total counter: %w", err)
	}

	m.tokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refreshes for linked accounts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	m.fileOperationsTotal, err = meter.Int64Counter(
		"file_operations_total",
		metric.WithDescription("Total number of file operations by operation and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file_operations_total counter: %w", err)
	}

	m.fileOperationDuration, err = meter.Float64Histogram(
		"file_operation_duration_seconds",
		metric.WithDescription("File operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 120.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file_operation_duration_seconds histogram: %w", err)
	}

	m.uploadedFilesTotal, err = meter.Int64Counter(
		"uploaded_files_total",
		metric.WithDescription("Total number of files in upload batches by outcome"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploaded_files_total counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request. route is the matched mux
// pattern, never the raw path.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrRoute, routeLabel(route)),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordGoogleAPIOperation records one Drive API call.
//
// Parameters:
//   - operation: list, get, download, create or delete
//   - status: "success" or the error classification (auth, quota, not_found, transport)
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordCredentialLookup records a credential store lookup.
// Result should be one of: LookupFound, LookupNotFound, LookupError.
func (m *Metrics) RecordCredentialLookup(ctx context.Context, result string) {
	if m == nil || m.credentialLookupsTotal == nil {
		return
	}
	m.credentialLookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordTokenRefresh records a refresh of a linked account's access token.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.tokenRefreshTotal == nil {
		return
	}
	m.tokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordFileOperation records a completed file operation. kind is the
// failure kind, or StatusSuccess. account is only attached with detailed labels.
func (m *Metrics) RecordFileOperation(ctx context.Context, operation, kind, account string, duration time.Duration) {
	if m == nil || m.fileOperationsTotal == nil || m.fileOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrKind, kind),
	}
	if m.detailedLabels && account != "" {
		attrs = append(attrs, attribute.String(attrAccount, account))
	}

	m.fileOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.fileOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordUploadedFiles records the per-file outcome counts of an upload batch.
func (m *Metrics) RecordUploadedFiles(ctx context.Context, successful, failed int) {
	if m == nil || m.uploadedFilesTotal == nil {
		return
	}
	if successful > 0 {
		m.uploadedFilesTotal.Add(ctx, int64(successful), metric.WithAttributes(attribute.String(attrStatus, StatusSuccess)))
	}
	if failed > 0 {
		m.uploadedFilesTotal.Add(ctx, int64(failed), metric.WithAttributes(attribute.String(attrStatus, StatusError)))
	}
}

// IncrementActiveStreams marks the start of a content stream.
func (m *Metrics) IncrementActiveStreams(ctx context.Context) {
	if m == nil || m.activeStreams == nil {
		return
	}
	m.activeStreams.Add(ctx, 1)
}

// DecrementActiveStreams marks the end of a content stream.
func (m *Metrics) DecrementActiveStreams(ctx context.Context) {
	if m == nil || m.activeStreams == nil {
		return
	}
	m.activeStreams.Add(ctx, -1)
}

// AddStreamedBytes adds n to the streamed bytes counter.
func (m *Metrics) AddStreamedBytes(ctx context.Context, n int64) {
	if m == nil || m.bytesStreamed == nil || n <= 0 {
		return
	}
	m.bytesStreamed.Add(ctx, n)
}
