// Package instrumentation provides OpenTelemetry metrics, tracing and the
// audit log for driveproxy.
//
// # Metrics
//
// HTTP:
//   - http_requests_total, http_request_duration_seconds by method, route, status
//   - drive_active_streams: content streams currently proxied
//   - drive_streamed_bytes_total: bytes copied from Drive to callers
//
// Google API:
//   - google_api_operations_total, google_api_operation_duration_seconds by
//     operation and error classification
//
// Credentials:
//   - credential_lookups_total by result (found, not_found, error)
//   - oauth_token_refresh_total by result
//
// File operations:
//   - file_operations_total, file_operation_duration_seconds by operation and kind
//   - uploaded_files_total by per-file outcome
//
// Routes are recorded as mux patterns so Drive IDs never become labels.
// Linked account emails are only attached with METRICS_DETAILED_LABELS=true.
//
// # Tracing
//
// Spans are created for file operations (files.<op>) and Drive API calls
// (google.drive.<operation>).
//
// # Configuration
//
// Environment variables:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
package instrumentation
