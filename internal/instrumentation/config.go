package instrumentation

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: driveproxy)
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"driveproxy" toml:"service_name"`

	// ServiceVersion is the version of the service
	ServiceVersion string `toml:"-"`

	// ServiceInstanceID is the unique instance identifier (default: hostname)
	ServiceInstanceID string `env:"OTEL_SERVICE_INSTANCE_ID" toml:"service_instance_id"`

	// K8sNamespace is the Kubernetes namespace where the service is running
	K8sNamespace string `env:"K8S_NAMESPACE" toml:"k8s_namespace"`

	// K8sPodName is the Kubernetes pod name
	K8sPodName string `env:"K8S_POD_NAME" toml:"k8s_pod_name"`

	// Enabled determines if instrumentation is active (default: true)
	Enabled bool `env:"INSTRUMENTATION_ENABLED" envDefault:"true" toml:"enabled"`

	// MetricsExporter specifies the metrics exporter type
	// Options: "prometheus", "otlp", "stdout" (default: "prometheus")
	MetricsExporter string `env:"METRICS_EXPORTER" envDefault:"prometheus" toml:"metrics_exporter"`

	// TracingExporter specifies the tracing exporter type
	// Options: "otlp", "stdout", "none" (default: "none")
	TracingExporter string `env:"TRACING_EXPORTER" envDefault:"none" toml:"tracing_exporter"`

	// OTLPEndpoint is the OTLP collector endpoint without protocol prefix,
	// e.g. "localhost:4318".
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" toml:"otlp_endpoint"`

	// OTLPInsecure uses plain HTTP for OTLP export. Local development only.
	OTLPInsecure bool `env:"OTEL_EXPORTER_OTLP_INSECURE" toml:"otlp_insecure"`

	// TraceSamplingRate is the sampling rate for traces (0.0 to 1.0, default: 0.1)
	TraceSamplingRate float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"0.1" toml:"trace_sampling_rate"`

	// DetailedLabels adds high-cardinality labels such as linked account
	// emails to metrics. Keep disabled in production.
	DetailedLabels bool `env:"METRICS_DETAILED_LABELS" toml:"detailed_labels"`

	// AuditLogging configures audit logging behavior.
	AuditLogging AuditLoggingConfig `toml:"audit"`
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool `env:"AUDIT_LOGGING_ENABLED" envDefault:"true" toml:"enabled"`

	// IncludePII logs full caller and account emails instead of hashes.
	// Audit logs written with PII must be stored with restricted access.
	IncludePII bool `env:"AUDIT_LOGGING_INCLUDE_PII" toml:"include_pii"`
}

// DefaultConfig returns a Config populated from environment variables,
// falling back to defaults for unset keys.
func DefaultConfig() Config {
	cfg := Config{ServiceVersion: "unknown"}
	if err := env.Parse(&cfg); err != nil {
		// Malformed environment values fall back to the defaults.
		cfg = Config{
			ServiceName:       "driveproxy",
			ServiceVersion:    "unknown",
			Enabled:           true,
			MetricsExporter:   ExporterPrometheus,
			TracingExporter:   ExporterNone,
			TraceSamplingRate: 0.1,
			AuditLogging:      AuditLoggingConfig{Enabled: true},
		}
	}
	return cfg
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	validMetricsExporters := map[string]bool{ExporterPrometheus: true, ExporterOTLP: true, ExporterStdout: true}
	if c.MetricsExporter != "" && !validMetricsExporters[c.MetricsExporter] {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	validTracingExporters := map[string]bool{ExporterOTLP: true, ExporterStdout: true, ExporterNone: true}
	if c.TracingExporter != "" && !validTracingExporters[c.TracingExporter] {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.TracingExporter == ExporterOTLP && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
	}
	if c.MetricsExporter == ExporterOTLP && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
	}

	return nil
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Credential lookup results
	LookupFound    = "found"
	LookupNotFound = "not_found"
	LookupError    = "error"

	// Token refresh results
	RefreshSuccess = "success"
	RefreshFailure = "failure"

	// ServiceDrive is the Google service label for Drive API calls.
	ServiceDrive = "drive"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricInterval is the export interval of periodic readers.
	DefaultMetricInterval = 10 * time.Second
)
