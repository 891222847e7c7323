package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teemow/driveproxy/internal/credstore/mongostore"
	"github.com/teemow/driveproxy/internal/drive"
	"github.com/teemow/driveproxy/internal/files"
	"github.com/teemow/driveproxy/internal/instrumentation"
	"github.com/teemow/driveproxy/internal/logging"
)

// Credential store backends.
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
	StoreSQLite = "sqlite"
)

// Config is the full runtime configuration of driveproxy.
type Config struct {
	HTTP            HTTPConfig             `toml:"http"`
	Auth            AuthConfig             `toml:"auth"`
	Store           StoreConfig            `toml:"store"`
	Google          GoogleConfig           `toml:"google"`
	Drive           DriveConfig            `toml:"drive"`
	Upload          UploadConfig           `toml:"upload"`
	Metrics         MetricsConfig          `toml:"metrics"`
	Log             LogConfig              `toml:"log"`
	Instrumentation instrumentation.Config `toml:"instrumentation"`

	// ShutdownTimeout bounds the graceful drain of in-flight requests.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" toml:"shutdown_timeout"`
}

// HTTPConfig configures the file API listener.
type HTTPConfig struct {
	Addr        string `env:"HTTP_ADDR" toml:"addr"`
	TLSCertFile string `env:"TLS_CERT_FILE" toml:"tls_cert_file"`
	TLSKeyFile  string `env:"TLS_KEY_FILE" toml:"tls_key_file"`
}

// AuthConfig configures verification of caller access tokens.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" toml:"jwt_secret"`
	JWTIssuer string `env:"JWT_ISSUER" toml:"jwt_issuer"`
}

// StoreConfig selects and configures the credential store.
type StoreConfig struct {
	Type string `env:"STORE_TYPE" toml:"type"`

	// SeedFile is a JSON array of user records loaded at startup.
	SeedFile string `env:"STORE_SEED_FILE" toml:"seed_file"`

	MongoURI            string        `env:"MONGO_URI" toml:"mongo_uri"`
	MongoDatabase       string        `env:"MONGO_DATABASE" toml:"mongo_database"`
	MongoCollection     string        `env:"MONGO_COLLECTION" toml:"mongo_collection"`
	MongoConnectTimeout time.Duration `env:"MONGO_CONNECT_TIMEOUT" toml:"mongo_connect_timeout"`
	MongoQueryTimeout   time.Duration `env:"MONGO_QUERY_TIMEOUT" toml:"mongo_query_timeout"`

	SQLitePath string `env:"SQLITE_PATH" toml:"sqlite_path"`
}

// GoogleConfig holds the OAuth client used to refresh stored tokens.
// Without client credentials stored access tokens are used as-is.
type GoogleConfig struct {
	ClientID     string `env:"GOOGLE_CLIENT_ID" toml:"client_id"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET" toml:"client_secret"`
	TokenURL     string `env:"GOOGLE_TOKEN_URL" toml:"token_url"`
}

// DriveConfig configures Drive API calls.
type DriveConfig struct {
	Endpoint      string        `env:"DRIVE_ENDPOINT" toml:"endpoint"`
	CallTimeout   time.Duration `env:"DRIVE_CALL_TIMEOUT" toml:"call_timeout"`
	StreamTimeout time.Duration `env:"DRIVE_STREAM_TIMEOUT" toml:"stream_timeout"`
}

// UploadConfig bounds upload batches.
type UploadConfig struct {
	Workers      int   `env:"UPLOAD_WORKERS" toml:"workers"`
	MaxFiles     int   `env:"UPLOAD_MAX_FILES" toml:"max_files"`
	MaxFileBytes int64 `env:"UPLOAD_MAX_FILE_BYTES" toml:"max_file_bytes"`
}

// Limits converts the upload settings for the file service.
func (u UploadConfig) Limits() files.Limits {
	return files.Limits{
		Workers:      u.Workers,
		MaxFiles:     u.MaxFiles,
		MaxFileBytes: u.MaxFileBytes,
	}
}

// MetricsConfig configures the dedicated metrics listener.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_SERVER_ENABLED" toml:"enabled"`
	Addr    string `env:"METRICS_ADDR" toml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" toml:"level"`
	Format string `env:"LOG_FORMAT" toml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		Store: StoreConfig{
			Type:                StoreMemory,
			MongoCollection:     mongostore.DefaultCollection,
			MongoConnectTimeout: 10 * time.Second,
			MongoQueryTimeout:   mongostore.DefaultQueryTimeout,
			SQLitePath:          "driveproxy.db",
		},
		Drive: DriveConfig{
			CallTimeout:   drive.DefaultCallTimeout,
			StreamTimeout: drive.DefaultStreamTimeout,
		},
		Upload: UploadConfig{
			Workers:      files.DefaultUploadWorkers,
			MaxFiles:     files.DefaultMaxFiles,
			MaxFileBytes: files.DefaultMaxFileBytes,
		},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
		Log:     LogConfig{Level: "info", Format: logging.FormatJSON},
		Instrumentation: instrumentation.Config{
			ServiceName:       "driveproxy",
			ServiceVersion:    "unknown",
			Enabled:           true,
			MetricsExporter:   instrumentation.ExporterPrometheus,
			TracingExporter:   instrumentation.ExporterNone,
			TraceSamplingRate: 0.1,
			AuditLogging:      instrumentation.AuditLoggingConfig{Enabled: true},
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration for missing or inconsistent values.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth: jwt_secret (JWT_SECRET) is required"))
	}
	if (c.HTTP.TLSCertFile == "") != (c.HTTP.TLSKeyFile == "") {
		errs = append(errs, errors.New("http: tls_cert_file and tls_key_file must be set together"))
	}

	switch c.Store.Type {
	case StoreMemory:
	case StoreMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			errs = append(errs, errors.New("store: mongo_uri and mongo_database are required for the mongo store"))
		}
		if c.Store.MongoConnectTimeout <= 0 || c.Store.MongoQueryTimeout <= 0 {
			errs = append(errs, errors.New("store: mongo_connect_timeout and mongo_query_timeout must be positive"))
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store: sqlite_path is required for the sqlite store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store: unknown type %q, must be one of: memory, mongo, sqlite", c.Store.Type))
	}

	if (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		errs = append(errs, errors.New("google: client_id and client_secret must be set together"))
	}

	if c.Drive.CallTimeout <= 0 || c.Drive.StreamTimeout <= 0 {
		errs = append(errs, errors.New("drive: call_timeout and stream_timeout must be positive"))
	}
	if c.Upload.Workers <= 0 || c.Upload.MaxFiles <= 0 || c.Upload.MaxFileBytes <= 0 {
		errs = append(errs, errors.New("upload: workers, max_files and max_file_bytes must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case logging.FormatJSON, logging.FormatText:
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q, must be json or text", c.Log.Format))
	}

	if err := c.Instrumentation.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("instrumentation: %w", err))
	}
	if c.Metrics.Enabled && c.Instrumentation.Enabled && c.Instrumentation.MetricsExporter != instrumentation.ExporterPrometheus {
		errs = append(errs, errors.New("metrics: the metrics server requires the prometheus exporter"))
	}

	return errors.Join(errs...)
}
