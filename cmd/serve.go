package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/driveproxy/internal/config"
	"github.com/teemow/driveproxy/internal/credstore"
	"github.com/teemow/driveproxy/internal/credstore/mongostore"
	"github.com/teemow/driveproxy/internal/credstore/sqlitestore"
	"github.com/teemow/driveproxy/internal/drive"
	"github.com/teemow/driveproxy/internal/files"
	"github.com/teemow/driveproxy/internal/google"
	"github.com/teemow/driveproxy/internal/instrumentation"
	"github.com/teemow/driveproxy/internal/logging"
	"github.com/teemow/driveproxy/internal/server"
)

// serveFlags holds command-line overrides. Only flags the user set are
// applied on top of the loaded configuration.
type serveFlags struct {
	debug          bool
	httpAddr       string
	tlsCertFile    string
	tlsKeyFile     string
	storeType      string
	seedFile       string
	logLevel       string
	logFormat      string
	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the file API server",
		Long: `Start the HTTP server exposing the /files API.

Configuration is read from built-in defaults, then the TOML file given by
--config or DRIVEPROXY_CONFIG, then environment variables, then flags.

Required:
  JWT_SECRET              shared secret verifying caller access tokens

Credential store:
  STORE_TYPE              memory (default), mongo or sqlite
  STORE_SEED_FILE         JSON user records loaded at startup
  MONGO_URI, MONGO_DATABASE, MONGO_COLLECTION, MONGO_QUERY_TIMEOUT
  SQLITE_PATH

Token refresh (optional):
  GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET
  Without these, stored access tokens are used until they expire.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug logging in text format")
	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", "", "File API listen address (default \":8080\"). Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&flags.tlsCertFile, "tls-cert-file", "", "TLS certificate file. Can also use TLS_CERT_FILE env var.")
	cmd.Flags().StringVar(&flags.tlsKeyFile, "tls-key-file", "", "TLS private key file. Can also use TLS_KEY_FILE env var.")
	cmd.Flags().StringVar(&flags.storeType, "store", "", "Credential store: memory, mongo or sqlite. Can also use STORE_TYPE env var.")
	cmd.Flags().StringVar(&flags.seedFile, "seed-file", "", "JSON file of user records loaded at startup. Can also use STORE_SEED_FILE env var.")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn or error. Can also use LOG_LEVEL env var.")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "", "Log format: json or text. Can also use LOG_FORMAT env var.")
	cmd.Flags().BoolVar(&flags.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_SERVER_ENABLED env var.")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Metrics server address (default \":9090\"). Can also use METRICS_ADDR env var.")

	return cmd
}

// loadConfig resolves the configuration and applies the flags set on cmd.
func loadConfig(cmd *cobra.Command, flags serveFlags) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv(config.ConfigPathEnv)
	}

	cfg, err := config.Load(path, nil)
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, flags, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, flags serveFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("http-addr") {
		cfg.HTTP.Addr = flags.httpAddr
	}
	if changed("tls-cert-file") {
		cfg.HTTP.TLSCertFile = flags.tlsCertFile
	}
	if changed("tls-key-file") {
		cfg.HTTP.TLSKeyFile = flags.tlsKeyFile
	}
	if changed("store") {
		cfg.Store.Type = flags.storeType
	}
	if changed("seed-file") {
		cfg.Store.SeedFile = flags.seedFile
	}
	if changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}
	if changed("metrics-enabled") {
		cfg.Metrics.Enabled = flags.metricsEnabled
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = flags.metricsAddr
	}
	if flags.debug {
		cfg.Log.Level = "debug"
		cfg.Log.Format = logging.FormatText
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	instrConfig := cfg.Instrumentation
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()
	metrics := provider.Metrics()

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("credential store close failed", logging.Err(err))
		}
	}()

	oauthConfig := google.NewOAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.TokenURL)
	tokens := google.NewStoredTokenProvider(oauthConfig, google.NewBaseTransport())
	if !tokens.CanRefresh() {
		logger.Warn("no Google client credentials configured, expired access tokens will not be refreshed")
	}

	gateways, err := drive.NewFactory(drive.FactoryConfig{
		Tokens:        tokens,
		Endpoint:      cfg.Drive.Endpoint,
		CallTimeout:   cfg.Drive.CallTimeout,
		StreamTimeout: cfg.Drive.StreamTimeout,
		Metrics:       metrics,
	})
	if err != nil {
		return err
	}

	fileService, err := files.NewService(files.Config{
		Store:    store,
		Gateways: gateways,
		Limits:   cfg.Upload.Limits(),
		Logger:   logger,
		Audit:    instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging),
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}

	apiServer, err := server.New(server.Config{
		Addr:        cfg.HTTP.Addr,
		TLSCertFile: cfg.HTTP.TLSCertFile,
		TLSKeyFile:  cfg.HTTP.TLSKeyFile,
		JWTSecret:   cfg.Auth.JWTSecret,
		JWTIssuer:   cfg.Auth.JWTIssuer,
	}, server.Deps{
		Files:   fileService,
		Store:   store,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			InstrumentationProvider: provider,
			Logger:                  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(apiServer.Start)
	if metricsServer != nil {
		g.Go(func() error {
			if err := metricsServer.Start(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		if metricsServer != nil {
			errs = append(errs, metricsServer.Shutdown(shutdownCtx))
		}
		errs = append(errs, apiServer.Shutdown(shutdownCtx))
		return errors.Join(errs...)
	})

	return g.Wait()
}

// openStore opens the configured credential store and loads the seed file
// into it when one is set.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (credstore.Store, error) {
	var store credstore.Store

	switch cfg.Type {
	case config.StoreMemory:
		store = credstore.NewMemoryStore()
	case config.StoreMongo:
		s, err := mongostore.Open(ctx, mongostore.Config{
			URI:            cfg.MongoURI,
			Database:       cfg.MongoDatabase,
			Collection:     cfg.MongoCollection,
			ConnectTimeout: cfg.MongoConnectTimeout,
			QueryTimeout:   cfg.MongoQueryTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo credential store: %w", err)
		}
		store = s
	case config.StoreSQLite:
		s, err := sqlitestore.Open(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite credential store: %w", err)
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown credential store %q", cfg.Type)
	}
	logger.Info("credential store ready", "type", cfg.Type)

	if cfg.SeedFile == "" {
		return store, nil
	}

	seeder, ok := store.(credstore.Seeder)
	if !ok {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("credential store %q does not accept seed records", cfg.Type)
	}
	users, err := credstore.LoadSeedFile(cfg.SeedFile)
	if err == nil {
		err = credstore.Seed(ctx, seeder, users)
	}
	if err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	logger.Info("seeded credential store", "users", len(users))
	return store, nil
}
