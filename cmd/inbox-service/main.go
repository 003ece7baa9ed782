package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "smsinbox/cmd/inbox-service/docs"
	"smsinbox/internal/config"
	"smsinbox/internal/constants"
	"smsinbox/internal/logger"
	"smsinbox/pkg/bootstrap"
	"smsinbox/pkg/logging"
	"smsinbox/pkg/metrics"
)

var (
	configFile string
)

// @title           SMS Inbox Service API
// @version         1.0
// @description     Receives HMAC-signed SMS webhooks, stores each message once and serves queries and statistics over the stored corpus.

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8000
// @BasePath  /

// @schemes   http https

func main() {
	rootCmd := &cobra.Command{
		Use:   "inbox-service",
		Short: "SMS webhook inbox",
		Long:  "Inbox Service ingests signed SMS webhooks idempotently and exposes message queries and stats over HTTP",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML config file (optional, environment is always read)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}

	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx = logging.WithServiceName(ctx, constants.ServiceName)

			log.InfowCtx(ctx, "Starting Inbox Service", "version", constants.Version)

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				return err
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Application error", "error", err)
				return err
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			backend, err := cfg.Database.ResolveBackend()
			if err != nil {
				return fmt.Errorf("failed to resolve database: %w", err)
			}

			connector := bootstrap.NewDatabaseConnector(cfg, log, metrics.NewRegistry())
			if err := connector.Migrate(cmd.Context(), backend); err != nil {
				log.Errorw("Migration failed", "backend", backend.Kind, "error", err)
				return err
			}
			return nil
		},
	}
}
