package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/logger"
	"github.com/andresmejia3/facegate/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Database requirement of a command, set through its annotations.
const (
	dbAnnotation = "db"
	dbRequired   = "required"
	dbOptional   = "optional"
)

var (
	// DB is the global database connection shared by subcommands.
	// It stays nil for commands that don't need it, or when an optional
	// connection failed.
	DB *store.Store
	// Cfg is the merged configuration.
	Cfg *config.Config

	configPath string
	dbURL      string
	debug      bool

	// exitCode lets a command report failure after its deferred cleanup ran.
	exitCode int
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facegate",
	Short:   "Live face enrollment and verification",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env file is optional, don't fail if not found
		_ = godotenv.Load()

		var err error
		Cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbURL != "" {
			Cfg.Database.URL = dbURL
		}
		if debug {
			Cfg.Debug = true
		}
		if err := logger.Init(Cfg.Debug); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		switch cmd.Annotations[dbAnnotation] {
		case dbRequired:
			DB, err = store.New(cmd.Context(), Cfg.Database.URL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
		case dbOptional:
			DB, err = store.New(cmd.Context(), Cfg.Database.URL)
			if err != nil {
				DB = nil
				logger.Warning("template storage unavailable", logger.Options{Key: "error", Data: err})
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// The command context may already be cancelled (Ctrl+C); closing still has to reach the server.
			DB.Close(context.Background())
		}
		logger.Sync()
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if exitCode != 0 {
		stop()
		os.Exit(exitCode)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: built from POSTGRES_* or postgres://localhost:5432/facegate)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Verbose structured logging")
}
