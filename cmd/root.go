package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iverona/face-detect/internal/config"
	"github.com/iverona/face-detect/internal/logging"
	"github.com/iverona/face-detect/internal/store"
	"github.com/iverona/face-detect/internal/utils"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// DB is the global database connection shared by subcommands. It is nil
	// when no database is configured.
	DB *store.Store
	// Cfg is the merged configuration of the running command.
	Cfg *config.Config
	// Log is the root logger.
	Log zerolog.Logger

	cfgFile string
)

// errNoDatabase is returned by commands that only work against the store.
var errNoDatabase = errors.New("no database configured: pass --db, set db.url or POSTGRES_HOST")

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "face-detect",
	Short:   "Annotate videos with cloud face-detection results",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		Log = logging.New(Cfg.Log.Level, os.Stderr)
		if Cfg.File != "" {
			Log.Debug().Str("file", Cfg.File).Msg("config loaded")
		}

		dbURL := databaseURL(Cfg.DB.URL)
		if dbURL == "" {
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// The main context might be cancelled already (Ctrl+C) and we still need to close.
			DB.Close(context.Background())
		}
	},
}

// databaseURL returns the configured connection string, or one built from
// the POSTGRES_* environment, or "" when neither is present.
func databaseURL(configured string) string {
	if configured != "" {
		return configured
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

func requireDB() error {
	if DB == nil {
		utils.ShowError("Database required", errNoDatabase, nil)
		return errNoDatabase
	}
	return nil
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
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: ./"+config.DefaultFile+" if present)")
	rootCmd.PersistentFlags().String("db", "", "PostgreSQL connection string (default: from POSTGRES_* environment, none if unset)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn, error")
}
