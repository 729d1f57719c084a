package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contacts-cli/internal/config"
	"github.com/sells-group/contacts-cli/internal/secrets"
	"github.com/sells-group/contacts-cli/internal/store"
)

// defaultEnvFile is the only secrets file location tolerated when absent.
const defaultEnvFile = ".env"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "contacts-cli",
	Short: "Canonical contact merge pipeline",
	Long:  "Ingests contact files, syncs directory, mailbox, and CRM providers, normalizes and deduplicates contacts into a canonical store.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// initStore opens the configured storage backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "contacts.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initSecrets opens the env-backed secret store. Only the default .env
// location may be absent; an explicitly configured file must exist.
func initSecrets() (secrets.Store, error) {
	envFile := cfg.Secrets.EnvFile
	if envFile == defaultEnvFile {
		if _, err := os.Stat(envFile); os.IsNotExist(err) {
			envFile = ""
		}
	}
	return secrets.NewEnvStore(envFile, secrets.WithPrefix(cfg.Secrets.Prefix))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
