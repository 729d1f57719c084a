package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/contacts-cli/internal/model"
	"github.com/sells-group/contacts-cli/internal/pipeline"
)

var syncCmd = &cobra.Command{
	Use:   "sync [source]...",
	Short: "Sync contacts from remote providers",
	Long:  "Fetches contacts from the configured providers (directory, mailbox, crm), normalizes them, and upserts them into the store. With no arguments every provider is synced.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("sync"); err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return err
		}

		sec, err := initSecrets()
		if err != nil {
			return err
		}

		sources := args
		if len(sources) == 0 {
			sources = []string{model.SourceDirectory, model.SourceMailbox, model.SourceCRM}
		}

		r := pipeline.NewRunner(cfg, st, sec)
		batches, runErr := r.Sync(ctx, sources)

		for _, b := range batches {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: fetched=%d normalized=%d persisted=%d\n",
				b.Source, b.Fetched, b.Normalized, b.Persisted)
		}
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
