package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/contacts-cli/internal/pipeline"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List duplicate candidates for human review",
	Long:  "Scans stored records for pairs that fuzzy-match above the configured similarity threshold but were not merged automatically.",
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

		r := pipeline.NewRunner(cfg, st, sec)
		candidates, err := r.ReviewCandidates(ctx)
		if err != nil {
			return err
		}

		for _, c := range candidates {
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f  %s (%s, %s) ~ %s (%s, %s)\n",
				c.Similarity,
				c.A.Name, c.A.Organization, c.A.Source,
				c.B.Name, c.B.Organization, c.B.Source)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d candidate pair(s)\n", len(candidates))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}
