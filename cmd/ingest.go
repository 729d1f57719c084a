package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contacts-cli/internal/pipeline"
)

var ingestOutput string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest contact files into line-delimited JSON",
	Long:  "Streams CSV, TSV, JSON, NDJSON, or XLSX contact files to a line-delimited JSON output, registering each file as a source.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ingest"); err != nil {
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

		var out io.Writer = os.Stdout
		if ingestOutput != "" && ingestOutput != "-" {
			f, err := os.Create(ingestOutput)
			if err != nil {
				return eris.Wrap(err, "create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		r := pipeline.NewRunner(cfg, st, sec)
		count, err := r.Ingest(ctx, out, args)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "ingested %d payloads from %d file(s)\n", count, len(args))
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestOutput, "output", "o", "", "output path for line-delimited JSON (default stdout)")
	rootCmd.AddCommand(ingestCmd)
}
