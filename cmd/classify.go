package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sells-group/contacts-cli/internal/email"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <address>...",
	Short: "Classify email addresses",
	Long:  "Prints the structural validity, role-based, and bot-like classification for each address as JSON.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, addr := range args {
			res := email.Validate(addr)
			if err := enc.Encode(map[string]any{
				"address": addr,
				"result":  res,
			}); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
