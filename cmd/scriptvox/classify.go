package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newClassifyCmd checks the configured keyword sets against a sample reply
// without touching any provider.
func newClassifyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>...",
		Short: "Classify a reply with the configured keywords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			class, keyword := cfg.Classifier.Build().Match(strings.Join(args, " "))
			if keyword == "" {
				fmt.Fprintln(cmd.OutOrStdout(), class)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (matched %q)\n", class, keyword)
			return nil
		},
	}
}
