package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

const unpctlVersion = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show unpctl's version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "unpctl version %s\n", unpctlVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
