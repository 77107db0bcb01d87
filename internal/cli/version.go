// internal/cli/version.go
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the version of v2vrelay, set at build time with -ldflags.
var Version = "unset"

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of v2vrelay",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "v2vrelay version %s\n", Version)
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}
