// internal/cli/root.go
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "v2vrelay",
	Short: "V2V safety message relay",
	Long: `v2vrelay relays messages between connected vehicles.

Every message a vehicle sends over its WebSocket is forwarded to all other
connected vehicles, stamped with the sender's assigned name (Vehicle A,
Vehicle B, ...). Joins and leaves are announced to the rest of the network.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./relay.yaml or $HOME/.config/v2vrelay/relay.yaml)")
}
