// Package commands implements the slptool CLI commands.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// scopeList is the comma-separated scope list attached to outbound requests.
	scopeList string

	// requestTimeout bounds how long a command waits collecting multicast
	// replies before giving up.
	requestTimeout time.Duration

	// daAddr is the unicast address of a Directory Agent, required by
	// register and deregister.
	daAddr string
)

// rootCmd is the top-level cobra command for slptool.
var rootCmd = &cobra.Command{
	Use:   "slptool",
	Short: "CLI client for Service Location Protocol v2 agents",
	Long:  "slptool issues SLPv2 discovery, attribute, and registration requests directly over the network, without talking to a local daemon.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")
	rootCmd.PersistentFlags().StringVar(&scopeList, "scope", "default",
		"comma-separated scope list")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 3*time.Second,
		"how long to wait collecting replies")
	rootCmd.PersistentFlags().StringVar(&daAddr, "da", "",
		"Directory Agent address (host:port), required for register/deregister")

	rootCmd.AddCommand(findSrvsCmd())
	rootCmd.AddCommand(findAttrsCmd())
	rootCmd.AddCommand(findSrvTypesCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(deregisterCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
