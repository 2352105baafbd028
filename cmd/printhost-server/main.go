// Printhost-server serves the printhost settings API.
//
// It loads the settings file from the base directory, makes sure an API key
// exists, and serves GET/POST /api/settings together with the event push
// socket and Prometheus metrics.
//
// Usage:
//
//	printhost-server server [flags]
//
// See 'printhost-server server --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/printhost/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "printhost-server",
	Short: "Printhost settings server",
	Long: `A standalone server for the printhost settings API.

Settings are read from a YAML, TOML or JSON file in the base directory and
written back whenever the API changes them. Clients authenticate with the
API key stored as api.key; a key is generated on first start.

For reading and changing settings from the command line, use the separate
'printhost-cfg' utility.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("printhost-server %s\n", version.Full())
	},
}
