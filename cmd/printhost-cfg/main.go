// Printhost-cfg reads and changes the settings of a running printhost server.
//
// It finds servers on the local network via zeroconf and talks to the
// settings API over HTTP with the admin API key.
//
// Usage:
//
//	printhost-cfg [command] [flags]
//
// See 'printhost-cfg --help' for available commands.
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
	Use:   "printhost-cfg",
	Short: "Printhost settings utility",
	Long: `A standalone utility for the printhost settings API.

Discover servers on the network, show their settings and change individual
values without editing the settings file by hand.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("printhost-cfg %s\n", version.Full())
	},
}
