package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/tlsrelay/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tlsrelay",
	Short: "tlsrelay - TLS terminating and re-originating TCP relay",
	Long: `tlsrelay accepts TCP connections, terminates TLS (optionally with client
certificate authentication), and relays the bytes to a downstream server over
a separate TLS connection with its own trust and key material.

When dynamic issuance is enabled, the relay mints a short-lived client
certificate for every upstream client, carrying the identity that client
proved, and presents it to the downstream server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a status derived from the
// returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
