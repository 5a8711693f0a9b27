// Package main is the entry point for the speedboard CLI.
//
// SpeedBoard can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	speedboard serve -c config.yaml    # Start probing and the dashboard
//	speedboard validate -c config.yaml # Validate configuration
//	speedboard version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "speedboard",
	Short: "Live latency ranking for regional endpoints",
	Long: `SpeedBoard measures HTTP round-trip latency from this machine to a set
of regional endpoints and ranks them live.

Endpoints that time out are moved to a blocklist until retried from the
dashboard or the API.

Quick start:
  1. Create a config file (speedboard.yaml)
  2. Run: speedboard serve -c speedboard.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  engine:
    workers: 4
    timeout: 5s
  endpoints:
    - id: westeurope
      name: West Europe
      url: https://speedtestwe.blob.core.windows.net/cb.json`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this speedboard binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "speedboard %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
