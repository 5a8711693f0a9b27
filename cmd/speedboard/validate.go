package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/speedboard/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a SpeedBoard configuration file without starting the server.

This command parses the YAML, expands environment variables, applies
overrides, and validates all fields including grid expansion. It's useful
for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  speedboard validate -c config.yaml
  speedboard validate --config /etc/speedboard/config.yaml --workers 8`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
	addOverrideFlags(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := applyOverrides(cfg, v); err != nil {
		return err
	}

	// expand grids so template and id errors surface here
	endpoints, err := config.BuildEndpoints(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := make(map[string]struct{}, len(endpoints))
	for _, ep := range endpoints {
		if _, dup := seen[ep.ID()]; dup {
			return fmt.Errorf("invalid config: duplicate endpoint id %q", ep.ID())
		}
		seen[ep.ID()] = struct{}{}
	}

	direct := len(cfg.Endpoints)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Port:      %d\n", cfg.Port)
	fmt.Fprintf(out, "  Engine:    %s\n", engineSummary(cfg))
	fmt.Fprintf(out, "  Endpoints: %d direct + %d from grids = %d total\n",
		direct, len(endpoints)-direct, len(endpoints))
	fmt.Fprintf(out, "  Outputs:   %d\n", len(cfg.Outputs))

	return nil
}
