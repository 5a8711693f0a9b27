package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/speedboard"
	"github.com/jpalmerr/speedboard/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts probing and the dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start probing and the dashboard server",
	Long: `Start the SpeedBoard engine and dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Apply --port, --workers and --timeout (or SPEEDBOARD_* env) overrides
  - Continuously probe all configured endpoints
  - Serve the dashboard UI, REST API and /metrics on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  speedboard serve -c config.yaml
  SPEEDBOARD_WORKERS=8 speedboard serve -c config.yaml --port 9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
	addOverrideFlags(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(v.GetString(keyLogLevel))
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyOverrides(cfg, v); err != nil {
		return err
	}

	logger.Info("config loaded",
		"endpoints", len(cfg.Endpoints),
		"grids", len(cfg.Grids),
		"outputs", len(cfg.Outputs),
		"engine", engineSummary(cfg),
	)

	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("failed to build endpoints: %w", err)
	}

	sb, err := speedboard.New(append(opts, speedboard.WithLogger(logger))...)
	if err != nil {
		return fmt.Errorf("failed to create SpeedBoard: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runUntilDone(ctx, sb, logger.Info, logger.Warn)
}

// runUntilDone starts sb and waits for it to return, bounding the shutdown
// wait once ctx is cancelled.
func runUntilDone(ctx context.Context, sb *speedboard.SpeedBoard, info, warn func(string, ...any)) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- sb.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
