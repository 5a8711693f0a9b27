package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpalmerr/speedboard/config"
)

const envPrefix = "SPEEDBOARD"

// Override keys. Each is a flag name and, upper-cased with the prefix, an
// environment variable (SPEEDBOARD_PORT, SPEEDBOARD_LOG_LEVEL).
const (
	keyPort     = "port"
	keyWorkers  = "workers"
	keyTimeout  = "timeout"
	keyLogLevel = "log-level"
)

// addOverrideFlags registers the flags that take precedence over the
// config file.
func addOverrideFlags(cmd *cobra.Command) {
	cmd.Flags().Int(keyPort, 0, "HTTP port (overrides config)")
	cmd.Flags().Int(keyWorkers, 0, "number of probe workers (overrides config)")
	cmd.Flags().Duration(keyTimeout, 0, "per-probe timeout (overrides config)")
	cmd.Flags().String(keyLogLevel, "info", "log level: debug, info, warn, error")
}

// newViper binds cmd's override flags and SPEEDBOARD_* environment
// variables. Flags win over the environment.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, key := range []string{keyPort, keyWorkers, keyTimeout, keyLogLevel} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", key, err)
		}
	}
	return v, nil
}

// applyOverrides copies explicitly set flag or environment values onto cfg
// and revalidates it.
func applyOverrides(cfg *config.Config, v *viper.Viper) error {
	if v.IsSet(keyPort) {
		cfg.Port = v.GetInt(keyPort)
	}
	if v.IsSet(keyWorkers) {
		cfg.Engine.Workers = v.GetInt(keyWorkers)
	}
	if v.IsSet(keyTimeout) {
		cfg.Engine.Timeout = config.Duration(v.GetDuration(keyTimeout))
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid override: %w", err)
	}
	return nil
}

// newLogger creates a JSON logger for CLI use at the requested level.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}

// engineSummary is the one-line engine description shared by serve and validate.
func engineSummary(cfg *config.Config) string {
	e := cfg.Engine
	return fmt.Sprintf("%d workers, %s timeout, window %d", e.Workers, e.Timeout.Duration(), e.WindowSize)
}
