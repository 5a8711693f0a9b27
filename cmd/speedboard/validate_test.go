package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/speedboard/config"
)

// executeValidateCmd runs the validate command with the given config path
// and returns captured stdout and any error.
func executeValidateCmd(t *testing.T, configPath string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	defer rootCmd.SetOut(nil)
	defer rootCmd.SetErr(nil)

	rootCmd.SetArgs([]string{"validate", "-c", configPath})
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestRunValidate_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
port: 8080
engine:
  workers: 6
  timeout: 3s
endpoints:
  - id: westeurope
    url: https://example.com/cb.json
grids:
  - id: azure
    url_template: "https://speedtest{{.region}}.blob.core.windows.net/cb.json"
    dimensions:
      region: [we, ne]
outputs:
  - type: file
    path: samples.csv
`)

	output, err := executeValidateCmd(t, path)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Port:      8080",
		"Engine:    6 workers, 3s timeout, window 100",
		"1 direct + 2 from grids = 3 total",
		"Outputs:   1",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
endpoints:
  - id: ""
    url: https://example.com
`)

	_, err := executeValidateCmd(t, path)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "id is required") {
		t.Errorf("error should mention 'id is required', got: %v", err)
	}
}

func TestRunValidate_DuplicateIDAcrossGrid(t *testing.T) {
	path := writeConfig(t, `
endpoints:
  - id: azure-we
    url: https://example.com/cb.json
grids:
  - id: azure
    url_template: "https://{{.region}}.example.com/cb.json"
    dimensions:
      region: [we]
`)

	_, err := executeValidateCmd(t, path)
	if err == nil || !strings.Contains(err.Error(), `duplicate endpoint id "azure-we"`) {
		t.Errorf("validate command error = %v, want duplicate id", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeValidateCmd(t, "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

// overrideCmd builds a throwaway command so flag state does not leak
// between tests through rootCmd.
func overrideCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addOverrideFlags(cmd)
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cmd
}

func parsedConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
port: 8080
engine:
  workers: 4
  timeout: 5s
endpoints:
  - id: a
    url: https://example.com
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cfg
}

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		env         map[string]string
		wantPort    int
		wantWorkers int
		wantTimeout time.Duration
	}{
		{
			name:        "no overrides",
			wantPort:    8080,
			wantWorkers: 4,
			wantTimeout: 5 * time.Second,
		},
		{
			name:        "flags",
			args:        []string{"--port", "9090", "--workers", "8", "--timeout", "2s"},
			wantPort:    9090,
			wantWorkers: 8,
			wantTimeout: 2 * time.Second,
		},
		{
			name:        "env",
			env:         map[string]string{"SPEEDBOARD_PORT": "7070", "SPEEDBOARD_WORKERS": "2"},
			wantPort:    7070,
			wantWorkers: 2,
			wantTimeout: 5 * time.Second,
		},
		{
			name:        "flag beats env",
			args:        []string{"--port", "9999"},
			env:         map[string]string{"SPEEDBOARD_PORT": "7070"},
			wantPort:    9999,
			wantWorkers: 4,
			wantTimeout: 5 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			v, err := newViper(overrideCmd(t, tt.args...))
			if err != nil {
				t.Fatalf("newViper() error = %v", err)
			}

			cfg := parsedConfig(t)
			if err := applyOverrides(cfg, v); err != nil {
				t.Fatalf("applyOverrides() error = %v", err)
			}

			if cfg.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cfg.Port, tt.wantPort)
			}
			if cfg.Engine.Workers != tt.wantWorkers {
				t.Errorf("Workers = %d, want %d", cfg.Engine.Workers, tt.wantWorkers)
			}
			if cfg.Engine.Timeout.Duration() != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", cfg.Engine.Timeout.Duration(), tt.wantTimeout)
			}
		})
	}
}

func TestApplyOverrides_Invalid(t *testing.T) {
	v, err := newViper(overrideCmd(t, "--workers", "-1"))
	if err != nil {
		t.Fatalf("newViper() error = %v", err)
	}

	if err := applyOverrides(parsedConfig(t), v); err == nil {
		t.Error("applyOverrides() expected error for negative workers")
	}
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "INFO"} {
		if _, err := newLogger(level); err != nil {
			t.Errorf("newLogger(%q) error = %v", level, err)
		}
	}
	if _, err := newLogger("loud"); err == nil {
		t.Error("newLogger(loud) expected error")
	}
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)

	rootCmd.SetArgs([]string{"version"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "speedboard dev") {
		t.Errorf("output = %q", buf.String())
	}
}
