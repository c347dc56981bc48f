package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "psexplorer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
workdir: /data/run1
boundary: boundary.yaml
solver:
  backend: process
  command: [tc350, -quiet]
  script: tc-script.txt
grid:
  num_t: 31
  num_p: 21
isopleths:
  refine: 3
  values: [0.1, 0.2]
  sources: grid,curve
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, BackendProcess, cfg.Solver.Backend)
	require.Equal(t, []string{"tc350", "-quiet"}, cfg.Solver.Command)
	require.Equal(t, "tc-log.json", cfg.Solver.Log, "unset keys keep their default")
	require.Equal(t, Grid{NumT: 31, NumP: 21}, cfg.Grid)
	require.Equal(t, 3, cfg.Isopleths.Refine)
	require.Equal(t, 10, cfg.Isopleths.Levels)
	require.Equal(t, []float64{0.1, 0.2}, cfg.Isopleths.Values)
	require.Equal(t, 8080, cfg.API.Port)
	require.Equal(t, "/data/run1/boundary.yaml", cfg.Path(cfg.Boundary))
	require.Equal(t, "/abs/db", cfg.Path("/abs/db"))
}

func TestLoad_EnvDatabase(t *testing.T) {
	t.Setenv(EnvDatabase, "/tmp/other.db")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "/tmp/other.db", cfg.Database)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Solver.Backend = "magic" }, "unknown solver backend"},
		{"process without command", func(c *Config) { c.Solver.Backend = BackendProcess; c.Boundary = "b.yaml" }, "solver.command"},
		{"process without boundary", func(c *Config) {
			c.Solver.Backend = BackendProcess
			c.Solver.Command = []string{"tc"}
		}, "boundary is required"},
		{"empty grid", func(c *Config) { c.Grid.NumP = 0 }, "grid must be positive"},
		{"refine", func(c *Config) { c.Isopleths.Refine = 0 }, "refine"},
		{"sources", func(c *Config) { c.Isopleths.Sources = "mesh" }, "sources"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
	require.NoError(t, Default().Validate())
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "grid: [1, 2\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "grid:\n  num_t: -1\n"))
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(Logging{Level: "warn", Format: "json"}, &buf)
	log.Info("hidden")
	log.Warn("shown", "k", 1)

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.True(t, strings.HasPrefix(out, "{"))
	require.Contains(t, out, `"msg":"shown"`)

	buf.Reset()
	NewLogger(Logging{}, &buf).Debug("quiet")
	require.Empty(t, buf.String())
}
