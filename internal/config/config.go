// Package config loads the psexplorer run configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/psexplorer/internal/diagram"
)

// EnvDatabase overrides the database path when set.
const EnvDatabase = "PSEXPLORER_DB"

// Solver backends.
const (
	BackendProcess   = "process"
	BackendSynthetic = "synthetic"
)

// Config is the full run configuration.
type Config struct {
	Workdir   string    `yaml:"workdir"`
	Boundary  string    `yaml:"boundary"` // Boundary export file, relative to Workdir
	Database  string    `yaml:"database"`
	Solver    Solver    `yaml:"solver"`
	Grid      Grid      `yaml:"grid"`
	Isopleths Isopleths `yaml:"isopleths"`
	Logging   Logging   `yaml:"logging"`
	API       API       `yaml:"api"`
}

// Solver selects and configures the equilibrium solver.
type Solver struct {
	Backend string   `yaml:"backend"`
	Command []string `yaml:"command"`
	Script  string   `yaml:"script"` // File holding the guess block
	Log     string   `yaml:"log"`    // Log file written by the solver
	Seed    int64    `yaml:"seed"`   // Synthetic backend only
}

// Grid is the default lattice size.
type Grid struct {
	NumT int `yaml:"num_t"`
	NumP int `yaml:"num_p"`
}

// Isopleths holds interpolation defaults.
type Isopleths struct {
	Refine  int       `yaml:"refine"`
	Smooth  float64   `yaml:"smooth"`
	Levels  int       `yaml:"levels"`
	Step    float64   `yaml:"step"`
	Sources string    `yaml:"sources"`
	Values  []float64 `yaml:"values"` // Explicit contour values
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// API configures the read-only HTTP server.
type API struct {
	Port int `yaml:"port"`
}

// Default returns a configuration running the synthetic solver.
func Default() Config {
	return Config{
		Workdir:  ".",
		Database: "psexplorer.db",
		Solver: Solver{
			Backend: BackendSynthetic,
			Log:     "tc-log.json",
			Seed:    42,
		},
		Grid:      Grid{NumT: 51, NumP: 51},
		Isopleths: Isopleths{Refine: 1, Levels: 10, Sources: "all"},
		Logging:   Logging{Level: "info", Format: "text"},
		API:       API{Port: 8080},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		case len(bytes.TrimSpace(data)) > 0:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}
	if db := os.Getenv(EnvDatabase); db != "" {
		cfg.Database = db
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no run can use.
func (c Config) Validate() error {
	switch c.Solver.Backend {
	case BackendSynthetic:
	case BackendProcess:
		if len(c.Solver.Command) == 0 {
			return fmt.Errorf("config: solver.command is required for the %s backend", BackendProcess)
		}
		if c.Boundary == "" {
			return fmt.Errorf("config: boundary is required for the %s backend", BackendProcess)
		}
	default:
		return fmt.Errorf("config: unknown solver backend %q", c.Solver.Backend)
	}
	if c.Grid.NumT <= 0 || c.Grid.NumP <= 0 {
		return fmt.Errorf("config: grid must be positive, got %dx%d", c.Grid.NumT, c.Grid.NumP)
	}
	if c.Isopleths.Refine < 1 {
		return fmt.Errorf("config: isopleths.refine must be at least 1")
	}
	if _, err := diagram.ParseSources(c.Isopleths.Sources); err != nil {
		return fmt.Errorf("config: isopleths.sources %q: %w", c.Isopleths.Sources, err)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config: unknown logging format %q", c.Logging.Format)
	}
	return nil
}

// Path resolves name relative to the work directory.
func (c Config) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Workdir, name)
}
