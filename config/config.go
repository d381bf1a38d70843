// Package config handles periscope.toml host configuration: the
// registry of worker runtimes and the optional call-trace settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents a periscope.toml file.
type Config struct {
	Runtimes map[string]Runtime `toml:"runtime"`
	Trace    Trace              `toml:"trace"`

	// Dir is the directory containing the periscope.toml file (set at
	// load time).
	Dir string `toml:"-"`
}

// Runtime describes one worker executable identity the host may
// analyze against.
type Runtime struct {
	Exec        string   `toml:"exec"`
	Args        []string `toml:"args"`
	SupportRoot string   `toml:"support-root"`
	SearchPaths []string `toml:"search-paths"`
	Env         []string `toml:"env"`
}

// Trace configures the call recorder.
type Trace struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load parses a periscope.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "periscope.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if c.Runtimes == nil {
		c.Runtimes = map[string]Runtime{}
	}
	if c.Trace.Path == "" {
		c.Trace.Path = filepath.Join(c.Dir, "periscope-trace.db")
	}
	for name, rt := range c.Runtimes {
		if rt.Exec == "" {
			return nil, fmt.Errorf("%s: runtime %q has no exec", path, name)
		}
	}

	return &c, nil
}

// FindAndLoad walks up from startDir to find a periscope.toml file,
// then loads and returns the config. Returns nil if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", startDir, err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "periscope.toml")); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Runtime returns the named runtime entry.
func (c *Config) Runtime(name string) (Runtime, error) {
	rt, ok := c.Runtimes[name]
	if !ok {
		return Runtime{}, fmt.Errorf("config: no runtime %q in %s", name, c.Dir)
	}
	return rt, nil
}
