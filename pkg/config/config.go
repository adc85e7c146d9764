// Package config loads the daemon's TOML configuration file. Missing
// files fall back to defaults so `conduit serve` works out of the box.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the daemon configuration.
type Config struct {
	// Listen is the HTTP listen address for the SSE/API server.
	Listen string `toml:"listen"`
	// DataDir holds the database and other runtime state.
	DataDir string `toml:"data_dir"`
	// DBPath overrides the default <data_dir>/conduit.db location.
	DBPath string `toml:"db_path"`
	// ClaudeCommand overrides the default agent CLI invocation.
	ClaudeCommand string `toml:"claude_command"`
}

// DefaultPath is the config location relative to the user home directory.
const DefaultPath = ".conduit/config.toml"

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Listen:  "127.0.0.1:8617",
		DataDir: filepath.Join(home, ".conduit"),
	}
}

// Load reads the config at path, applying defaults for unset fields. A
// missing file returns pure defaults; a malformed file is an error. An
// empty path means the default location.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, DefaultPath)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ResolveDBPath returns the effective database path.
func (c Config) ResolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "conduit.db")
}
