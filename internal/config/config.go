package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds CLI configuration.
type Config struct {
	DataDir        string `json:"data_dir"`
	DBPath         string `json:"db_path"`
	LensPageSize   int    `json:"lens_page_size"`
	ShowLineNumber bool   `json:"show_line_numbers"`
}

// DefaultDataDir returns the default data directory (~/.narrative).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".narrative")
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:        dataDir,
		DBPath:         filepath.Join(dataDir, "narrative.db"),
		LensPageSize:   200,
		ShowLineNumber: true,
	}
}

// Load reads configuration from a JSON file, falling back to defaults
// for any unset fields.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file is fine, use defaults.
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Re-derive the DB path if DataDir was overridden but DBPath was not.
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "narrative.db")
	}
	if cfg.LensPageSize <= 0 {
		cfg.LensPageSize = 200
	}

	return cfg, nil
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// ConfigPath returns the default path to the config file.
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}
