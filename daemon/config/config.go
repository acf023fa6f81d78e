// Package config holds the daemon's process-level configuration (listen addresses, storage
// paths, runtime tuning) as distinct from Settings, the user-facing, persisted transfer
// preferences managed by daemon/store.
package config

import (
	"os"
	"path/filepath"
)

// Config holds daemon configuration.
type Config struct {
	ListenAddress   string
	DiscoveryPort   int
	DataDirectory   string
	DownloadsDir    string
	DBPath          string
	EventBufferSize int
	WorkerCount     int
}

// DefaultConfig returns default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local", "share", "airdock")

	return &Config{
		ListenAddress:   "0.0.0.0:42420",
		DiscoveryPort:   42421,
		DataDirectory:   dataDir,
		DownloadsDir:    filepath.Join(homeDir, "Downloads", "Airdock"),
		DBPath:          filepath.Join(dataDir, "airdock.db"),
		EventBufferSize: 256,
		WorkerCount:     8,
	}
}

// LoadConfig loads configuration from a file path (simplified - just returns defaults with
// DataDirectory-derived paths ensured to exist).
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if err := os.MkdirAll(cfg.DataDirectory, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DownloadsDir, 0o755); err != nil {
		return nil, err
	}
	return cfg, nil
}
