package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Storage backends of the terminal client.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// ClientConfig configures the terminal client.
type ClientConfig struct {
	ServerURL string `toml:"server_url"`
	DataDir   string `toml:"data_dir"`
	Storage   string `toml:"storage"`
	LogLevel  string `toml:"log_level"`
	// Minimum time the bot appears to type, in milliseconds
	TypingDelayMS int `toml:"typing_delay_ms"`
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL:     "http://localhost:8080",
		DataDir:       filepath.Join(clientDir(), "data"),
		Storage:       StorageFile,
		LogLevel:      "info",
		TypingDelayMS: 800,
	}
}

// ClientConfigPath is $XDG_CONFIG_HOME/intake-chat/config.toml or the
// platform equivalent.
func ClientConfigPath() string {
	return filepath.Join(clientDir(), "config.toml")
}

func clientDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "intake-chat")
}

// LoadClientConfig reads path over the defaults. A missing file is not an
// error.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if path == "" {
		path = ClientConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ClientConfig) Validate() error {
	switch c.Storage {
	case StorageFile, StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("unknown storage %q (want file, sqlite or memory)", c.Storage)
	}
	if c.ServerURL == "" {
		return fmt.Errorf("server_url must not be empty")
	}
	if c.TypingDelayMS < 0 {
		return fmt.Errorf("typing_delay_ms must not be negative")
	}
	return nil
}

// SaveClientConfig writes cfg to path with owner-only permissions.
func SaveClientConfig(cfg *ClientConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create client config file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode client config: %w", err)
	}
	return nil
}
