package config

import (
	"os"
	"path/filepath"
)

// DefaultConfig returns the baseline configuration used when no config
// file is present.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Signing: SigningConfig{
			Enabled: false,
		},
		Storage: StorageConfig{
			LedgerPath: "ledger.sqlite",
			OutputDir:  ".",
		},
		Gate: GateConfig{
			Policy: "strict",
		},
		Watch: WatchConfig{
			DebounceMs:     250,
			FollowSymlinks: false,
		},
	}
}

// ConfigPath returns the default configuration file location, honoring
// XDG_CONFIG_HOME when set.
func ConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "spe", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "spe-config.toml"
	}
	return filepath.Join(home, ".config", "spe", "config.toml")
}

// ApplyEnvOverrides applies SPE_-prefixed environment variable overrides
// on top of whatever was loaded from a config file.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("SPE_SIGNING_KEY_PATH"); v != "" {
		c.Signing.KeyPath = v
		c.Signing.Enabled = true
	}
	if v := os.Getenv("SPE_LEDGER_PATH"); v != "" {
		c.Storage.LedgerPath = v
	}
	if v := os.Getenv("SPE_OUTPUT_DIR"); v != "" {
		c.Storage.OutputDir = v
	}
	if v := os.Getenv("SPE_GATE_POLICY"); v != "" {
		c.Gate.Policy = v
	}
}
