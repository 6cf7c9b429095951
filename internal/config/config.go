// Package config handles configuration loading, validation, and hot
// reload for the spe command-line tools.
package config

import "sync"

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete spe tool configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Signing configuration for Ed25519 proof-input signing.
	Signing SigningConfig `toml:"signing" json:"signing" yaml:"signing"`

	// Storage configuration for the ledger and bundle output.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Gate configuration for temporal gating defaults.
	Gate GateConfig `toml:"gate" json:"gate" yaml:"gate"`

	// Watch configuration for the CLI's --watch mode.
	Watch WatchConfig `toml:"watch" json:"watch" yaml:"watch"`

	// mu protects concurrent access to the config during hot reload.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// SigningConfig controls Ed25519 signing of proof-input manifests.
type SigningConfig struct {
	// Enabled marks signing as on; Validate then requires KeyPath. The
	// attest CLI signs whenever a key path is set, whatever this value.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// KeyPath is the path to a signing seed, raw private key, or
	// OpenSSH private key file, per internal/signer.
	KeyPath string `toml:"key_path" json:"key_path" yaml:"key_path"`

	// WellKnownPublicKeyPath, if set, is compared against a bundle's
	// attached public key to resolve ORIGIN_SPE at verify time.
	WellKnownPublicKeyPath string `toml:"well_known_public_key_path" json:"well_known_public_key_path" yaml:"well_known_public_key_path"`
}

// StorageConfig controls where the ledger and bundle output live.
type StorageConfig struct {
	// LedgerPath is the path to the SQLite ledger database. Relative
	// paths are resolved against the working directory of each run.
	LedgerPath string `toml:"ledger_path" json:"ledger_path" yaml:"ledger_path"`

	// OutputDir is the directory bundles are written to.
	OutputDir string `toml:"output_dir" json:"output_dir" yaml:"output_dir"`
}

// GateConfig controls default temporal-gating behavior.
type GateConfig struct {
	// Policy is the default policy_id ("strict" or "none").
	Policy string `toml:"policy" json:"policy" yaml:"policy"`

	// DefaultBoundary is a stored default t_target. The attest CLI does
	// not read it; --t_target must always be passed explicitly.
	DefaultBoundary int64 `toml:"default_boundary" json:"default_boundary" yaml:"default_boundary"`
}

// WatchConfig controls the CLI's --watch mode, which re-attests a file
// each time it changes.
type WatchConfig struct {
	// DebounceMs is the debounce interval in milliseconds. A file must
	// be stable for this duration before it is re-attested.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`

	// FollowSymlinks is loaded and saved with the configuration; the
	// --watch implementation does not read it.
	FollowSymlinks bool `toml:"follow_symlinks" json:"follow_symlinks" yaml:"follow_symlinks"`
}

// Clone returns a deep-enough copy of cfg for safe handoff between the
// reload goroutine and readers; the mutex itself is never copied live.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := &Config{
		Version: c.Version,
		Signing: c.Signing,
		Storage: c.Storage,
		Gate:    c.Gate,
		Watch:   c.Watch,
	}
	return clone
}
