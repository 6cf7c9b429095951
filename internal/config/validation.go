package config

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownGatePolicy  = errors.New("config: gate.policy must be \"strict\" or \"none\"")
	ErrMissingLedgerPath  = errors.New("config: storage.ledger_path must not be empty")
	ErrMissingOutputDir   = errors.New("config: storage.output_dir must not be empty")
	ErrSigningKeyRequired = errors.New("config: signing.key_path is required when signing.enabled is true")
)

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Gate.Policy {
	case "strict", "none", "":
	default:
		return ErrUnknownGatePolicy
	}

	if c.Storage.LedgerPath == "" {
		return ErrMissingLedgerPath
	}
	if c.Storage.OutputDir == "" {
		return ErrMissingOutputDir
	}

	if c.Signing.Enabled && c.Signing.KeyPath == "" {
		return ErrSigningKeyRequired
	}

	if c.Watch.DebounceMs < 0 {
		return fmt.Errorf("config: watch.debounce_ms must be non-negative, got %d", c.Watch.DebounceMs)
	}

	return nil
}
