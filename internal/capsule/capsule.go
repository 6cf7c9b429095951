// Package capsule implements the ForensicCapsule, the immutable attestation
// record that binds an output hash, its context Merkle root, and the
// certifying model's identity into one hashable, ledger-anchored object.
package capsule

import (
	"errors"
	"fmt"
	"strings"

	"spe/internal/canon"
	"spe/internal/hasher"
)

// Capsule is the attestation record described in spec §4.6. Required
// fields must be non-empty; optional fields are omitted from canonical
// bytes when unset, per the canonicalizer's null-omission rule.
type Capsule struct {
	// Required
	TRun              int64  `json:"t_run"`
	TTarget           int64  `json:"t_target"`
	GatePolicyID      string `json:"gate_policy_id"`
	ModelID           string `json:"model_id"`
	HashPrompt        string `json:"hash_prompt"`
	OutputHash        string `json:"output_hash"`
	ContextMerkleRoot string `json:"context_merkle_root"`

	// Optional
	ArtifactType           string `json:"artifact_type,omitempty"`
	Mode                   string `json:"mode,omitempty"`
	HashAlg                string `json:"hash_alg,omitempty"`
	SnapshotHash           string `json:"snapshot_hash,omitempty"`
	NormalizationParamsID  string `json:"normalization_params_id,omitempty"`
	ProofInput             map[string]any `json:"proof_input,omitempty"`
	ProofInputHash         string `json:"proof_input_hash,omitempty"`
}

var ErrMissingField = errors.New("capsule: required field is empty")

// Validate checks the required-field invariants from spec §3/§4.6.
func (c Capsule) Validate() error {
	if c.GatePolicyID == "" || c.ModelID == "" || c.HashPrompt == "" ||
		c.OutputHash == "" || c.ContextMerkleRoot == "" {
		return ErrMissingField
	}
	return nil
}

// StripHashPrefix removes an "alg:" prefix such as "sha256:" from a hash
// string, returning the raw hex. Canonicalization always uses the raw
// form, per spec §3: "canonicalization uses the raw hex in capsule bytes".
func StripHashPrefix(h string) string {
	if idx := strings.IndexByte(h, ':'); idx >= 0 {
		return h[idx+1:]
	}
	return h
}

// canonicalMap builds the sorted-key mapping used for hashing. Optional
// fields with zero values are simply absent from the map, which the
// canonicalizer's null-omission rule also honors for any explicit nils.
func (c Capsule) canonicalMap() map[string]any {
	m := map[string]any{
		"t_run":               c.TRun,
		"t_target":            c.TTarget,
		"gate_policy_id":      c.GatePolicyID,
		"model_id":            c.ModelID,
		"hash_prompt":         c.HashPrompt,
		"output_hash":         StripHashPrefix(c.OutputHash),
		"context_merkle_root": c.ContextMerkleRoot,
	}
	if c.ArtifactType != "" {
		m["artifact_type"] = c.ArtifactType
	}
	if c.Mode != "" {
		m["mode"] = c.Mode
	}
	if c.HashAlg != "" {
		m["hash_alg"] = c.HashAlg
	}
	if c.SnapshotHash != "" {
		m["snapshot_hash"] = c.SnapshotHash
	}
	if c.NormalizationParamsID != "" {
		m["normalization_params_id"] = c.NormalizationParamsID
	}
	if c.ProofInput != nil {
		m["proof_input"] = toAnyMap(c.ProofInput)
	}
	if c.ProofInputHash != "" {
		m["proof_input_hash"] = c.ProofInputHash
	}
	return m
}

func toAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CanonicalBytes returns the deterministic encoding used for hashing, per
// spec §4.6: "the capsule hash is SHA-256(canonical_bytes)".
func (c Capsule) CanonicalBytes() ([]byte, error) {
	b, err := canon.Bytes(c.canonicalMap())
	if err != nil {
		return nil, fmt.Errorf("capsule: canonicalize: %w", err)
	}
	return b, nil
}

// Hash returns the lower-case hex SHA-256 of the capsule's canonical
// bytes — the stable identifier the ledger references.
func (c Capsule) Hash() (string, error) {
	b, err := c.CanonicalBytes()
	if err != nil {
		return "", err
	}
	return hasher.SumHex(b), nil
}
