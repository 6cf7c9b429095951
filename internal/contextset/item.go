// Package contextset implements the context-set attestation pipeline:
// ContextItem records, temporal gating, canonicalization, and the Merkle
// root that certifies exactly which documents were available at
// attestation time.
package contextset

import (
	"errors"
	"fmt"

	"spe/internal/canon"
)

// Item describes one document available to a generator at attestation
// time, per spec §3. All four fields are required.
type Item struct {
	DocID       string `json:"doc_id"`
	ContentHash string `json:"content_hash"` // hex SHA-256, 64 chars, lower-case
	Timestamp   int64  `json:"timestamp"`     // Unix seconds, >= 0
	SourceID    string `json:"source_id"`
}

var (
	ErrMissingField   = errors.New("contextset: required field is empty")
	ErrBadContentHash = errors.New("contextset: content_hash must be 64 lower-case hex characters")
	ErrNegativeTime   = errors.New("contextset: timestamp must be non-negative")
)

// Validate checks the invariants from spec §3: all fields present,
// content_hash is 64 lower-case hex characters, timestamp is non-negative.
func (it Item) Validate() error {
	if it.DocID == "" || it.ContentHash == "" || it.SourceID == "" {
		return ErrMissingField
	}
	if len(it.ContentHash) != 64 {
		return ErrBadContentHash
	}
	for _, r := range it.ContentHash {
		isHex := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
		if !isHex {
			return ErrBadContentHash
		}
	}
	if it.Timestamp < 0 {
		return ErrNegativeTime
	}
	return nil
}

// canonicalMap produces the fixed-field mapping used for both hashing
// (the Merkle leaf) and any other canonical representation of an item.
// Sorted-key canonicalization fixes the emitted field order.
func (it Item) canonicalMap() map[string]any {
	return map[string]any{
		"doc_id":       it.DocID,
		"content_hash": it.ContentHash,
		"timestamp":    it.Timestamp,
		"source_id":    it.SourceID,
	}
}

// CanonicalBytes returns the deterministic canonical encoding of the item,
// used as the Merkle leaf's preimage.
func (it Item) CanonicalBytes() ([]byte, error) {
	b, err := canon.Bytes(it.canonicalMap())
	if err != nil {
		return nil, fmt.Errorf("contextset: canonicalize item %q: %w", it.DocID, err)
	}
	return b, nil
}
