// Package proofinput implements the ProofInputManifest from spec §4.8: an
// open key/value metadata record whose canonical form always excludes its
// own signature block, so signing never has to sign itself.
package proofinput

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"spe/internal/canon"
	"spe/internal/hasher"
	"spe/internal/signer"
)

// SignatureBlock is the fixed-shape signature attached to a manifest, per
// spec §3.
type SignatureBlock struct {
	Algorithm      string `json:"algorithm"`
	PublicKey      string `json:"public_key"`
	SignatureValue string `json:"signature_value"`
}

// Manifest is an open map of scalar metadata plus an optional attached
// signature. The "signature" key, if present in Fields, is ignored by
// canonicalization — SignatureBlock is carried separately so callers
// cannot accidentally leak it into the signed bytes.
type Manifest struct {
	Fields    map[string]any
	Signature *SignatureBlock
}

var (
	ErrNoSignature  = errors.New("proofinput: manifest has no signature block")
	ErrKeyMismatch  = errors.New("proofinput: signature public key does not match expected key")
	ErrBadAlgorithm = errors.New("proofinput: unsupported signature algorithm")
)

// canonicalMap strips any "signature" key the caller may have stuffed
// into Fields directly, per spec §4.8.
func (m Manifest) canonicalMap() map[string]any {
	out := make(map[string]any, len(m.Fields))
	for k, v := range m.Fields {
		if k == "signature" {
			continue
		}
		out[k] = v
	}
	return out
}

// CanonicalBytes returns the deterministic encoding used for hashing and
// signing, always excluding the signature field.
func (m Manifest) CanonicalBytes() ([]byte, error) {
	b, err := canon.Bytes(m.canonicalMap())
	if err != nil {
		return nil, fmt.Errorf("proofinput: canonicalize: %w", err)
	}
	return b, nil
}

// Hash returns SHA-256(canonical_bytes_without_signature), per spec §4.8.
func (m Manifest) Hash() (string, error) {
	b, err := m.CanonicalBytes()
	if err != nil {
		return "", err
	}
	return hasher.SumHex(b), nil
}

// Sign computes the canonical bytes, signs them with seed, and returns a
// new Manifest with the signature block attached. The receiver's Fields
// are not mutated.
func (m Manifest) Sign(seed ed25519.PrivateKey) (Manifest, error) {
	b, err := m.CanonicalBytes()
	if err != nil {
		return Manifest{}, err
	}
	sig := signer.Sign(seed, b)
	signed := Manifest{
		Fields: m.Fields,
		Signature: &SignatureBlock{
			Algorithm:      signer.Algorithm,
			PublicKey:      signer.EncodeKey(signer.PublicKeyOf(seed)),
			SignatureValue: signer.EncodeKey(sig),
		},
	}
	return signed, nil
}

// Verify checks the attached signature against the manifest's canonical
// bytes. If expectedPubKeyB64 is non-empty, the attached public key must
// also match it exactly. Returns signer.Unknown if no signature is
// attached, per spec §4.3/§4.9.
func (m Manifest) Verify(expectedPubKeyB64 string) (signer.Verdict, error) {
	if m.Signature == nil {
		return signer.Unknown, nil
	}
	if m.Signature.Algorithm != signer.Algorithm {
		return signer.Invalid, ErrBadAlgorithm
	}
	if expectedPubKeyB64 != "" && m.Signature.PublicKey != expectedPubKeyB64 {
		return signer.Invalid, ErrKeyMismatch
	}

	pubKey, err := signer.DecodePublicKey(m.Signature.PublicKey)
	if err != nil {
		return signer.Invalid, err
	}
	sig, err := signer.DecodeSignature(m.Signature.SignatureValue)
	if err != nil {
		return signer.Invalid, err
	}

	b, err := m.CanonicalBytes()
	if err != nil {
		return signer.Invalid, err
	}
	return signer.Verify(pubKey, b, sig), nil
}
