// Package signer handles Ed25519 signing and verification over canonical
// proof-input bytes, plus Base64 encoding helpers for keys and signatures.
//
// Key loading is adapted from the teacher daemon's key-loading conventions:
// a raw 32-byte seed, a raw 64-byte private key, or an OpenSSH-format key
// file are all accepted. Private-key storage and rotation are out of
// scope — this package only loads a seed or key opaquely from a path the
// caller supplies.
package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// Verdict is the outcome of a signature check.
type Verdict string

const (
	Valid   Verdict = "VALID"
	Invalid Verdict = "INVALID"
	Unknown Verdict = "UNKNOWN"
)

// Algorithm is the single fixed signing algorithm identifier carried in a
// SignatureBlock, per spec §3.
const Algorithm = "ed25519"

var (
	ErrInvalidKeyFormat = errors.New("signer: invalid key format")
	ErrUnsupportedKey   = errors.New("signer: unsupported key type (expected Ed25519)")
	ErrKeyDecryption    = errors.New("signer: key is encrypted (passphrase required)")
	ErrBadKeySize       = errors.New("signer: key decodes to the wrong size")
	ErrBadSignatureSize = errors.New("signer: signature decodes to the wrong size")
)

// LoadSeed reads an Ed25519 signing seed from path. Supports a raw 32-byte
// seed, a raw 64-byte private key, or an OpenSSH private key file.
func LoadSeed(path string) (ed25519.PrivateKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	if len(keyData) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(keyData), nil
	}
	if len(keyData) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(keyData), nil
	}
	return parseOpenSSHKey(keyData)
}

func parseOpenSSHKey(keyData []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, ErrInvalidKeyFormat
	}

	parsedKey, err := ssh.ParseRawPrivateKey(keyData)
	if err != nil {
		if _, ok := err.(*ssh.PassphraseMissingError); ok {
			return nil, ErrKeyDecryption
		}
		return nil, fmt.Errorf("parse key: %w", err)
	}

	switch k := parsedKey.(type) {
	case *ed25519.PrivateKey:
		return *k, nil
	case ed25519.PrivateKey:
		return k, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedKey, parsedKey)
	}
}

// LoadPublicKey reads an Ed25519 public key from a raw 32-byte file or an
// OpenSSH authorized_keys-style line.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}

	if len(keyData) == ed25519.PublicKeySize {
		return ed25519.PublicKey(keyData), nil
	}

	pubKey, _, _, _, err := ssh.ParseAuthorizedKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	cryptoPubKey, ok := pubKey.(ssh.CryptoPublicKey)
	if !ok {
		return nil, ErrInvalidKeyFormat
	}
	ed25519PubKey, ok := cryptoPubKey.CryptoPublicKey().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedKey, cryptoPubKey.CryptoPublicKey())
	}
	return ed25519PubKey, nil
}

// Sign produces a 64-byte Ed25519 signature over message.
func Sign(seed ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(seed, message)
}

// Verify checks an Ed25519 signature over message. It only ever returns
// Valid or Invalid; callers with no key at all report Unknown themselves
// rather than calling Verify, per spec §4.3.
func Verify(pubKey ed25519.PublicKey, message, signature []byte) Verdict {
	if len(pubKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return Invalid
	}
	if ed25519.Verify(pubKey, message, signature) {
		return Valid
	}
	return Invalid
}

// PublicKeyOf extracts the public half of a signing seed.
func PublicKeyOf(seed ed25519.PrivateKey) ed25519.PublicKey {
	return seed.Public().(ed25519.PublicKey)
}

// EncodeKey Base64-encodes a key or signature for embedding in JSON.
func EncodeKey(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodePublicKey Base64-decodes a 32-byte Ed25519 public key.
func DecodePublicKey(s string) (ed25519.PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, ErrBadKeySize
	}
	return ed25519.PublicKey(b), nil
}

// DecodeSignature Base64-decodes a 64-byte Ed25519 signature.
func DecodeSignature(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if len(b) != ed25519.SignatureSize {
		return nil, ErrBadSignatureSize
	}
	return b, nil
}
