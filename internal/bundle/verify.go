package bundle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"spe/internal/canon"
	"spe/internal/capsule"
	"spe/internal/hasher"
	"spe/internal/ledger"
	"spe/internal/proofinput"
)

// Status is one verdict value on the surface described in spec §6.
type Status string

const (
	StatusValid    Status = "VALID"
	StatusInvalid  Status = "INVALID"
	StatusUnknown  Status = "UNKNOWN"
	StatusMatch    Status = "MATCH"
	StatusMismatch Status = "MISMATCH"
	// StatusKnown is ORIGIN_SPE's positive verdict, per spec §4.9 step 6:
	// the manifest's attached public key matches a configured
	// well-known production key.
	StatusKnown Status = "KNOWN"
)

// Report carries the verdict surface emitted by the verifier, in the
// fixed order named by spec §6: LEDGER, CAPSULE_BINDING,
// PROOF_INPUT_HASH, SIGNATURE, ORIGIN_SPE, OBJECT (OBJECT only present
// when an artifact was supplied).
type Report struct {
	Ledger          Status
	CapsuleBinding  Status
	ProofInputHash  string
	Signature       Status
	OriginSPE       Status
	Object          Status
	HasObjectResult bool
}

// VerifyOptions configures an end-to-end bundle verification.
type VerifyOptions struct {
	// OriginalArtifactPath, if set, is hashed and compared against the
	// capsule's output_hash, per spec §4.9 step 5.
	OriginalArtifactPath string
	// WellKnownPublicKey, if set, is compared against the manifest's
	// attached public key to resolve ORIGIN_SPE, per spec §4.9 step 6.
	WellKnownPublicKey string
}

// VerifyBundle runs the end-to-end procedure from spec §4.9 against a
// bundle ZIP at bundlePath.
func VerifyBundle(bundlePath string, opts VerifyOptions) (Report, error) {
	workDir, err := os.MkdirTemp("", "spe-verify-*")
	if err != nil {
		return Report{}, fmt.Errorf("bundle: create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	if err := Extract(bundlePath, workDir); err != nil {
		return Report{}, err
	}

	return VerifyExtracted(workDir, opts)
}

// VerifyExtracted runs the same procedure as VerifyBundle against an
// already-extracted directory containing the fixed bundle members.
func VerifyExtracted(dir string, opts VerifyOptions) (Report, error) {
	var report Report

	capsuleData, recomputedHash, err := loadCapsule(filepath.Join(dir, CapsuleMember))
	if err != nil {
		return Report{}, err
	}

	l, err := openLedger(filepath.Join(dir, LedgerMember))
	if err != nil {
		return Report{}, err
	}
	defer l.Close()

	entries, err := l.All()
	if err != nil {
		return Report{}, err
	}

	ledgerValid := ledger.Verify(entries)
	report.Ledger = statusFromBool(ledgerValid)

	binding := false
	if len(entries) > 0 {
		binding = entries[len(entries)-1].CapsuleHash == recomputedHash
	}
	report.CapsuleBinding = statusFromBool(binding)

	manifest, err := loadManifest(filepath.Join(dir, ProofInputMember))
	if err != nil {
		return Report{}, err
	}
	piHash, err := manifest.Hash()
	if err != nil {
		return Report{}, err
	}
	report.ProofInputHash = piHash

	if manifest.Signature != nil {
		verdict, err := manifest.Verify("")
		if err != nil {
			report.Signature = StatusInvalid
		} else {
			report.Signature = Status(verdict)
		}
	} else {
		report.Signature = StatusUnknown
	}

	// ORIGIN_SPE is KNOWN only when a well-known key was configured, a
	// signature is attached and verifies, and the two keys match;
	// otherwise it stays UNKNOWN, per spec §4.9 step 6.
	report.OriginSPE = StatusUnknown
	if opts.WellKnownPublicKey != "" && manifest.Signature != nil &&
		report.Signature == StatusValid && manifest.Signature.PublicKey == opts.WellKnownPublicKey {
		report.OriginSPE = StatusKnown
	}

	if opts.OriginalArtifactPath != "" {
		fileHash, err := hasher.FileHex(opts.OriginalArtifactPath)
		if err != nil {
			return Report{}, err
		}
		outputHash := capsule.StripHashPrefix(fmt.Sprint(capsuleData["output_hash"]))
		report.HasObjectResult = true
		if fileHash == outputHash {
			report.Object = StatusMatch
		} else {
			report.Object = StatusMismatch
		}
	}

	return report, nil
}

func statusFromBool(ok bool) Status {
	if ok {
		return StatusValid
	}
	return StatusInvalid
}

func loadCapsule(path string) (map[string]any, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("bundle: read capsule: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, "", fmt.Errorf("bundle: parse capsule: %w", err)
	}
	canonical, err := canon.Bytes(data)
	if err != nil {
		return nil, "", fmt.Errorf("bundle: canonicalize capsule: %w", err)
	}
	return data, hasher.SumHex(canonical), nil
}

func loadManifest(path string) (proofinput.Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return proofinput.Manifest{}, fmt.Errorf("bundle: read proof input: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return proofinput.Manifest{}, fmt.Errorf("bundle: parse proof input: %w", err)
	}

	m := proofinput.Manifest{Fields: data}
	if sigRaw, ok := data["signature"]; ok {
		sigMap, ok := sigRaw.(map[string]any)
		if !ok {
			return proofinput.Manifest{}, fmt.Errorf("bundle: signature field has unexpected shape")
		}
		sig := &proofinput.SignatureBlock{
			Algorithm:      fmt.Sprint(sigMap["algorithm"]),
			PublicKey:      fmt.Sprint(sigMap["public_key"]),
			SignatureValue: fmt.Sprint(sigMap["signature_value"]),
		}
		m.Signature = sig
	}
	return m, nil
}
