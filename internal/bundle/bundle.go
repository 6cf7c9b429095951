// Package bundle assembles and verifies proof bundles: ZIP archives that
// carry a forensic capsule, its ledger, a signed proof-input manifest, and
// a hermetic verifier that shares no code with this module, per spec §4.9.
package bundle

import (
	"archive/zip"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"spe/internal/capsule"
	"spe/internal/ledger"
	"spe/internal/proofinput"
	"spe/internal/schema"
)

// Fixed member names within a bundle archive, per spec §4.9/§6.
const (
	CapsuleMember    = "forensic_capsule.json"
	LedgerMember     = "ledger.sqlite"
	ProofInputMember = "proof_input.json"
	VerifierMember   = "verify/verify_bundle.go"
)

//go:embed assets/verify_bundle.go.txt
var hermeticVerifierSource []byte

// Assemble writes a bundle ZIP at zipPath containing the capsule, ledger
// file, proof-input manifest, and the embedded hermetic verifier.
func Assemble(zipPath string, c capsule.Capsule, ledgerPath string, manifest proofinput.Manifest) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return fmt.Errorf("bundle: create %s: %w", zipPath, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	capsuleBytes, err := c.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("bundle: canonicalize capsule: %w", err)
	}
	if err := schema.ValidateCapsuleJSON(capsuleBytes); err != nil {
		return fmt.Errorf("bundle: capsule failed schema validation: %w", err)
	}
	if err := writeMember(zw, CapsuleMember, capsuleBytes); err != nil {
		return err
	}

	if err := writeFileMember(zw, LedgerMember, ledgerPath); err != nil {
		return err
	}

	manifestJSON, err := manifestToJSON(manifest)
	if err != nil {
		return err
	}
	if err := schema.ValidateProofInputJSON(manifestJSON); err != nil {
		return fmt.Errorf("bundle: proof input failed schema validation: %w", err)
	}
	if err := writeMember(zw, ProofInputMember, manifestJSON); err != nil {
		return err
	}

	if err := writeMember(zw, VerifierMember, hermeticVerifierSource); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("bundle: finalize zip: %w", err)
	}
	return nil
}

// manifestToJSON renders the manifest fields plus any attached signature
// as a plain JSON object (not the canonical form used for hashing —
// readability for the bundled file is independent of the hashed bytes).
func manifestToJSON(m proofinput.Manifest) ([]byte, error) {
	out := make(map[string]any, len(m.Fields)+1)
	for k, v := range m.Fields {
		if k != "signature" {
			out[k] = v
		}
	}
	if m.Signature != nil {
		out["signature"] = m.Signature
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("bundle: marshal proof input: %w", err)
	}
	return b, nil
}

func writeMember(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("bundle: create member %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("bundle: write member %s: %w", name, err)
	}
	return nil
}

func writeFileMember(zw *zip.Writer, name, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("bundle: open %s: %w", srcPath, err)
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("bundle: create member %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("bundle: copy into member %s: %w", name, err)
	}
	return nil
}

// Extract unpacks bundlePath's members into destDir, which must already
// exist. Only the fixed members are extracted; unrecognized members are
// ignored, per spec §6.
func Extract(bundlePath, destDir string) error {
	zr, err := zip.OpenReader(bundlePath)
	if err != nil {
		return fmt.Errorf("bundle: open %s: %w", bundlePath, err)
	}
	defer zr.Close()

	wanted := map[string]bool{
		CapsuleMember:    true,
		LedgerMember:     true,
		ProofInputMember: true,
	}

	for _, zf := range zr.File {
		if !wanted[zf.Name] {
			continue
		}
		if err := extractOne(zf, filepath.Join(destDir, filepath.Base(zf.Name))); err != nil {
			return err
		}
	}
	return nil
}

func extractOne(zf *zip.File, destPath string) error {
	r, err := zf.Open()
	if err != nil {
		return fmt.Errorf("bundle: open member %s: %w", zf.Name, err)
	}
	defer r.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("bundle: create %s: %w", destPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("bundle: extract %s: %w", zf.Name, err)
	}
	return nil
}

// openLedger wires a sqlite-backed ledger directly from an extracted member
// path; exposed so verify.go can share it.
func openLedger(path string) (*ledger.Ledger, error) {
	return ledger.Open(path)
}
