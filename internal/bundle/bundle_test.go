package bundle

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"spe/internal/capsule"
	"spe/internal/ledger"
	"spe/internal/proofinput"
	"spe/internal/signer"
)

func buildTestBundle(t *testing.T, sign bool) (bundlePath string, manifestSigPubKey string) {
	t.Helper()
	dir := t.TempDir()

	c := capsule.Capsule{
		TRun:              1700000000,
		TTarget:           2023,
		GatePolicyID:      "strict",
		ModelID:           "claude-3",
		HashPrompt:        "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		OutputHash:        "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContextMerkleRoot: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	}
	capsuleHash, err := c.Hash()
	require.NoError(t, err)

	ledgerPath := filepath.Join(dir, "ledger.sqlite")
	l, err := ledger.Open(ledgerPath)
	require.NoError(t, err)
	_, err = l.Append(capsuleHash, c.TRun)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	manifest := proofinput.Manifest{
		Fields: map[string]any{
			"schema_version": "proof-input-text/1.0",
			"hash_algorithm": "sha256",
			"hash_value":     c.OutputHash,
			"t_run":          c.TRun,
		},
	}
	if sign {
		pub, seed, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		manifest, err = manifest.Sign(seed)
		require.NoError(t, err)
		manifestSigPubKey = signer.EncodeKey(pub)
	}

	zipPath := filepath.Join(dir, "bundle.zip")
	require.NoError(t, Assemble(zipPath, c, ledgerPath, manifest))
	return zipPath, manifestSigPubKey
}

func TestAssembleCreatesAllFixedMembers(t *testing.T) {
	bundlePath, _ := buildTestBundle(t, false)

	dir := t.TempDir()
	require.NoError(t, Extract(bundlePath, dir))
	require.FileExists(t, filepath.Join(dir, CapsuleMember))
	require.FileExists(t, filepath.Join(dir, "ledger.sqlite"))
	require.FileExists(t, filepath.Join(dir, "proof_input.json"))
}

func TestVerifyBundleUnsignedReportsUnknownSignature(t *testing.T) {
	bundlePath, _ := buildTestBundle(t, false)

	report, err := VerifyBundle(bundlePath, VerifyOptions{})
	require.NoError(t, err)
	require.Equal(t, StatusValid, report.Ledger)
	require.Equal(t, StatusValid, report.CapsuleBinding)
	require.Equal(t, StatusUnknown, report.Signature)
	require.NotEmpty(t, report.ProofInputHash)
	require.False(t, report.HasObjectResult)
}

func TestVerifyBundleSignedReportsValidSignature(t *testing.T) {
	bundlePath, _ := buildTestBundle(t, true)

	report, err := VerifyBundle(bundlePath, VerifyOptions{})
	require.NoError(t, err)
	require.Equal(t, StatusValid, report.Signature)
}

func TestVerifyBundleObjectMatch(t *testing.T) {
	dir := t.TempDir()
	artifactPath := filepath.Join(dir, "artifact.txt")
	require.NoError(t, os.WriteFile(artifactPath, nil, 0o600))

	c := capsule.Capsule{
		TRun:              100,
		TTarget:           2023,
		GatePolicyID:      "strict",
		ModelID:           "claude-3",
		HashPrompt:        "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		OutputHash:        "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContextMerkleRoot: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	}
	capsuleHash, err := c.Hash()
	require.NoError(t, err)

	ledgerPath := filepath.Join(dir, "ledger.sqlite")
	l, err := ledger.Open(ledgerPath)
	require.NoError(t, err)
	_, err = l.Append(capsuleHash, c.TRun)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	manifest := proofinput.Manifest{Fields: map[string]any{"hash_value": c.OutputHash}}
	zipPath := filepath.Join(dir, "bundle.zip")
	require.NoError(t, Assemble(zipPath, c, ledgerPath, manifest))

	report, err := VerifyBundle(zipPath, VerifyOptions{OriginalArtifactPath: artifactPath})
	require.NoError(t, err)
	require.True(t, report.HasObjectResult)
	require.Equal(t, StatusMatch, report.Object)
}

func TestVerifyBundleDetectsBrokenBinding(t *testing.T) {
	dir := t.TempDir()

	c := capsule.Capsule{
		TRun:              100,
		TTarget:           2023,
		GatePolicyID:      "strict",
		ModelID:           "claude-3",
		HashPrompt:        "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		OutputHash:        "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContextMerkleRoot: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	}

	ledgerPath := filepath.Join(dir, "ledger.sqlite")
	l, err := ledger.Open(ledgerPath)
	require.NoError(t, err)
	_, err = l.Append("0000000000000000000000000000000000000000000000000000000000000000", c.TRun) // deliberately wrong binding
	require.NoError(t, err)
	require.NoError(t, l.Close())

	manifest := proofinput.Manifest{Fields: map[string]any{"hash_value": c.OutputHash}}
	zipPath := filepath.Join(dir, "bundle.zip")
	require.NoError(t, Assemble(zipPath, c, ledgerPath, manifest))

	report, err := VerifyBundle(zipPath, VerifyOptions{})
	require.NoError(t, err)
	require.Equal(t, StatusInvalid, report.CapsuleBinding)
}
