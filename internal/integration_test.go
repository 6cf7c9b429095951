// Package internal holds cross-package integration tests for the
// certification pipeline: context gating and rooting, capsule
// construction and hashing, ledger append, proof-input signing, and
// bundle assembly/verification, exercised together the way speattest
// and speverify actually wire them.
package internal

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spe/internal/bundle"
	"spe/internal/capsule"
	"spe/internal/contextset"
	"spe/internal/hasher"
	"spe/internal/ledger"
	"spe/internal/proofinput"
	"spe/internal/signer"
	"spe/internal/tvoc"
)

// TestFullCertificationPipeline drives the happy path end to end: gate a
// context set, root it, build and hash a capsule, append it to the
// ledger, sign a proof-input manifest, assemble a bundle, and verify it
// independently.
func TestFullCertificationPipeline(t *testing.T) {
	dir := t.TempDir()

	items := []contextset.Item{
		{DocID: "doc-1", SourceID: "corpus-a", Timestamp: 1_600_000_000, ContentHash: hasher.SumHex([]byte("earlier source"))},
		{DocID: "doc-2", SourceID: "corpus-a", Timestamp: 1_700_000_000, ContentHash: hasher.SumHex([]byte("later source"))},
	}
	for _, it := range items {
		require.NoError(t, it.Validate())
	}
	tTarget := int64(1_650_000_000)

	gated := contextset.ApplyGate(items, tTarget, "strict")
	require.Len(t, gated.Items, 1, "strict gate should admit only the pre-target item")
	require.Equal(t, "doc-1", gated.Items[0].DocID)
	require.True(t, gated.HasPostTarget, "gating records that a post-target item existed even though it was filtered out")

	root, err := contextset.RootHex(gated.Items)
	require.NoError(t, err)
	require.Len(t, root, 64)

	artifactPath := filepath.Join(dir, "output.txt")
	require.NoError(t, os.WriteFile(artifactPath, []byte("the certified output"), 0o600))
	outputHash, err := hasher.FileHex(artifactPath)
	require.NoError(t, err)

	tRun := tTarget + 3600
	c := capsule.Capsule{
		TRun:              tRun,
		TTarget:           tTarget,
		GatePolicyID:      gated.PolicyID,
		ModelID:           "claude-3",
		HashPrompt:        hasher.SumHex([]byte("summarize the attached sources")),
		OutputHash:        outputHash,
		ContextMerkleRoot: root,
		Mode:              "file",
	}
	require.NoError(t, c.Validate())

	capsuleHash, err := c.Hash()
	require.NoError(t, err)
	require.Len(t, capsuleHash, 64)

	ledgerPath := filepath.Join(dir, "ledger.sqlite")
	l, err := ledger.Open(ledgerPath)
	require.NoError(t, err)
	entry, err := l.Append(capsuleHash, tRun)
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.ID)

	entries, err := l.All()
	require.NoError(t, err)
	require.True(t, ledger.Verify(entries))
	require.NoError(t, l.Close())

	pub, seed, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	manifest := proofinput.Manifest{
		Fields: map[string]any{
			"model_id":       c.ModelID,
			"t_run":          c.TRun,
			"t_target":       c.TTarget,
			"gate_policy_id": c.GatePolicyID,
			"capsule_hash":   capsuleHash,
		},
	}
	manifest, err = manifest.Sign(seed)
	require.NoError(t, err)

	bundlePath := filepath.Join(dir, "bundle.zip")
	require.NoError(t, bundle.Assemble(bundlePath, c, ledgerPath, manifest))

	report, err := bundle.VerifyBundle(bundlePath, bundle.VerifyOptions{
		OriginalArtifactPath: artifactPath,
		WellKnownPublicKey:   signer.EncodeKey(pub),
	})
	require.NoError(t, err)
	require.Equal(t, bundle.StatusValid, report.Ledger)
	require.Equal(t, bundle.StatusValid, report.CapsuleBinding)
	require.Equal(t, bundle.StatusValid, report.Signature)
	require.Equal(t, bundle.StatusKnown, report.OriginSPE)
	require.True(t, report.HasObjectResult)
	require.Equal(t, bundle.StatusMatch, report.Object)
}

// TestPipelineDetectsTamperedArtifact verifies that swapping the
// certified artifact after attestation is caught as an OBJECT mismatch,
// without touching the ledger or capsule binding.
func TestPipelineDetectsTamperedArtifact(t *testing.T) {
	dir := t.TempDir()

	artifactPath := filepath.Join(dir, "output.txt")
	require.NoError(t, os.WriteFile(artifactPath, []byte("original output"), 0o600))
	outputHash, err := hasher.FileHex(artifactPath)
	require.NoError(t, err)

	emptyRoot, err := contextset.RootHex(nil)
	require.NoError(t, err)

	c := capsule.Capsule{
		TRun:              1_700_003_600,
		TTarget:           1_700_000_000,
		GatePolicyID:      "none",
		ModelID:           "claude-3",
		HashPrompt:        hasher.SumHex([]byte("prompt")),
		OutputHash:        outputHash,
		ContextMerkleRoot: emptyRoot,
		Mode:              "file",
	}
	require.NoError(t, c.Validate())
	capsuleHash, err := c.Hash()
	require.NoError(t, err)

	ledgerPath := filepath.Join(dir, "ledger.sqlite")
	l, err := ledger.Open(ledgerPath)
	require.NoError(t, err)
	_, err = l.Append(capsuleHash, c.TRun)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	manifest := proofinput.Manifest{Fields: map[string]any{"hash_value": c.OutputHash}}
	bundlePath := filepath.Join(dir, "bundle.zip")
	require.NoError(t, bundle.Assemble(bundlePath, c, ledgerPath, manifest))

	// The artifact is replaced after the bundle was sealed.
	require.NoError(t, os.WriteFile(artifactPath, []byte("swapped output"), 0o600))

	report, err := bundle.VerifyBundle(bundlePath, bundle.VerifyOptions{OriginalArtifactPath: artifactPath})
	require.NoError(t, err)
	require.Equal(t, bundle.StatusValid, report.Ledger)
	require.Equal(t, bundle.StatusValid, report.CapsuleBinding)
	require.True(t, report.HasObjectResult)
	require.Equal(t, bundle.StatusMismatch, report.Object)
}

// TestPipelineFlagsTemporalViolation checks that context items dated
// after t_target gate out under the strict policy, and that a STRONG
// TVOC verdict follows when the certified output mentions a year past
// the target with no surviving post-target context to explain it.
func TestPipelineFlagsTemporalViolation(t *testing.T) {
	tTarget := int64(1_650_000_000) // 2022-04-13

	items := []contextset.Item{
		{DocID: "future-source", SourceID: "corpus-b", Timestamp: tTarget + 10_000, ContentHash: hasher.SumHex([]byte("future source"))},
	}
	gated := contextset.ApplyGate(items, tTarget, "strict")
	require.Empty(t, gated.Items, "future-dated context must be gated out under strict policy")
	require.True(t, gated.HasPostTarget, "gating still records that post-target context existed")

	// TVOC compares calendar years, so the Unix-timestamp boundary is
	// converted to its year first.
	targetYear := time.Unix(tTarget, 0).UTC().Year()
	output := "According to a 2031 press release, the merger closed early."
	result := tvoc.Detect(output, targetYear, gated.HasPostTarget)
	require.Equal(t, tvoc.None, result.Verdict, "post-target context, even if gated out of the capsule, still explains the mention")

	resultNoContext := tvoc.Detect(output, targetYear, false)
	require.Equal(t, tvoc.Strong, resultNoContext.Verdict)
	require.Contains(t, resultNoContext.ViolatingYears, 2031)

	noneGated := contextset.ApplyGate(items, tTarget, "none")
	require.Len(t, noneGated.Items, 1, "none policy must not filter any context")
}
