package capsule

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validCapsule() Capsule {
	return Capsule{
		TRun:              1700000000,
		TTarget:           2023,
		GatePolicyID:      "strict",
		ModelID:           "claude-3",
		HashPrompt:        "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		OutputHash:        "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContextMerkleRoot: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
	}
}

func TestValidateAcceptsCompleteCapsule(t *testing.T) {
	require.NoError(t, validCapsule().Validate())
}

func TestValidateRejectsMissingField(t *testing.T) {
	c := validCapsule()
	c.ModelID = ""
	require.ErrorIs(t, c.Validate(), ErrMissingField)
}

func TestStripHashPrefixRemovesAlgPrefix(t *testing.T) {
	require.Equal(t, "abcd", StripHashPrefix("sha256:abcd"))
}

func TestStripHashPrefixLeavesRawHexAlone(t *testing.T) {
	require.Equal(t, "abcd", StripHashPrefix("abcd"))
}

func TestCanonicalBytesUsesRawOutputHashNotPrefixed(t *testing.T) {
	c := validCapsule()
	b, err := c.CanonicalBytes()
	require.NoError(t, err)
	require.Contains(t, string(b), `"output_hash":"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"`)
	require.NotContains(t, string(b), "sha256:")
}

func TestCanonicalBytesOmitsUnsetOptionalFields(t *testing.T) {
	c := validCapsule()
	b, err := c.CanonicalBytes()
	require.NoError(t, err)
	require.NotContains(t, string(b), "artifact_type")
	require.NotContains(t, string(b), "snapshot_hash")
	require.NotContains(t, string(b), "proof_input")
}

func TestCanonicalBytesIncludesSetOptionalFields(t *testing.T) {
	c := validCapsule()
	c.ArtifactType = "ai-output"
	c.Mode = "text"
	b, err := c.CanonicalBytes()
	require.NoError(t, err)
	require.Contains(t, string(b), `"artifact_type":"ai-output"`)
	require.Contains(t, string(b), `"mode":"text"`)
}

func TestHashIsDeterministic(t *testing.T) {
	c := validCapsule()
	h1, err := c.Hash()
	require.NoError(t, err)
	h2, err := c.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64)
}

func TestHashChangesWithContent(t *testing.T) {
	c1 := validCapsule()
	c2 := validCapsule()
	c2.ModelID = "gpt-4"

	h1, err := c1.Hash()
	require.NoError(t, err)
	h2, err := c2.Hash()
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}
