package schema

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateCapsuleJSONAcceptsFixture(t *testing.T) {
	data := readFixture(t, "capsule-v1.json")
	require.NoError(t, ValidateCapsuleJSON(data))
}

func TestValidateCapsuleJSONRejectsMissingRequiredField(t *testing.T) {
	err := ValidateCapsuleJSON([]byte(`{"t_run": 1}`))
	require.Error(t, err)
}

func TestValidateCapsuleJSONRejectsBadHashLength(t *testing.T) {
	err := ValidateCapsuleJSON([]byte(`{
		"t_run": 1, "t_target": 2, "gate_policy_id": "strict",
		"model_id": "m", "hash_prompt": "abc",
		"output_hash": "abc", "context_merkle_root": "abc"
	}`))
	require.Error(t, err)
}

func TestValidateProofInputJSONAcceptsFixture(t *testing.T) {
	data := readFixture(t, "proof-input-v1.json")
	require.NoError(t, ValidateProofInputJSON(data))
}

func TestValidateProofInputJSONRejectsBadSignatureShape(t *testing.T) {
	err := ValidateProofInputJSON([]byte(`{"signature": {"algorithm": "ed25519"}}`))
	require.Error(t, err)
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(repoRoot(t), "testdata", name))
	require.NoError(t, err)
	return data
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
