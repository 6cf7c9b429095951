package ledger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.sqlite")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestChainHashKnownVector(t *testing.T) {
	got := ChainHash(GenesisPrevHash, "abc123", 1700000000)
	require.Len(t, got, 64)
	// SHA-256("000...000|abc123|1700000000") with 64 zeros.
	require.Equal(t, "5f118cf7a6f311a5ce0bdcbd6c0dcb8c2d6d0ed7a6feaaded23636ffad8947a5", got)

	// Deterministic: same inputs always produce the same hash.
	require.Equal(t, got, ChainHash(GenesisPrevHash, "abc123", 1700000000))
}

func TestAppendGenesisUsesZeroPrevHash(t *testing.T) {
	l := openTestLedger(t)

	entry, err := l.Append("capsule-hash-1", 1700000000)
	require.NoError(t, err)
	require.Equal(t, int64(1), entry.ID)
	require.Equal(t, GenesisPrevHash, entry.PrevHash)
	require.Equal(t, ChainHash(GenesisPrevHash, "capsule-hash-1", 1700000000), entry.EntryHash)
}

func TestAppendChainsToTip(t *testing.T) {
	l := openTestLedger(t)

	first, err := l.Append("capsule-1", 100)
	require.NoError(t, err)
	second, err := l.Append("capsule-2", 200)
	require.NoError(t, err)

	require.Equal(t, int64(2), second.ID)
	require.Equal(t, first.EntryHash, second.PrevHash)
}

func TestTipReflectsLastAppend(t *testing.T) {
	l := openTestLedger(t)

	_, ok, err := l.Tip()
	require.NoError(t, err)
	require.False(t, ok)

	appended, err := l.Append("capsule-1", 100)
	require.NoError(t, err)

	tip, ok, err := l.Tip()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, appended, tip)
}

func TestVerifyAcceptsIntactChain(t *testing.T) {
	l := openTestLedger(t)
	for i, capsuleHash := range []string{"c1", "c2", "c3"} {
		_, err := l.Append(capsuleHash, int64(100+i))
		require.NoError(t, err)
	}

	entries, err := l.All()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.True(t, Verify(entries))
}

func TestVerifyRejectsTamperedEntry(t *testing.T) {
	l := openTestLedger(t)
	for i, capsuleHash := range []string{"c1", "c2", "c3"} {
		_, err := l.Append(capsuleHash, int64(100+i))
		require.NoError(t, err)
	}

	entries, err := l.All()
	require.NoError(t, err)
	entries[1].CapsuleHash = "tampered"
	require.False(t, Verify(entries))
}

func TestVerifyRejectsBrokenPrevHashLink(t *testing.T) {
	l := openTestLedger(t)
	for i, capsuleHash := range []string{"c1", "c2"} {
		_, err := l.Append(capsuleHash, int64(100+i))
		require.NoError(t, err)
	}

	entries, err := l.All()
	require.NoError(t, err)
	entries[1].PrevHash = "0000000000000000000000000000000000000000000000000000000000000001"
	require.False(t, Verify(entries))
}

func TestVerifyRejectsEmptyLedger(t *testing.T) {
	require.False(t, Verify(nil))
}

func TestAllOrdersByIDAscending(t *testing.T) {
	l := openTestLedger(t)
	for i, capsuleHash := range []string{"c1", "c2", "c3"} {
		_, err := l.Append(capsuleHash, int64(100+i))
		require.NoError(t, err)
	}

	entries, err := l.All()
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, []int64{entries[0].ID, entries[1].ID, entries[2].ID})
}
