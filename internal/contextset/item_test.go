package contextset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validItem() Item {
	return Item{
		DocID:       "doc-1",
		ContentHash: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		Timestamp:   1700000000,
		SourceID:    "source-1",
	}
}

func TestItemValidateAccepts(t *testing.T) {
	require.NoError(t, validItem().Validate())
}

func TestItemValidateRejectsMissingField(t *testing.T) {
	it := validItem()
	it.DocID = ""
	require.ErrorIs(t, it.Validate(), ErrMissingField)
}

func TestItemValidateRejectsBadContentHashLength(t *testing.T) {
	it := validItem()
	it.ContentHash = "abc123"
	require.ErrorIs(t, it.Validate(), ErrBadContentHash)
}

func TestItemValidateRejectsUppercaseContentHash(t *testing.T) {
	it := validItem()
	it.ContentHash = "E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855"
	require.ErrorIs(t, it.Validate(), ErrBadContentHash)
}

func TestItemValidateRejectsNegativeTimestamp(t *testing.T) {
	it := validItem()
	it.Timestamp = -1
	require.ErrorIs(t, it.Validate(), ErrNegativeTime)
}

func TestItemCanonicalBytesDeterministic(t *testing.T) {
	it := validItem()
	b1, err := it.CanonicalBytes()
	require.NoError(t, err)
	b2, err := it.CanonicalBytes()
	require.NoError(t, err)
	require.Equal(t, b1, b2)
	require.JSONEq(t, string(b1), string(b2))
}

func TestItemCanonicalBytesFieldOrder(t *testing.T) {
	it := validItem()
	b, err := it.CanonicalBytes()
	require.NoError(t, err)
	require.Equal(
		t,
		`{"content_hash":"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855","doc_id":"doc-1","source_id":"source-1","timestamp":1700000000}`,
		string(b),
	)
}
