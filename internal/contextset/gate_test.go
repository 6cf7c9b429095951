package contextset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyGateStrictFiltersFutureItems(t *testing.T) {
	items := []Item{
		{DocID: "a", ContentHash: "x", Timestamp: 10, SourceID: "s"},
		{DocID: "b", ContentHash: "x", Timestamp: 20, SourceID: "s"},
		{DocID: "c", ContentHash: "x", Timestamp: 30, SourceID: "s"},
	}

	gated := ApplyGate(items, 20, "strict")
	require.Equal(t, "strict", gated.PolicyID)
	require.True(t, gated.HasPostTarget)
	require.Len(t, gated.Items, 2)
	require.Equal(t, "a", gated.Items[0].DocID)
	require.Equal(t, "b", gated.Items[1].DocID)
}

func TestApplyGateNoneKeepsEverything(t *testing.T) {
	items := []Item{
		{DocID: "a", ContentHash: "x", Timestamp: 10, SourceID: "s"},
		{DocID: "b", ContentHash: "x", Timestamp: 99, SourceID: "s"},
	}

	gated := ApplyGate(items, 20, "none")
	require.Equal(t, "none", gated.PolicyID)
	require.True(t, gated.HasPostTarget)
	require.Len(t, gated.Items, 2)
}

func TestApplyGateOmittedPolicyBehavesLikeNone(t *testing.T) {
	items := []Item{
		{DocID: "a", ContentHash: "x", Timestamp: 10, SourceID: "s"},
		{DocID: "b", ContentHash: "x", Timestamp: 99, SourceID: "s"},
	}

	gated := ApplyGate(items, 20, "")
	require.Equal(t, "none", gated.PolicyID)
	require.Len(t, gated.Items, 2)
}

func TestApplyGateUnrecognizedPolicyBehavesLikeNone(t *testing.T) {
	items := []Item{
		{DocID: "a", ContentHash: "x", Timestamp: 10, SourceID: "s"},
	}

	gated := ApplyGate(items, 20, "weird-policy")
	require.Equal(t, "none", gated.PolicyID)
	require.Len(t, gated.Items, 1)
}

func TestApplyGateHasPostTargetFalseWhenNoneExceedBoundary(t *testing.T) {
	items := []Item{
		{DocID: "a", ContentHash: "x", Timestamp: 10, SourceID: "s"},
		{DocID: "b", ContentHash: "x", Timestamp: 20, SourceID: "s"},
	}

	gated := ApplyGate(items, 20, "strict")
	require.False(t, gated.HasPostTarget)
	require.Len(t, gated.Items, 2)
}

func TestApplyGatePreservesOrderAndDoesNotMutateInput(t *testing.T) {
	items := []Item{
		{DocID: "a", ContentHash: "x", Timestamp: 30, SourceID: "s"},
		{DocID: "b", ContentHash: "x", Timestamp: 10, SourceID: "s"},
		{DocID: "c", ContentHash: "x", Timestamp: 20, SourceID: "s"},
	}
	originalLen := len(items)

	gated := ApplyGate(items, 20, "strict")
	require.Len(t, gated.Items, 2)
	require.Equal(t, "b", gated.Items[0].DocID)
	require.Equal(t, "c", gated.Items[1].DocID)
	require.Len(t, items, originalLen)
}
