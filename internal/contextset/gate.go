package contextset

// Policy identifies a temporal gating rule, per spec §4.4.
type Policy string

const (
	// PolicyStrict keeps only items at or before the boundary.
	PolicyStrict Policy = "strict"
	// PolicyNone keeps every item regardless of timestamp.
	PolicyNone Policy = "none"
)

// Gated is the ordered subset of context items that survive temporal
// gating, plus the metadata the capsule and the TVOC detector need.
type Gated struct {
	Items          []Item
	PolicyID       string
	Boundary       int64
	HasPostTarget  bool
}

// ApplyGate filters items by boundary under policy, per spec §4.4. An empty
// or unrecognized policyID behaves like PolicyNone. Ordering is preserved
// and filtering is stable; input items are never mutated.
func ApplyGate(items []Item, boundary int64, policyID string) Gated {
	hasPostTarget := false
	for _, it := range items {
		if it.Timestamp > boundary {
			hasPostTarget = true
			break
		}
	}

	resolvedID := policyID
	if Policy(resolvedID) != PolicyStrict {
		resolvedID = string(PolicyNone)
	}

	var kept []Item
	if Policy(resolvedID) == PolicyStrict {
		kept = make([]Item, 0, len(items))
		for _, it := range items {
			if it.Timestamp <= boundary {
				kept = append(kept, it)
			}
		}
	} else {
		kept = append([]Item(nil), items...)
	}

	return Gated{
		Items:         kept,
		PolicyID:      resolvedID,
		Boundary:      boundary,
		HasPostTarget: hasPostTarget,
	}
}
