package contextset

import (
	"spe/internal/hasher"
)

// Root computes the Merkle root over the canonical bytes of items, per spec
// §4.5. Leaves are the raw SHA-256 digests of each item's canonical
// encoding, in the order given — callers that need a stable root across
// re-orderings of an otherwise-identical context set must sort items
// themselves before calling Root. Internal nodes are
// SHA-256(left || right) over the raw 32-byte digests, with no domain
// separation prefix. A level with an odd number of nodes duplicates its
// last node to pair with itself. The empty set's root is SHA-256("").
func Root(items []Item) ([32]byte, error) {
	if len(items) == 0 {
		return hasher.Sum256(nil), nil
	}

	level := make([][32]byte, len(items))
	for i, it := range items {
		b, err := it.CanonicalBytes()
		if err != nil {
			return [32]byte{}, err
		}
		level[i] = hasher.Sum256(b)
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			combined := make([]byte, 0, 64)
			combined = append(combined, level[i][:]...)
			combined = append(combined, level[i+1][:]...)
			next[i/2] = hasher.Sum256(combined)
		}
		level = next
	}

	return level[0], nil
}

// RootHex returns Root's result as lower-case hex.
func RootHex(items []Item) (string, error) {
	root, err := Root(items)
	if err != nil {
		return "", err
	}
	return hasher.Hex(root), nil
}
