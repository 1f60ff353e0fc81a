package replication

import (
	"hash"
	"sort"
)

// writeSortedMap feeds a map's entries into h in a deterministic order
// (sorted by key) so the checksum does not depend on Go's randomized map
// iteration order.
func writeSortedMap(h hash.Hash64, m map[string][]byte) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write(m[k])
	}
}
