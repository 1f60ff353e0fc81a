package replication

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
	cuckoo "github.com/linvon/cuckoo-filter"
)

// dedupFilter is a probabilistic fast path guarding the exact, pebble-backed
// appliedIndex check on the on_commit hot path. A miss means the (dbID,
// index) pair has definitely not been applied, skipping the pebble read
// entirely; a hit falls through to the exact check. Grounded on the
// teacher's db/intent_filter.go Cuckoo-filter conflict guard, repurposed
// here from row-conflict detection to commit-index dedup.
type dedupFilter struct {
	mu     sync.Mutex
	filter *cuckoo.Filter
}

const (
	dedupBucketSize      = 4
	dedupFingerprintSize = 16
	dedupNumBuckets      = 65536
)

func newDedupFilter() *dedupFilter {
	return &dedupFilter{
		filter: cuckoo.NewFilter(dedupBucketSize, dedupFingerprintSize, dedupNumBuckets, cuckoo.TableTypePacked),
	}
}

func dedupHash(dbID, index uint64) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[:8], dbID)
	binary.LittleEndian.PutUint64(buf[8:], index)
	sum := xxhash.Sum64(buf)
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, sum)
	return out
}

// MaybeApplied reports whether (dbID, index) might already have been
// applied. False is a definite no.
func (d *dedupFilter) MaybeApplied(dbID, index uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filter.Contain(dedupHash(dbID, index))
}

func (d *dedupFilter) MarkApplied(dbID, index uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter.Add(dedupHash(dbID, index))
}
