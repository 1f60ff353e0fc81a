// Package id implements the process-wide id generator described in spec §9
// "Global state": an atomic counter owned by a singleton, initialised
// lazily, handing out unique uint64 ids for the lifetime of the process.
package id

import "sync/atomic"

var counter uint64

// Next returns the next id in the process-wide sequence. The first id
// returned is 0, matching spec §8 scenario 1's "DB response with id = 0".
func Next() uint64 {
	return atomic.AddUint64(&counter, 1) - 1
}
