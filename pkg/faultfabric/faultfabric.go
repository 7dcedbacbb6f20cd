// Package faultfabric is the seam design notes call for between this
// module and a fabric-attached-memory coherence driver: mapping a
// Persistent Region additionally registers the mapping so that atomic
// reads/writes/CAS on its pages are globally coherent across nodes, and
// unmapping must symmetrically unregister.
//
// No such driver exists in this exercise's dependency corpus, so
// Register/Unregister are local no-ops. They exist so that pkg/region
// and pkg/patomic route every touch of persistent-atomic fields through
// one seam, instead of assuming plain loads of mapped memory are
// coherent across processes on a single machine (which they are, via
// the kernel's page cache) the way they would not be across nodes on
// real fabric-attached memory.
package faultfabric

import "sync/atomic"

// Handle represents one registered mapping. Unregister is idempotent
// past the first call.
type Handle struct {
	unregistered atomic.Bool
}

// Register marks mem as fabric-coherent. The returned Handle must be
// unregistered via Unregister when the mapping is torn down.
func Register(mem []byte) (*Handle, error) {
	return &Handle{}, nil
}

// Unregister reverses Register. Safe to call more than once.
func (h *Handle) Unregister() error {
	h.unregistered.Store(true)
	return nil
}
