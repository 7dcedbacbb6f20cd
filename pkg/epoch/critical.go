package epoch

import (
	"github.com/nvmmheap/nvmm/pkg/nvmerr"
	"github.com/nvmmheap/nvmm/pkg/patomic"
)

// EpochOp is a scoped critical-section lease. EnterCritical constructs
// one and claims a slot; Release (or Manager.Exit) frees the slot for
// reuse. A reader holds an EpochOp for as long as it may dereference
// GlobalPtrs it obtained while the lease was open.
type EpochOp struct {
	mgr      *Manager
	slot     uint32
	epoch    uint64
	released bool
}

// ReportedEpoch returns the epoch this lease was pinned to at
// construction — the value design notes call e in the deferred-free
// bucket rule (pkg/epochzone's Heap.Free pushes into bucket (e+3) mod
// N_LISTS).
// It is not recomputed on each call: it is the frontier_epoch this
// critical section observed on entry, which is what other threads'
// reported_epoch computations must stay at or below while this lease
// is open.
func (op *EpochOp) ReportedEpoch() uint64 {
	return op.epoch
}

// Release exits the critical section, freeing its slot for reuse by
// any future EnterCritical call, from this process or another attached
// to the same shelf. Release is idempotent; calling it more than once
// is a no-op.
func (op *EpochOp) Release() {
	if op.released {
		return
	}
	op.released = true
	patomic.StoreUint64(op.mgr.mem, slotOffset(op.slot), 0)
}

// EnterCritical claims a free participant slot and publishes the
// current frontier_epoch into it in a single compare-and-swap,
// returning a lease the caller must Release when done reading. It
// fails with a failed-precondition status if every slot is already
// claimed — the epoch shelf's participant table, like any fixed-size
// pool, can run out.
func (m *Manager) EnterCritical() (*EpochOp, error) {
	e := m.advanceFrontier()
	want := slotActive | e
	for i := uint32(0); i < m.maxParticipants; i++ {
		off := slotOffset(i)
		if patomic.LoadUint64(m.mem, off) != 0 {
			continue
		}
		if patomic.CompareAndSwapUint64(m.mem, off, 0, want) {
			return &EpochOp{mgr: m, slot: i, epoch: e}, nil
		}
	}
	return nil, nvmerr.Wrapf(nvmerr.FailedPrecondition("epoch participant table exhausted"),
		"epoch: all %d slots claimed", m.maxParticipants)
}

// Enter is EnterCritical under a name that reads better at call sites
// that cannot use defer to guarantee the matching Exit — a callback-
// style API, or a lease held across more than one function. Prefer
// EnterCritical paired with defer op.Release() wherever defer is usable.
func (m *Manager) Enter() (*EpochOp, error) {
	return m.EnterCritical()
}

// Exit releases op. It is Enter's counterpart, provided so the
// Enter/Exit pairing reads symmetrically at call sites that chose Enter
// over EnterCritical for that reason.
func (m *Manager) Exit(op *EpochOp) {
	op.Release()
}
