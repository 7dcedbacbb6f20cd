// Package epochzone implements the Epoch Zone Heap: a Shelf Heap
// overlaid with epoch-bucketed deferred-free lists (spec.md §4.3–§4.5),
// so that blocks freed while other readers might still hold a
// GlobalPtr to them are not actually returned for reuse until a
// background cleaner has proven every such reader has moved on.
//
// Only single-granule allocations (at most one MinAllocSize block)
// are served from the reuse pool; larger allocations bump-allocate fresh
// memory from the underlying shelf heap and are never reclaimed whole
// (freeing one returns only its first granule to the reuse pool), the
// same way spec.md's Non-goals rule out size classes and coalescing
// for the shelf heap itself.
package epochzone

import (
	"unsafe"

	"github.com/nvmmheap/nvmm/pkg/epoch"
	"github.com/nvmmheap/nvmm/pkg/gptr"
	"github.com/nvmmheap/nvmm/pkg/nvmerr"
	"github.com/nvmmheap/nvmm/pkg/nvmmconfig"
	"github.com/nvmmheap/nvmm/pkg/pool"
	"github.com/nvmmheap/nvmm/pkg/region"
	"github.com/nvmmheap/nvmm/pkg/shelfheap"
)

const (
	// CacheLineBytes matches shelfheap.CacheLineBytes: the header this
	// package writes ahead of the shelf heap's own header is laid out
	// on the same alignment unit.
	CacheLineBytes = shelfheap.CacheLineBytes

	// NLists is the number of epoch-bucketed deferred-free stacks,
	// fixed at 5 per spec.md §4.5's slack analysis.
	NLists = 5

	// AvailableList is an extra stack beyond the NLists deferred
	// buckets: the cleaner moves a bucket's contents here once
	// reported_epoch proves them safe, and Alloc checks here first
	// before bump-allocating fresh memory. This is the concrete
	// reuse-pool mechanism spec.md leaves unspecified beyond "blocks
	// become reusable once no reader can still observe them".
	AvailableList = NLists

	// TotalLists is the number of head cells the header reserves.
	TotalLists = NLists + 1

	// headerOffset is where the embedded shelf heap header begins,
	// right after the TotalLists head cells.
	headerOffset = int64(TotalLists) * CacheLineBytes
)

// Heap is an opened Epoch Zone Heap.
type Heap struct {
	mem          []byte
	headerOffset int64
	dataOffset   int64
	granule      int64
	shelfID      gptr.ShelfID

	bump *shelfheap.Heap

	owningRegion *region.Region
	cleaner      *cleaner
	metrics      *metrics
}

// Create formats a new Epoch Zone Heap of sizeBytes data capacity on
// the pool's configured zone shelf.
func Create(p *pool.Pool, sizeBytes int64) error {
	cfg := nvmmconfig.Default()
	total := headerOffset + shelfheap.HeaderSize + sizeBytes
	r, err := p.AddShelf(cfg.ZoneShelfIndex, total)
	if err != nil {
		return err
	}
	defer r.Close()

	mem, err := r.Map(region.ReadWrite)
	if err != nil {
		return nvmerr.Wrap(err, "epochzone: failed to map zone shelf for create")
	}
	defer r.Unmap()

	clear(mem[:headerOffset])
	return shelfheap.CreateAt(mem, headerOffset, sizeBytes)
}

// Destroy removes the pool's zone shelf entirely.
func Destroy(p *pool.Pool) error {
	cfg := nvmmconfig.Default()
	return p.RemoveShelf(cfg.ZoneShelfIndex)
}

// Open opens a previously created Epoch Zone Heap, using mgr to compute
// reported_epoch for its background cleaner and errorLogger to report
// failures the cleaner encounters asynchronously (see
// nvmerr.ErrorLogger). Open starts that cleaner and blocks until it has
// reached the running state before returning the Heap, so that no
// caller can observe a Heap whose deferred-free buckets are not yet
// being drained: Alloc and Free never race with a not-yet-running
// cleaner, mirroring the mutex/condition-variable startup handshake the
// original allocator's Open performs around StartWorker.
func Open(p *pool.Pool, mgr *epoch.Manager, cfg nvmmconfig.Configuration, errorLogger nvmerr.ErrorLogger) (*Heap, error) {
	r, err := p.OpenShelf(cfg.ZoneShelfIndex)
	if err != nil {
		return nil, err
	}
	mem, err := r.Map(region.ReadWrite)
	if err != nil {
		r.Close()
		return nil, nvmerr.Wrap(err, "epochzone: failed to map zone shelf for open")
	}
	bump, err := shelfheap.OpenAt(mem, headerOffset)
	if err != nil {
		r.Unmap()
		r.Close()
		return nil, err
	}
	h := &Heap{
		mem:          mem,
		headerOffset: headerOffset,
		dataOffset:   headerOffset + shelfheap.HeaderSize,
		granule:      cfg.MinAllocSize,
		shelfID:      gptr.ShelfID{PoolID: p.ID(), ShelfIndex: cfg.ZoneShelfIndex},
		bump:         bump,
		owningRegion: r,
		metrics:      newMetrics(),
	}
	h.cleaner = newCleaner(h, mgr, cfg, errorLogger)
	h.cleaner.start()
	return h, nil
}

// Close stops the cleaner if running and unmaps the zone shelf.
func (h *Heap) Close() error {
	if h.cleaner != nil {
		h.cleaner.stop()
		h.cleaner = nil
	}
	if h.owningRegion == nil {
		return nil
	}
	r := h.owningRegion
	h.owningRegion = nil
	if err := r.Unmap(); err != nil {
		return nvmerr.HeapCloseFailed(err.Error())
	}
	return r.Close()
}

// Size returns the heap's total data capacity in bytes.
func (h *Heap) Size() int64 {
	return h.bump.Size()
}

func (h *Heap) toGlobalPtr(offset int64) gptr.GlobalPtr {
	return gptr.GlobalPtr{Shelf: h.shelfID, Offset: offset}
}

// indexOf validates that p was allocated from this heap at a
// granule-aligned offset and returns its 1-based granule index.
func (h *Heap) indexOf(p gptr.GlobalPtr) (uint32, error) {
	if p.Shelf != h.shelfID {
		return 0, nvmerr.FailedPrecondition("epochzone: GlobalPtr addresses a different shelf")
	}
	rel := p.Offset - h.dataOffset
	if rel < 0 || rel%h.granule != 0 {
		return 0, nvmerr.FailedPrecondition("epochzone: GlobalPtr offset is not granule-aligned")
	}
	return uint32(rel/h.granule) + 1, nil
}

// Alloc allocates size bytes and returns a GlobalPtr to the new block,
// or the null GlobalPtr on out-of-memory. Allocations of at most one
// granule are served from the reuse pool first.
func (h *Heap) Alloc(size int64) gptr.GlobalPtr {
	if size <= h.granule {
		if index, ok := h.pop(AvailableList); ok {
			h.metrics.allocsReused.Inc()
			return h.toGlobalPtr(h.dataOffset + int64(index-1)*h.granule)
		}
	}
	offset := h.bump.Alloc(size)
	if offset == 0 {
		return gptr.Null(h.shelfID)
	}
	h.metrics.allocsBumped.Inc()
	return h.toGlobalPtr(offset)
}

// AllocUnderEpoch is Alloc for a caller that already holds an open
// critical section. Allocation itself needs no epoch protection — only
// Free's deferred-bucket placement does — but a caller already inside
// a lease uses this form for symmetry with Free, and it additionally
// records op's entry epoch in the reported_epoch gauge.
func (h *Heap) AllocUnderEpoch(op *epoch.EpochOp, size int64) gptr.GlobalPtr {
	if op != nil {
		h.metrics.observeEpoch(op.ReportedEpoch())
	}
	return h.Alloc(size)
}

// Free defers reclamation of p until reported_epoch proves no reader
// entered before op's own entry epoch can still observe it: it pushes
// p's granule index onto bucket (e+3) mod NLists, where e is op's
// entry epoch. p must have been allocated at a size of at most one
// granule; freeing a larger allocation this way only reclaims its
// first granule and leaks the remainder, consistent with this module
// carrying no size classes or coalescing.
func (h *Heap) Free(op *epoch.EpochOp, p gptr.GlobalPtr) {
	index, err := h.indexOf(p)
	if err != nil {
		return
	}
	bucket := uint32((op.ReportedEpoch() + 3) % NLists)
	h.push(bucket, index)
	h.metrics.deferredFrees.Inc()
}

// FreeUnprotected returns p directly to the reuse pool, skipping the
// epoch grace period. The caller must be certain no other participant
// holds an EpochOp that could still dereference p — e.g. because p was
// never published outside the freeing thread, or because every other
// participant has already been independently quiesced.
func (h *Heap) FreeUnprotected(p gptr.GlobalPtr) {
	index, err := h.indexOf(p)
	if err != nil {
		return
	}
	h.push(AvailableList, index)
	h.metrics.unprotectedFrees.Inc()
}

// GlobalToLocal converts a GlobalPtr addressing this heap into a
// process-local pointer. It fails if p does not address this heap or
// lies outside its mapped data area.
func (h *Heap) GlobalToLocal(p gptr.GlobalPtr) (unsafe.Pointer, error) {
	if p.Shelf != h.shelfID {
		return nil, nvmerr.FailedPrecondition("epochzone: GlobalPtr addresses a different shelf")
	}
	if p.Offset < h.dataOffset || p.Offset >= h.dataOffset+h.bump.Size() {
		return nil, nvmerr.FailedPrecondition("epochzone: GlobalPtr offset out of range")
	}
	return unsafe.Pointer(&h.mem[p.Offset]), nil
}

// AtOffset returns a byte slice view, the same convenience shelfheap.Heap
// offers, for callers that would rather stay in slice arithmetic than
// cross into unsafe.Pointer.
func (h *Heap) AtOffset(p gptr.GlobalPtr, size int64) ([]byte, error) {
	if p.Shelf != h.shelfID {
		return nil, nvmerr.FailedPrecondition("epochzone: GlobalPtr addresses a different shelf")
	}
	if p.Offset < h.dataOffset || p.Offset+size > h.dataOffset+h.bump.Size() {
		return nil, nvmerr.FailedPrecondition("epochzone: range out of bounds")
	}
	return h.mem[p.Offset : p.Offset+size], nil
}
