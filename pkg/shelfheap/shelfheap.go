// Package shelfheap implements the Shelf Heap: a bump-pointer allocator
// over one Persistent Region, offset-based, lock-free, and
// crash-recoverable. It is the lowest of the four core components
// (spec.md §4.1): allocation is a bounded CAS retry loop over a single
// persistent cursor, and Free is a documented no-op — reclamation is
// the Epoch Zone Heap's job, layered on top in pkg/epochzone.
package shelfheap

import (
	"unsafe"

	"github.com/nvmmheap/nvmm/pkg/nvmerr"
	"github.com/nvmmheap/nvmm/pkg/patomic"
	"github.com/nvmmheap/nvmm/pkg/region"
)

const (
	// CacheLineBytes is the alignment and rounding unit for every
	// persistent header field and every allocation.
	CacheLineBytes = 64

	// Magic is the fixed sentinel stored in the header's first
	// cache line once Create has fully initialized it.
	Magic uint64 = 684327

	offsetMagic    = 0
	offsetCapacity = 1 * CacheLineBytes
	offsetNextFree = 2 * CacheLineBytes

	// HeaderSize is the number of bytes a Shelf Heap header occupies
	// ahead of its data area: 3 cache lines, and also the smallest
	// valid allocation offset relative to the header's own base.
	HeaderSize = 3 * CacheLineBytes
)

// RoundUp rounds size up to the next multiple of CacheLineBytes.
func RoundUp(size int64) int64 {
	return (size + CacheLineBytes - 1) / CacheLineBytes * CacheLineBytes
}

// Heap is an opened Shelf Heap. A Heap built by OpenAt borrows the
// backing memory mapping from its caller (such as the zone variant's
// overlay inside a larger header shelf) and its Close only drops the
// Heap's own bookkeeping; a Heap built by Open owns the mapping of its
// pkg/region.Region and its Close unmaps it.
type Heap struct {
	mem          []byte
	headerOffset int64
	capacity     int64
	dataOffset   int64

	// owningRegion is set only when Open (as opposed to OpenAt) was
	// used to construct this Heap; Close then unmaps it. OpenAt
	// callers (pkg/epochzone) manage their region's mapping
	// lifetime themselves.
	owningRegion *region.Region
}

// CreateAt formats a Shelf Heap header at headerOffset within mem,
// giving it capacity bytes of data area. The capacity bytes after the
// header are zeroed explicitly; within the header only the capacity,
// next_free and magic words are written, and the remaining bytes of its
// three cache lines are left as they were.
//
// The magic sentinel is stored and persisted last. This ordering is the
// crash-consistency witness used by Verify: if a crash occurs after
// capacity/next_free are written but before magic is, Verify (and hence
// Open) correctly reports the heap as never having been created.
func CreateAt(mem []byte, headerOffset, capacity int64) error {
	if headerOffset < 0 || headerOffset+HeaderSize+capacity > int64(len(mem)) {
		return nvmerr.FailedPrecondition("shelfheap: header/capacity exceed mapped region")
	}

	dataOffset := headerOffset + HeaderSize
	clear(mem[dataOffset : dataOffset+capacity])

	patomic.StoreUint64(mem, headerOffset+offsetCapacity, uint64(capacity))
	patomic.StoreUint64(mem, headerOffset+offsetNextFree, uint64(dataOffset))

	// Magic last: the witness that the header above is fully
	// initialized and persistent.
	patomic.StoreUint64(mem, headerOffset+offsetMagic, Magic)
	return nil
}

// DestroyAt clears magic first (so a concurrent Verify observes the
// heap as destroyed as early as possible), then zeroes the remainder of
// the header and the data area.
func DestroyAt(mem []byte, headerOffset int64) error {
	capacity := int64(patomic.LoadUint64(mem, headerOffset+offsetCapacity))
	patomic.StoreUint64(mem, headerOffset+offsetMagic, 0)
	clear(mem[headerOffset+offsetCapacity : headerOffset+HeaderSize])
	dataOffset := headerOffset + HeaderSize
	if dataOffset+capacity <= int64(len(mem)) {
		clear(mem[dataOffset : dataOffset+capacity])
	}
	return nil
}

// VerifyAt returns nil iff the header at headerOffset carries the magic
// sentinel. A mismatch is an ordinary recoverable result, not treated as
// fatal corruption: it is also what a never-created or already-Destroy'd
// heap looks like, and spec.md's own verify-after-create/destroy
// invariant requires exactly this failure to be reported back to the
// caller rather than crash the process.
func VerifyAt(mem []byte, headerOffset int64) error {
	if patomic.LoadUint64(mem, headerOffset+offsetMagic) != Magic {
		return nvmerr.HeapOpenFailed("shelf heap magic mismatch")
	}
	return nil
}

// OpenAt validates the header at headerOffset and returns a Heap bound
// to mem.
func OpenAt(mem []byte, headerOffset int64) (*Heap, error) {
	if err := VerifyAt(mem, headerOffset); err != nil {
		return nil, err
	}
	capacity := int64(patomic.LoadUint64(mem, headerOffset+offsetCapacity))
	return &Heap{
		mem:          mem,
		headerOffset: headerOffset,
		capacity:     capacity,
		dataOffset:   headerOffset + HeaderSize,
	}, nil
}

// Close drops the Heap's bookkeeping. If this Heap was constructed via
// Open, it also unmaps the underlying region; Heaps constructed via
// OpenAt leave that to their caller.
func (h *Heap) Close() error {
	h.mem = nil
	if h.owningRegion != nil {
		r := h.owningRegion
		h.owningRegion = nil
		if err := r.Unmap(); err != nil {
			return nvmerr.HeapCloseFailed(err.Error())
		}
	}
	return nil
}

// Size returns the heap's capacity in bytes, excluding the header.
func (h *Heap) Size() int64 {
	return h.capacity
}

// Alloc allocates size bytes, rounded up to a cache line multiple, and
// returns the offset of the new block relative to the start of mem, or
// 0 on out-of-memory. Offset 0 is never a valid allocation (the header
// itself occupies byte 0 of whichever region this heap's header lives
// in directly, or HeaderSize bytes precede the data area of an
// overlaid header), so 0 doubles as the null result.
func (h *Heap) Alloc(size int64) int64 {
	need := RoundUp(size)
	for {
		expected := patomic.LoadUint64(h.mem, h.headerOffset+offsetNextFree)
		desired := expected + uint64(need)
		if int64(desired)-h.dataOffset > h.capacity {
			return 0
		}
		if patomic.CompareAndSwapUint64(h.mem, h.headerOffset+offsetNextFree, expected, desired) {
			return int64(expected)
		}
	}
}

// Free is a documented no-op. The shelf heap has no free list; blocks
// handed back through this call are permanently unusable. pkg/epochzone
// never calls it: its Heap.Free and Heap.FreeUnprotected keep freed
// blocks on the zone heap's own stacks for reuse instead.
func (h *Heap) Free(offset int64) {}

// IsValidOffset reports whether offset lies in this heap's allocatable
// range.
func (h *Heap) IsValidOffset(offset int64) bool {
	return offset >= h.dataOffset && offset < h.dataOffset+h.capacity
}

// AtOffset returns a byte slice view of size bytes starting at offset,
// which must lie within this heap's range. This is the "offset to
// pointer" conversion of spec.md §4.1, expressed as a slice rather than
// a raw address since Go code must never hold a bare unsafe.Pointer
// across a potential garbage-collector move of the underlying mapping
// (mmap'd memory is not GC-managed, but staying within slice arithmetic
// keeps bounds checking intact).
func (h *Heap) AtOffset(offset, size int64) []byte {
	return h.mem[offset : offset+size]
}

// OffsetOf computes the offset of b relative to the start of mem, if b
// is a sub-slice of mem.
func (h *Heap) OffsetOf(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	memBase := uintptr(unsafe.Pointer(&h.mem[0]))
	bBase := uintptr(unsafe.Pointer(&b[0]))
	if bBase < memBase || bBase >= memBase+uintptr(len(h.mem)) {
		return 0, false
	}
	return int64(bBase - memBase), true
}

// OffsetToPointer is AtOffset's raw-pointer counterpart, for callers
// that must interoperate with a C-style API taking a bare address
// rather than a slice.
func (h *Heap) OffsetToPointer(offset int64) unsafe.Pointer {
	return unsafe.Pointer(&h.mem[offset])
}

// PointerToOffset is OffsetToPointer's inverse: OffsetOf against a
// single address rather than a slice.
func (h *Heap) PointerToOffset(p unsafe.Pointer) (int64, bool) {
	memBase := uintptr(unsafe.Pointer(&h.mem[0]))
	pBase := uintptr(p)
	if pBase < memBase || pBase >= memBase+uintptr(len(h.mem)) {
		return 0, false
	}
	return int64(pBase - memBase), true
}

// Create maps r, formats a fresh Shelf Heap occupying the whole region
// with the given capacity, and unmaps it again. r must already exist
// (see region.Create) with size at least HeaderSize+capacity.
func Create(r *region.Region, capacity int64) error {
	if r.Size() < HeaderSize+capacity {
		return nvmerr.HeapCreateFailed("region too small for requested capacity")
	}
	mem, err := r.Map(region.ReadWrite)
	if err != nil {
		return nvmerr.Wrap(err, "shelfheap: failed to map region for create")
	}
	defer r.Unmap()
	return CreateAt(mem, 0, capacity)
}

// Destroy maps r, clears the header, and unmaps it.
func Destroy(r *region.Region) error {
	mem, err := r.Map(region.ReadWrite)
	if err != nil {
		return nvmerr.Wrap(err, "shelfheap: failed to map region for destroy")
	}
	defer r.Unmap()
	return DestroyAt(mem, 0)
}

// Verify maps r just long enough to check whether it carries a
// formatted Shelf Heap header, then unmaps it. It returns nil
// immediately after Create, and a not-nil error immediately after
// Destroy, without requiring the caller to keep the region mapped.
func Verify(r *region.Region) error {
	mem, err := r.Map(region.ReadWrite)
	if err != nil {
		return nvmerr.Wrap(err, "shelfheap: failed to map region for verify")
	}
	defer r.Unmap()
	return VerifyAt(mem, 0)
}

// Open maps r (leaving it mapped for the lifetime of the returned Heap)
// and validates the header occupying the whole region.
func Open(r *region.Region) (*Heap, error) {
	mem, err := r.Map(region.ReadWrite)
	if err != nil {
		return nil, nvmerr.Wrap(err, "shelfheap: failed to map region for open")
	}
	h, err := OpenAt(mem, 0)
	if err != nil {
		r.Unmap()
		return nil, err
	}
	h.owningRegion = r
	return h, nil
}
