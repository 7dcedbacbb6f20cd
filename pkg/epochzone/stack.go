package epochzone

import "github.com/nvmmheap/nvmm/pkg/patomic"

// This file implements the lock-free persistent index stack spec.md
// §4.5 describes: a Treiber stack whose head is one packed
// (index, tag) cell and whose links are threaded through the first 8
// bytes of each freed block itself, so the stack needs no storage
// beyond the blocks it already tracks.
//
// Granule indices are 1-based; index 0 means "empty" and doubles as
// the stack's bottom-of-stack sentinel, the same convention
// pkg/gptr uses for a zero offset.

// headOffset returns the byte offset of a bucket's head cell. The
// TotalLists head cells occupy the region's first TotalLists cache
// lines, ahead of h.headerOffset (where the embedded shelf heap's own
// header begins).
func (h *Heap) headOffset(list uint32) int64 {
	return int64(list) * CacheLineBytes
}

func (h *Heap) linkOffset(index uint32) int64 {
	return h.dataOffset + int64(index-1)*h.granule
}

// push threads index onto the front of list, looping until its
// compare-and-swap against the head cell succeeds.
func (h *Heap) push(list uint32, index uint32) {
	headOff := h.headOffset(list)
	linkOff := h.linkOffset(index)
	for {
		old := patomic.LoadCell(h.mem, headOff)
		patomic.StoreUint64(h.mem, linkOff, uint64(old))
		next := patomic.Pack(index, old.Tag()+1)
		if patomic.CompareAndSwapCell(h.mem, headOff, old, next) {
			return
		}
	}
}

// pop removes and returns the index at the front of list, or (0,
// false) if the list is empty.
func (h *Heap) pop(list uint32) (uint32, bool) {
	headOff := h.headOffset(list)
	for {
		old := patomic.LoadCell(h.mem, headOff)
		if old.Index() == 0 {
			return 0, false
		}
		next := patomic.PackedCell(patomic.LoadUint64(h.mem, h.linkOffset(old.Index())))
		desired := patomic.Pack(next.Index(), old.Tag()+1)
		if patomic.CompareAndSwapCell(h.mem, headOff, old, desired) {
			return old.Index(), true
		}
	}
}

// drain pops every index currently on list, invoking fn for each. It
// makes no ordering guarantee beyond LIFO-at-the-time-of-each-pop.
func (h *Heap) drain(list uint32, fn func(index uint32)) int {
	n, _ := h.drainUpTo(list, 1<<30, fn)
	return n
}

// drainUpTo pops at most max indices from list, invoking fn for each.
// It reports the number moved and whether the list was fully drained
// (as opposed to stopping because max was reached) — the cleaner uses
// that distinction to decide whether it may move on to the next
// bucket, or must resume this one on its next pass.
func (h *Heap) drainUpTo(list uint32, max int, fn func(index uint32)) (int, bool) {
	n := 0
	for n < max {
		index, ok := h.pop(list)
		if !ok {
			return n, true
		}
		fn(index)
		n++
	}
	return n, false
}
