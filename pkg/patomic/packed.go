package patomic

// PackedCell is a 64-bit value combining a 32-bit index and a 32-bit
// ABA tag, used by the per-epoch free stacks (spec.md §4.5). A zero
// index denotes "empty / end-of-stack".
type PackedCell uint64

// Pack combines an index and a tag into a PackedCell.
func Pack(index, tag uint32) PackedCell {
	return PackedCell(uint64(index) | uint64(tag)<<32)
}

// Index extracts the 32-bit index from a PackedCell.
func (c PackedCell) Index() uint32 {
	return uint32(c)
}

// Tag extracts the 32-bit ABA tag from a PackedCell.
func (c PackedCell) Tag() uint32 {
	return uint32(c >> 32)
}

// Next returns the same index with the tag bumped by one, wrapping on
// overflow. Used to prevent ABA across concurrent pushers/poppers that
// happen to free and reuse the same index between a reader's load and
// CAS.
func (c PackedCell) Next(index uint32) PackedCell {
	return Pack(index, c.Tag()+1)
}

// LoadCell atomically loads a packed cell from mem at offset.
func LoadCell(mem []byte, offset int64) PackedCell {
	return PackedCell(LoadUint64(mem, offset))
}

// CompareAndSwapCell atomically compares-and-swaps a packed cell.
func CompareAndSwapCell(mem []byte, offset int64, old, new PackedCell) bool {
	return CompareAndSwapUint64(mem, offset, uint64(old), uint64(new))
}
