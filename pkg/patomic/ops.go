package patomic

import "sync/atomic"

// LoadUint64 atomically loads an 8-byte little-endian-native value from
// mem at offset.
func LoadUint64(mem []byte, offset int64) uint64 {
	return atomic.LoadUint64(ptr64(mem, offset))
}

// StoreUint64 atomically stores val into mem at offset.
func StoreUint64(mem []byte, offset int64, val uint64) {
	atomic.StoreUint64(ptr64(mem, offset), val)
}

// CompareAndSwapUint64 atomically compares-and-swaps the 8 bytes at
// offset, exactly as spec.md requires for next_free and the epoch
// stack heads: it is the only synchronization primitive used by the
// shelf heap and the per-epoch stacks.
func CompareAndSwapUint64(mem []byte, offset int64, old, new uint64) bool {
	return atomic.CompareAndSwapUint64(ptr64(mem, offset), old, new)
}

// AddUint64 atomically adds delta to the value at offset and returns the
// new value.
func AddUint64(mem []byte, offset int64, delta uint64) uint64 {
	return atomic.AddUint64(ptr64(mem, offset), delta)
}

// LoadUint32 atomically loads a 4-byte value from mem at offset.
func LoadUint32(mem []byte, offset int64) uint32 {
	return atomic.LoadUint32(ptr32(mem, offset))
}

// StoreUint32 atomically stores val into mem at offset.
func StoreUint32(mem []byte, offset int64, val uint32) {
	atomic.StoreUint32(ptr32(mem, offset), val)
}

// CompareAndSwapUint32 atomically compares-and-swaps the 4 bytes at
// offset.
func CompareAndSwapUint32(mem []byte, offset int64, old, new uint32) bool {
	return atomic.CompareAndSwapUint32(ptr32(mem, offset), old, new)
}
