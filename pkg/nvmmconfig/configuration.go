// Package nvmmconfig carries the tunables spec.md §6 names as
// "configuration constants the core recognizes". Unlike the teacher's
// pkg/configuration, this is a plain struct rather than a
// protobuf/jsonnet pipeline: that pipeline exists to drive a whole
// server's bootstrap (pkg/global.ApplyConfiguration), and this module
// has no server, CLI, or MemoryManager façade — those are explicitly
// out-of-scope collaborators.
package nvmmconfig

import "time"

// Configuration holds every tunable the core allocator and reclaimer
// recognize.
type Configuration struct {
	// CacheLineBytes is the alignment and rounding unit for every
	// persistent header field and every allocation.
	CacheLineBytes int64

	// MinAllocSize is the shelf heap's allocation granularity, used
	// by the Epoch Zone Heap to convert between byte offsets and
	// the block indices stored in its per-epoch stacks.
	MinAllocSize int64

	// NLists is the number of epoch buckets the deferred-free
	// subsystem cycles through.
	NLists uint32

	// FreeCountPerPass bounds how many blocks the cleaner reclaims
	// per iteration, counted across every bucket that iteration drains.
	FreeCountPerPass int

	// WorkerSleepInterval is the cleaner's coarse poll interval.
	WorkerSleepInterval time.Duration

	// ZoneShelfIndex is the fixed shelf slot number an Epoch Zone
	// Heap's pool uses for its combined header-and-data shelf (deferred-free
	// bucket heads and the embedded shelf heap live on one shelf; see
	// pkg/epochzone).
	//
	// HeaderShelfIndex is the conventional shelf slot number for an
	// Epoch Manager's shelf when a caller chooses to colocate it inside
	// the same pool directory (as shelf.<HeaderShelfIndex>) instead of
	// at the standalone path EpochShelfPath names. pkg/epochzone itself
	// never reads this field: an Epoch Zone Heap takes an already-open
	// *epoch.Manager wherever it needs one, and never owns the manager's
	// lifecycle.
	ZoneShelfIndex   uint32
	HeaderShelfIndex uint32
}

// Default returns the configuration spec.md's defaults describe:
// 64-byte cache lines, 5 epoch buckets, and the other stated defaults.
func Default() Configuration {
	return Configuration{
		CacheLineBytes:      64,
		MinAllocSize:        64,
		NLists:              5,
		FreeCountPerPass:    64,
		WorkerSleepInterval: 10 * time.Millisecond,
		ZoneShelfIndex:      0,
		HeaderShelfIndex:    1,
	}
}

// EpochShelfPath implements the {base_dir}/{user}_NVMM_EPOCH naming
// formula spec.md §6 specifies for the shared epoch shelf.
func EpochShelfPath(baseDir, user string) string {
	return baseDir + "/" + user + "_NVMM_EPOCH"
}
