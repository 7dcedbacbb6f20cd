// Package epoch implements the Epoch Manager (spec.md §5): the
// process-wide collaborator that tracks a monotonically advancing
// frontier_epoch, derives a reported_epoch safe for reclamation, and
// hands out scoped critical-section leases to readers.
//
// The persistent state lives on one dedicated epoch shelf, a standalone
// file shared by every process that opens the same path, formatted the same way the
// shelf heap formats its own header: fixed fields first, a magic
// sentinel stored last as the create-is-complete witness.
package epoch

import (
	"github.com/nvmmheap/nvmm/pkg/nvmerr"
	"github.com/nvmmheap/nvmm/pkg/patomic"
	"github.com/nvmmheap/nvmm/pkg/region"

	"google.golang.org/grpc/codes"
)

const (
	// CacheLineBytes matches the shelf heap's alignment unit; the epoch
	// shelf's fixed fields each occupy one cache line so that no two of
	// them ever share a line under concurrent access.
	CacheLineBytes = 64

	// Magic is the sentinel distinguishing a formatted epoch shelf from
	// an all-zero one. It intentionally differs from shelfheap.Magic:
	// the two headers are never mistaken for one another, and an epoch
	// shelf is never opened as a shelf heap or vice versa.
	Magic uint64 = 826451

	offsetMagic           = 0
	offsetMaxParticipants = 1 * CacheLineBytes
	offsetFrontier        = 2 * CacheLineBytes
	offsetReported        = 3 * CacheLineBytes
	offsetSlots           = 4 * CacheLineBytes

	// slotWidth is the byte width of one participant slot.
	slotWidth = 8

	// DefaultMaxParticipants bounds the number of concurrent critical
	// sections the shelf can track; spec.md leaves the exact figure an
	// implementation choice, so this follows the same order of
	// magnitude as the teacher's default connection-pool sizing.
	DefaultMaxParticipants = 256

	// slotActive marks a slot as claimed by a live EpochOp; the epoch
	// it entered at occupies the remaining 63 bits. A zero slot is
	// free for the next EnterCritical call to claim.
	slotActive    uint64 = 1 << 63
	slotEpochMask        = slotActive - 1

	// startEpoch is the first epoch value ever handed out. Zero is
	// reserved so an all-zero slot unambiguously means "idle".
	startEpoch uint64 = 1
)

// HeaderSize returns the number of bytes an epoch shelf occupies for a
// given participant capacity.
func HeaderSize(maxParticipants uint32) int64 {
	return offsetSlots + int64(maxParticipants)*slotWidth
}

func slotOffset(index uint32) int64 {
	return offsetSlots + int64(index)*slotWidth
}

// Manager is an opened handle onto one epoch shelf. It is safe for
// concurrent use by multiple goroutines within one process; multiple
// Manager instances across processes may share the same backing region
// as long as each opens its own mapping.
type Manager struct {
	mem             []byte
	maxParticipants uint32
	owningRegion    *region.Region
}

// Start formats a fresh epoch shelf at path if absent, then opens it.
// It is the epoch-shelf analogue of shelfheap.Create followed by Open,
// collapsed into one call because callers of the Epoch Manager never
// need the two steps separated: nothing is allocated from an epoch
// shelf the way blocks are allocated from a data shelf.
func Start(path string, maxParticipants uint32) (*Manager, error) {
	if maxParticipants == 0 {
		maxParticipants = DefaultMaxParticipants
	}
	size := HeaderSize(maxParticipants)
	if err := region.Create(path, size); err != nil {
		if nvmerr.Code(err) != codes.AlreadyExists {
			return nil, nvmerr.Wrap(err, "epoch: failed to create epoch shelf")
		}
	}
	r, err := region.Open(path, region.ReadWrite)
	if err != nil {
		return nil, nvmerr.Wrap(err, "epoch: failed to open epoch shelf")
	}
	mem, err := r.Map(region.ReadWrite)
	if err != nil {
		return nil, nvmerr.Wrap(err, "epoch: failed to map epoch shelf")
	}

	if patomic.LoadUint64(mem, offsetMagic) != Magic {
		if err := formatAt(mem, maxParticipants); err != nil {
			r.Unmap()
			return nil, err
		}
	}

	actual := uint32(patomic.LoadUint64(mem, offsetMaxParticipants))
	return &Manager{mem: mem, maxParticipants: actual, owningRegion: r}, nil
}

func formatAt(mem []byte, maxParticipants uint32) error {
	if int64(len(mem)) < HeaderSize(maxParticipants) {
		return nvmerr.FailedPrecondition("epoch: region too small for participant capacity")
	}
	clear(mem[offsetMaxParticipants:offsetSlots])
	clear(mem[offsetSlots : offsetSlots+int64(maxParticipants)*slotWidth])
	patomic.StoreUint64(mem, offsetMaxParticipants, uint64(maxParticipants))
	patomic.StoreUint64(mem, offsetFrontier, startEpoch)
	patomic.StoreUint64(mem, offsetReported, 0)
	patomic.StoreUint64(mem, offsetMagic, Magic)
	return nil
}

// Reset removes the epoch shelf at path entirely. A subsequent Start
// formats a brand new one with no memory of previously reported
// epochs; callers must be certain no other process still references
// the shelf, exactly as with pkg/shelfheap's Destroy.
func Reset(path string) error {
	return region.Destroy(path)
}

// Open opens a previously started epoch shelf without attempting to
// create it. A magic mismatch here is an ordinary recoverable condition
// (the shelf was never formatted, or was Reset out from under this
// caller) and is reported as such, the same as spec.md's own
// verify-after-destroy invariant for the shelf heap: callers that need
// "was this shelf actually created" as a yes/no answer call Open and
// check the error rather than crashing the process on the first miss.
func Open(path string) (*Manager, error) {
	r, err := region.Open(path, region.ReadWrite)
	if err != nil {
		return nil, nvmerr.Wrap(err, "epoch: failed to open epoch shelf")
	}
	mem, err := r.Map(region.ReadWrite)
	if err != nil {
		r.Close()
		return nil, nvmerr.Wrap(err, "epoch: failed to map epoch shelf")
	}
	if patomic.LoadUint64(mem, offsetMagic) != Magic {
		r.Unmap()
		return nil, nvmerr.HeapOpenFailed("epoch: magic mismatch")
	}
	maxParticipants := uint32(patomic.LoadUint64(mem, offsetMaxParticipants))
	return &Manager{mem: mem, maxParticipants: maxParticipants, owningRegion: r}, nil
}

// Close unmaps the epoch shelf. It does not release any slot this
// process may still hold claimed; callers must exit every outstanding
// EpochOp first.
func (m *Manager) Close() error {
	if m.owningRegion == nil {
		return nil
	}
	r := m.owningRegion
	m.owningRegion = nil
	if err := r.Unmap(); err != nil {
		return nvmerr.HeapCloseFailed(err.Error())
	}
	return nil
}

// FrontierEpoch returns the current frontier_epoch: the newest epoch
// any future critical section will observe on entry.
func (m *Manager) FrontierEpoch() uint64 {
	return patomic.LoadUint64(m.mem, offsetFrontier)
}

// advanceFrontier makes a single best-effort attempt to push
// frontier_epoch forward by one and returns the resulting value
// regardless of whether this call's own CAS won the race. Design notes
// leave the advancement policy open; tying it to traffic on
// EnterCritical keeps the frontier moving without a separate ticking
// goroutine, and the slack absorbed by N_LISTS in pkg/epochzone covers
// the resulting looseness between frontier_epoch and reported_epoch.
func (m *Manager) advanceFrontier() uint64 {
	cur := patomic.LoadUint64(m.mem, offsetFrontier)
	if patomic.CompareAndSwapUint64(m.mem, offsetFrontier, cur, cur+1) {
		return cur + 1
	}
	return patomic.LoadUint64(m.mem, offsetFrontier)
}

// ReportedEpoch computes and returns the current reported_epoch: the
// largest R such that no participant anywhere is inside a critical
// section entered at an epoch <= R. The result is ratcheted through a
// persistent compare-and-swap against the previous reported_epoch, so
// that successive calls — from this process or any other attached to
// the same shelf — never observe it move backwards, even though the
// minimum active epoch across slots is not itself guaranteed monotone
// moment-to-moment during a race between a slot write and a concurrent
// frontier advance.
func (m *Manager) ReportedEpoch() uint64 {
	candidate := m.minActiveEpoch()
	for {
		cur := patomic.LoadUint64(m.mem, offsetReported)
		if candidate <= cur {
			return cur
		}
		if patomic.CompareAndSwapUint64(m.mem, offsetReported, cur, candidate) {
			return candidate
		}
	}
}

// minActiveEpoch scans every slot and returns one less than the
// smallest active epoch found, or the current frontier_epoch if no
// slot is active.
func (m *Manager) minActiveEpoch() uint64 {
	frontier := m.FrontierEpoch()
	min := frontier
	found := false
	for i := uint32(0); i < m.maxParticipants; i++ {
		v := patomic.LoadUint64(m.mem, slotOffset(i))
		if v&slotActive == 0 {
			continue
		}
		e := v & slotEpochMask
		if !found || e < min {
			min = e
			found = true
		}
	}
	if !found {
		return frontier
	}
	if min == 0 {
		return 0
	}
	return min - 1
}

// ExistsActiveCritical reports whether any participant currently holds
// an open critical section, a racy hint used by callers deciding
// whether it is safe to skip quiescing before a fork.
func (m *Manager) ExistsActiveCritical() bool {
	for i := uint32(0); i < m.maxParticipants; i++ {
		if patomic.LoadUint64(m.mem, slotOffset(i))&slotActive != 0 {
			return true
		}
	}
	return false
}
