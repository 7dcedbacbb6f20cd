// Package region implements a Persistent Region: a named, fixed-length
// byte extent backed by a file, mappable into a process's address space
// with SHARED semantics so that multiple processes observe the same
// bytes. It has no internal structure of its own — callers (pkg/shelfheap,
// pkg/epoch, pkg/epochzone) write their own headers at offset 0.
//
// This generalizes the teacher's pkg/blockdevice, which modeled a
// read-mostly block device (reads through a memory map, writes through
// pwrite for performance). A Persistent Region instead maps
// PROT_READ|PROT_WRITE, because its callers perform persistent
// compare-and-swap directly against the mapped bytes — the CAS has to
// be a genuine atomic CPU instruction on live memory, not a system
// call.
package region

import (
	"os"

	"github.com/nvmmheap/nvmm/pkg/nvmerr"
)

// OpenMode selects the access mode a Region is opened with.
type OpenMode int

const (
	// ReadWrite opens the region for both reading and writing. This
	// is the mode every component in this module uses, since
	// metadata mutation happens through atomic operations on the
	// mapping itself.
	ReadWrite OpenMode = iota
	// ReadOnly opens the region for reading only.
	ReadOnly
)

// Region is a handle to a Persistent Region. It does not hold a mapping
// until Map is called.
type Region struct {
	path     string
	file     *os.File
	sizeByte int64
	mapping  *mapping
}

// Create creates a new Persistent Region backed by a file at path with
// the given size. It fails with nvmerr.ShelfFileNotFound-flavoured
// errors if the parent directory does not exist.
func Create(path string, sizeBytes int64) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0o666)
	if err != nil {
		if os.IsExist(err) {
			return nvmerr.PoolFound(path)
		}
		if os.IsNotExist(err) {
			return nvmerr.ShelfFileNotFound(path)
		}
		return nvmerr.Wrapf(err, "Failed to create region file %q", path)
	}
	defer f.Close()

	if err := f.Truncate(sizeBytes); err != nil {
		os.Remove(path)
		return nvmerr.Wrapf(err, "Failed to truncate region file %q to %d bytes", path, sizeBytes)
	}
	return nil
}

// Destroy removes the backing file of a Persistent Region.
func Destroy(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nvmerr.ShelfFileNotFound(path)
		}
		return nvmerr.Wrapf(err, "Failed to remove region file %q", path)
	}
	return nil
}

// Open opens an existing Persistent Region. The caller must call Map
// before accessing any bytes, and Close when done.
func Open(path string, mode OpenMode) (*Region, error) {
	flags := os.O_RDWR
	if mode == ReadOnly {
		flags = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nvmerr.ShelfFileNotFound(path)
		}
		return nil, nvmerr.Wrapf(err, "Failed to open region file %q", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nvmerr.Wrapf(err, "Failed to stat region file %q", path)
	}
	return &Region{
		path:     path,
		file:     f,
		sizeByte: info.Size(),
	}, nil
}

// Size returns the byte size of the region.
func (r *Region) Size() int64 {
	return r.sizeByte
}

// Path returns the backing file path.
func (r *Region) Path() string {
	return r.path
}

// Close closes the file descriptor underlying the region. It does not
// unmap any outstanding mapping; callers must call Unmap first.
func (r *Region) Close() error {
	if err := r.file.Close(); err != nil {
		return nvmerr.Wrapf(err, "Failed to close region file %q", r.path)
	}
	return nil
}

// Sync flushes any previous writes against the region to the backing
// storage medium, blocking until persisted.
func (r *Region) Sync() error {
	return r.file.Sync()
}
