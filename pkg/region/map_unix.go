//go:build darwin || freebsd || linux
// +build darwin freebsd linux

package region

import (
	"github.com/nvmmheap/nvmm/pkg/faultfabric"
	"github.com/nvmmheap/nvmm/pkg/nvmerr"

	"golang.org/x/sys/unix"
)

// mapping holds the bytes and the fabric-coherence registration for an
// outstanding Map() call.
type mapping struct {
	data   []byte
	fabric *faultfabric.Handle
}

// Map maps the region into the process's address space with SHARED
// semantics. Identical addresses across processes are not guaranteed,
// nor required by any caller in this module: every consumer addresses
// mapped bytes by offset, never by raw pointer value, except where that
// pointer is immediately dereferenced within the same process (see
// pkg/shelfheap's OffsetToPointer).
func (r *Region) Map(mode OpenMode) ([]byte, error) {
	if err := nvmerr.Precondition(r.mapping == nil, "region: already mapped"); err != nil {
		return nil, err
	}
	prot := unix.PROT_READ
	if mode == ReadWrite {
		prot |= unix.PROT_WRITE
	}
	data, err := unix.Mmap(int(r.file.Fd()), 0, int(r.sizeByte), prot, unix.MAP_SHARED)
	if err != nil {
		return nil, nvmerr.Wrapf(err, "Failed to memory map region %q", r.path)
	}
	fabric, err := faultfabric.Register(data)
	if err != nil {
		unix.Munmap(data)
		return nil, nvmerr.Wrapf(err, "Failed to register region %q for fabric coherence", r.path)
	}
	r.mapping = &mapping{data: data, fabric: fabric}
	return data, nil
}

// Unmap reverses Map. It is a no-op if the region is not currently
// mapped.
func (r *Region) Unmap() error {
	if r.mapping == nil {
		return nil
	}
	m := r.mapping
	r.mapping = nil

	unregisterErr := m.fabric.Unregister()
	unmapErr := unix.Munmap(m.data)
	if unmapErr != nil {
		unmapErr = nvmerr.Wrapf(unmapErr, "Failed to unmap region %q", r.path)
	}
	return nvmerr.Combine(unregisterErr, unmapErr)
}
