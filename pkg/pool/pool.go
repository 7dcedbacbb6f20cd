// Package pool implements the minimal shelf-naming and pool-management
// collaborator that spec.md treats as out of scope for the core design,
// but without which EpochZoneHeap.Create has nowhere to put its shelves.
//
// A Pool is a directory of shelf files, named shelf.<index>, grounded on
// the teacher's NewBlockDeviceFromFile create-truncate idiom
// (pkg/blockdevice), generalized from one file to a directory of them.
package pool

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvmmheap/nvmm/pkg/nvmerr"
	"github.com/nvmmheap/nvmm/pkg/region"
)

// Pool is a named group of shelves living under one directory.
type Pool struct {
	id  uint32
	dir string
}

func shelfPath(dir string, index uint32) string {
	return filepath.Join(dir, fmt.Sprintf("shelf.%d", index))
}

// Create creates a new pool at dir, which must not already exist.
func Create(id uint32, dir string) (*Pool, error) {
	if err := os.Mkdir(dir, 0o777); err != nil {
		if os.IsExist(err) {
			return nil, nvmerr.PoolFound(dir)
		}
		return nil, nvmerr.Wrapf(err, "Failed to create pool directory %q", dir)
	}
	return &Pool{id: id, dir: dir}, nil
}

// Open opens an existing pool at dir.
func Open(id uint32, dir string) (*Pool, error) {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, nvmerr.PoolNotFound(dir)
	}
	return &Pool{id: id, dir: dir}, nil
}

// Destroy removes a pool's directory and every shelf file in it. It
// fails with PoolNotFound if the directory is absent, per spec.md §6.
func Destroy(dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return nvmerr.PoolNotFound(dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return nvmerr.Wrapf(err, "Failed to remove pool directory %q", dir)
	}
	return nil
}

// ID returns the pool's identifier.
func (p *Pool) ID() uint32 {
	return p.id
}

// AddShelf creates a new shelf at the given index within the pool and
// returns a Region for it, sized sizeBytes.
func (p *Pool) AddShelf(index uint32, sizeBytes int64) (*region.Region, error) {
	path := shelfPath(p.dir, index)
	if err := region.Create(path, sizeBytes); err != nil {
		return nil, err
	}
	return region.Open(path, region.ReadWrite)
}

// OpenShelf opens a previously created shelf by index.
func (p *Pool) OpenShelf(index uint32) (*region.Region, error) {
	return region.Open(shelfPath(p.dir, index), region.ReadWrite)
}

// RemoveShelf destroys the shelf at the given index.
func (p *Pool) RemoveShelf(index uint32) error {
	return region.Destroy(shelfPath(p.dir, index))
}
