package nvmerr

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel error constructors for the codes surfaced in spec.md §6.
// NO_ERROR is simply nil and has no constructor here.

// PoolFound indicates an attempt to create a pool that already exists.
func PoolFound(details string) error {
	return status.Error(codes.AlreadyExists, "Pool already exists: "+details)
}

// PoolNotFound indicates an operation addressed a pool that does not
// exist, e.g. Destroy() or Open() on a missing pool.
func PoolNotFound(details string) error {
	return status.Error(codes.NotFound, "Pool not found: "+details)
}

// HeapCreateFailed wraps an I/O or mapping failure encountered while
// creating a shelf heap.
func HeapCreateFailed(details string) error {
	return status.Error(codes.Internal, "Failed to create heap: "+details)
}

// HeapOpenFailed wraps an I/O or mapping failure encountered while
// opening a shelf heap.
func HeapOpenFailed(details string) error {
	return status.Error(codes.Internal, "Failed to open heap: "+details)
}

// HeapCloseFailed wraps an I/O or unmapping failure encountered while
// closing a shelf heap.
func HeapCloseFailed(details string) error {
	return status.Error(codes.Internal, "Failed to close heap: "+details)
}

// HeapDestroyFailed wraps an I/O failure encountered while destroying a
// shelf heap.
func HeapDestroyFailed(details string) error {
	return status.Error(codes.Internal, "Failed to destroy heap: "+details)
}

// ShelfFileNotFound indicates that the backing file of a shelf is
// missing where it was expected to already exist.
func ShelfFileNotFound(details string) error {
	return status.Error(codes.NotFound, "Shelf file not found: "+details)
}

// IDNotFound indicates a lookup (e.g. of a participant slot or a shelf
// index) failed to find its target.
func IDNotFound(details string) error {
	return status.Error(codes.NotFound, "Identifier not found: "+details)
}

// IDFound indicates an attempt to allocate an identifier collided with
// one already in use.
func IDFound(details string) error {
	return status.Error(codes.AlreadyExists, "Identifier already in use: "+details)
}

// FailedPrecondition reports an API misuse (already-open, not-open,
// invalid offset) that release builds surface as an error rather than a
// panic. See precondition_debug.go / precondition_release.go for the
// build-tag-gated panic behaviour used by debug builds.
func FailedPrecondition(details string) error {
	return status.Error(codes.FailedPrecondition, details)
}
