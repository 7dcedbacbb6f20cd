//go:build !darwin && !freebsd && !linux
// +build !darwin,!freebsd,!linux

package region

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type mapping struct{}

// Map is unsupported on this platform, as no SHARED-mmap primitive is
// wired up for it.
func (r *Region) Map(mode OpenMode) ([]byte, error) {
	return nil, status.Error(codes.Unimplemented, "Memory mapping regions is not supported on this platform")
}

// Unmap is unsupported on this platform.
func (r *Region) Unmap() error {
	return status.Error(codes.Unimplemented, "Memory mapping regions is not supported on this platform")
}
