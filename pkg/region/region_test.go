package region_test

import (
	"path/filepath"
	"testing"

	"github.com/nvmmheap/nvmm/pkg/region"
	"github.com/stretchr/testify/require"
)

func TestCreateOpenMapRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelf.0")

	require.NoError(t, region.Create(path, 4096))

	r, err := region.Open(path, region.ReadWrite)
	require.NoError(t, err)
	require.Equal(t, int64(4096), r.Size())

	data, err := r.Map(region.ReadWrite)
	require.NoError(t, err)
	require.Len(t, data, 4096)

	data[0] = 0xAB
	require.NoError(t, r.Unmap())
	require.NoError(t, r.Close())

	// Reopen and verify the byte survived the round trip.
	r2, err := region.Open(path, region.ReadWrite)
	require.NoError(t, err)
	data2, err := r2.Map(region.ReadWrite)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), data2[0])
	require.NoError(t, r2.Unmap())
	require.NoError(t, r2.Close())

	require.NoError(t, region.Destroy(path))
}

func TestCreateTwiceFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelf.0")
	require.NoError(t, region.Create(path, 4096))
	err := region.Create(path, 4096)
	require.Error(t, err)
}

func TestOpenMissingFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := region.Open(path, region.ReadWrite)
	require.Error(t, err)
}

func TestDestroyMissingFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist")
	err := region.Destroy(path)
	require.Error(t, err)
}
