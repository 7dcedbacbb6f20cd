package patomic_test

import (
	"sync"
	"testing"

	"github.com/nvmmheap/nvmm/pkg/patomic"
	"github.com/stretchr/testify/require"
)

func TestCompareAndSwapUint64(t *testing.T) {
	mem := make([]byte, 64)

	require.True(t, patomic.CompareAndSwapUint64(mem, 0, 0, 42))
	require.Equal(t, uint64(42), patomic.LoadUint64(mem, 0))

	// A stale expected value must fail the swap and leave the cell
	// untouched.
	require.False(t, patomic.CompareAndSwapUint64(mem, 0, 0, 100))
	require.Equal(t, uint64(42), patomic.LoadUint64(mem, 0))
}

func TestCompareAndSwapUint64Contention(t *testing.T) {
	mem := make([]byte, 64)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				old := patomic.LoadUint64(mem, 0)
				if patomic.CompareAndSwapUint64(mem, 0, old, old+1) {
					return
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(n), patomic.LoadUint64(mem, 0))
}

func TestPackedCellRoundTrip(t *testing.T) {
	c := patomic.Pack(7, 3)
	require.Equal(t, uint32(7), c.Index())
	require.Equal(t, uint32(3), c.Tag())

	next := c.Next(9)
	require.Equal(t, uint32(9), next.Index())
	require.Equal(t, uint32(4), next.Tag())
}

func TestMisalignedOffsetPanics(t *testing.T) {
	mem := make([]byte, 64)
	require.Panics(t, func() {
		patomic.LoadUint64(mem, 1)
	})
}
