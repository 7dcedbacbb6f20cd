package gptr_test

import (
	"testing"

	"github.com/nvmmheap/nvmm/pkg/gptr"
	"github.com/stretchr/testify/require"
)

func TestNullIsNull(t *testing.T) {
	shelf := gptr.ShelfID{PoolID: 3, ShelfIndex: 7}
	p := gptr.Null(shelf)
	require.True(t, p.IsNull())
	require.Equal(t, shelf, p.Shelf)
}

func TestNonNullIsNotNull(t *testing.T) {
	p := gptr.GlobalPtr{Shelf: gptr.ShelfID{PoolID: 1, ShelfIndex: 2}, Offset: 192}
	require.False(t, p.IsNull())
}

func TestPackUnpackRoundTrip(t *testing.T) {
	p := gptr.GlobalPtr{Shelf: gptr.ShelfID{PoolID: 12, ShelfIndex: 34}, Offset: 0xABCD}
	got := gptr.Unpack(p.Pack())
	require.Equal(t, p, got)
}

func TestIsValidRejectsNullAndWrongShelf(t *testing.T) {
	shelf := gptr.ShelfID{PoolID: 1, ShelfIndex: 2}
	other := gptr.ShelfID{PoolID: 1, ShelfIndex: 3}

	require.False(t, gptr.Null(shelf).IsValid(shelf))

	p := gptr.GlobalPtr{Shelf: shelf, Offset: 64}
	require.True(t, p.IsValid(shelf))
	require.False(t, p.IsValid(other))
}

func TestDistinctPointersAreNotEqual(t *testing.T) {
	a := gptr.GlobalPtr{Shelf: gptr.ShelfID{PoolID: 1, ShelfIndex: 1}, Offset: 64}
	b := gptr.GlobalPtr{Shelf: gptr.ShelfID{PoolID: 1, ShelfIndex: 2}, Offset: 64}
	require.NotEqual(t, a, b)
}
