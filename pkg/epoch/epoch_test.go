package epoch_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/nvmmheap/nvmm/pkg/epoch"
	"github.com/stretchr/testify/require"
)

func startManager(t *testing.T, maxParticipants uint32) *epoch.Manager {
	path := filepath.Join(t.TempDir(), "epoch_shelf")
	m, err := epoch.Start(path, maxParticipants)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestStartFormatsFreshShelf(t *testing.T) {
	m := startManager(t, 8)
	require.Equal(t, uint64(1), m.FrontierEpoch())
	require.False(t, m.ExistsActiveCritical())
}

func TestReportedEpochEqualsFrontierWithNoActiveReaders(t *testing.T) {
	m := startManager(t, 8)
	op, err := m.EnterCritical()
	require.NoError(t, err)
	op.Release()

	require.Equal(t, m.FrontierEpoch(), m.ReportedEpoch())
}

func TestReportedEpochStaysBelowOpenCriticalSection(t *testing.T) {
	m := startManager(t, 8)

	op, err := m.EnterCritical()
	require.NoError(t, err)
	entered := op.ReportedEpoch()

	// Advance the frontier well past the open lease by entering and
	// releasing several more critical sections.
	for i := 0; i < 5; i++ {
		other, err := m.EnterCritical()
		require.NoError(t, err)
		other.Release()
	}
	require.Greater(t, m.FrontierEpoch(), entered)

	reported := m.ReportedEpoch()
	require.LessOrEqual(t, reported, entered-1, "reported_epoch must not pass an open critical section's entry epoch")

	op.Release()
	reported2 := m.ReportedEpoch()
	require.GreaterOrEqual(t, reported2, reported, "reported_epoch must never move backwards")
}

func TestReportedEpochNeverRegresses(t *testing.T) {
	m := startManager(t, 16)

	var last uint64
	for round := 0; round < 50; round++ {
		ops := make([]*epoch.EpochOp, 0, 4)
		for i := 0; i < 4; i++ {
			op, err := m.EnterCritical()
			require.NoError(t, err)
			ops = append(ops, op)
		}
		for i, op := range ops {
			if i%2 == 0 {
				op.Release()
			}
		}
		r := m.ReportedEpoch()
		require.GreaterOrEqual(t, r, last)
		last = r
		for i, op := range ops {
			if i%2 != 0 {
				op.Release()
			}
		}
	}
}

func TestSlotExhaustionFails(t *testing.T) {
	m := startManager(t, 4)
	var ops []*epoch.EpochOp
	for i := 0; i < 4; i++ {
		op, err := m.EnterCritical()
		require.NoError(t, err)
		ops = append(ops, op)
	}
	_, err := m.EnterCritical()
	require.Error(t, err)

	ops[0].Release()
	op, err := m.EnterCritical()
	require.NoError(t, err)
	op.Release()
	for _, o := range ops[1:] {
		o.Release()
	}
}

func TestResetBeforeForkRejectsOpenCriticalSection(t *testing.T) {
	m := startManager(t, 4)
	require.NoError(t, m.ResetBeforeFork())

	op, err := m.EnterCritical()
	require.NoError(t, err)
	require.Error(t, m.ResetBeforeFork())
	op.Release()
	require.NoError(t, m.ResetBeforeFork())
	require.NoError(t, m.ResetAfterFork())
}

func TestOpenExistingShelfSeesPriorState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "epoch_shelf")
	m1, err := epoch.Start(path, 8)
	require.NoError(t, err)
	op, err := m1.EnterCritical()
	require.NoError(t, err)
	frontierBefore := m1.FrontierEpoch()
	require.NoError(t, m1.Close())

	m2, err := epoch.Open(path)
	require.NoError(t, err)
	defer m2.Close()
	require.Equal(t, frontierBefore, m2.FrontierEpoch())
	require.True(t, m2.ExistsActiveCritical())
	_ = op
}

func TestEnterExitIsEquivalentToEnterCriticalRelease(t *testing.T) {
	m := startManager(t, 4)

	op, err := m.Enter()
	require.NoError(t, err)
	require.True(t, m.ExistsActiveCritical())

	m.Exit(op)
	require.False(t, m.ExistsActiveCritical())
}

func TestConcurrentEnterExitStress(t *testing.T) {
	m := startManager(t, 32)

	const goroutines = 16
	const iterations = 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				op, err := m.EnterCritical()
				if err != nil {
					continue
				}
				_ = m.ReportedEpoch()
				op.Release()
			}
		}()
	}
	wg.Wait()
	require.False(t, m.ExistsActiveCritical())
}
