package epoch

import "github.com/nvmmheap/nvmm/pkg/nvmerr"

// ResetBeforeFork asserts that this process holds no open critical
// section and is therefore safe to fork. Design notes require fork
// discipline to be an explicit API rather than something automatic:
// the caller must quiesce every thread (release every EpochOp) before
// forking, because a thread that vanishes in the child while its slot
// is still marked active would leak that slot forever.
//
// This module has no literal fork() — Go's runtime does not support
// forking a multi-threaded process safely, so multi-process tests
// re-exec a fresh binary instead (see the cross-process harness) —
// but the entry point is kept so a caller driving this package from
// cgo, or from a single-threaded re-exec just before an os/exec-style
// handoff, has the same safety check the design notes call for.
func (m *Manager) ResetBeforeFork() error {
	if m.ExistsActiveCritical() {
		return nvmerr.FailedPrecondition("epoch: cannot fork with an open critical section")
	}
	return nil
}

// ResetAfterFork re-establishes process-local state in the child (and,
// symmetrically, in the parent) after a fork. The epoch shelf's
// mapping is backed by a SHARED file mapping, which already survives
// fork intact on both sides; this call exists purely as the documented
// mirror of ResetBeforeFork, so that fork discipline reads as a pair of
// explicit calls rather than something implicit tacked onto Open.
func (m *Manager) ResetAfterFork() error {
	return nil
}
