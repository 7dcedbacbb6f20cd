package epochzone

import (
	"sync"
	"time"

	"github.com/nvmmheap/nvmm/pkg/clock"
	"github.com/nvmmheap/nvmm/pkg/epoch"
	"github.com/nvmmheap/nvmm/pkg/nvmerr"
	"github.com/nvmmheap/nvmm/pkg/nvmmconfig"
	"github.com/nvmmheap/nvmm/pkg/random"
)

// cleanerState mirrors the stopped/starting/running/stopping/stopped
// lifecycle spec.md's design notes require of the background cleaner,
// grounded on the same start-handshake shape the teacher's
// PeriodicSyncer goroutines use, made explicit here as a small state
// machine rather than left implicit in channel operations.
type cleanerState int

const (
	cleanerStopped cleanerState = iota
	cleanerStarting
	cleanerRunning
	cleanerStopping
)

// cleaner periodically moves blocks from the deferred-free buckets
// into the reuse pool once reported_epoch proves them safe.
type cleaner struct {
	heap        *Heap
	mgr         *epoch.Manager
	clock       clock.Clock
	errorLogger nvmerr.ErrorLogger

	freeCountPerPass int
	sleepInterval    time.Duration

	mu        sync.Mutex
	cond      *sync.Cond
	state     cleanerState
	stopCh    chan struct{}
	doneCh    chan struct{}
	nextEpoch uint64
}

func newCleaner(h *Heap, mgr *epoch.Manager, cfg nvmmconfig.Configuration, errorLogger nvmerr.ErrorLogger) *cleaner {
	c := &cleaner{
		heap:             h,
		mgr:              mgr,
		clock:            clock.SystemClock,
		errorLogger:      errorLogger,
		freeCountPerPass: cfg.FreeCountPerPass,
		sleepInterval:    cfg.WorkerSleepInterval,
		nextEpoch:        1,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// start launches the cleaner's goroutine and blocks until it has
// reached the running state, so a caller that immediately triggers
// activity knows the cleaner is already watching for it.
func (c *cleaner) start() {
	c.mu.Lock()
	if c.state != cleanerStopped {
		c.mu.Unlock()
		return
	}
	c.state = cleanerStarting
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	go c.run()

	c.mu.Lock()
	for c.state == cleanerStarting {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

// stop signals the cleaner to exit and blocks until it has, moving the
// state machine stopping → stopped.
func (c *cleaner) stop() {
	c.mu.Lock()
	if c.state != cleanerRunning {
		c.mu.Unlock()
		return
	}
	c.state = cleanerStopping
	stopCh := c.stopCh
	doneCh := c.doneCh
	c.mu.Unlock()

	close(stopCh)
	<-doneCh

	c.mu.Lock()
	c.state = cleanerStopped
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *cleaner) run() {
	c.mu.Lock()
	c.state = cleanerRunning
	c.cond.Broadcast()
	stopCh := c.stopCh
	doneCh := c.doneCh
	c.mu.Unlock()

	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		if err := c.pass(); err != nil {
			c.errorLogger.Log(nvmerr.Wrap(err, "epochzone: cleaner pass failed"))
		}

		_, timer := c.clock.NewTimer(c.jitteredSleep())
		select {
		case <-stopCh:
			return
		case <-timer:
		}
	}
}

// jitteredSleep spreads out cleaner wakeups across multiple zone heaps
// sharing a machine by perturbing kWorkerSleepMicroSeconds by up to
// ±10%, using pkg/random's math/rand/v2-backed generator.
func (c *cleaner) jitteredSleep() time.Duration {
	factor := 0.9 + random.FastThreadSafeGenerator.Float64()*0.2
	return time.Duration(float64(c.sleepInterval) * factor)
}

// pass runs one reclamation cycle: it advances nextEpoch through every
// epoch reported_epoch has already cleared, draining each one's
// deferred bucket into the reuse pool, bounded overall by
// freeCountPerPass so a long-idle cleaner catching up cannot stall the
// process with one enormous pass.
func (c *cleaner) pass() error {
	reported := c.mgr.ReportedEpoch()
	c.heap.metrics.observeEpoch(reported)
	c.heap.metrics.observeFrontier(c.mgr.FrontierEpoch())

	budget := c.freeCountPerPass
	for budget > 0 && c.nextEpoch+3 <= reported {
		bucket := uint32((c.nextEpoch + 3) % NLists)
		moved, exhausted := c.heap.drainUpTo(bucket, budget, func(index uint32) {
			c.heap.push(AvailableList, index)
		})
		budget -= moved
		if moved > 0 {
			c.heap.metrics.blocksReclaimed.Add(float64(moved))
		}
		if !exhausted {
			// The bucket still holds items past this pass's
			// budget; resume it next pass instead of skipping
			// ahead to the next epoch.
			break
		}
		c.nextEpoch++
	}
	return nil
}
