package epochzone

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsOnce guards the process-wide registration of this package's
// collectors, the same sync.Once-gated prometheus.NewCounter idiom the
// teacher's pkg/blobstore/local uses: every Heap shares one registered
// set of collectors and is distinguished by nothing beyond the process
// it runs in, since a heap-allocator library has no natural per-pool
// label cheap enough to always apply.
var (
	metricsOnce sync.Once

	allocsBumped       prometheus.Counter
	allocsReused       prometheus.Counter
	deferredFrees      prometheus.Counter
	unprotectedFrees   prometheus.Counter
	blocksReclaimed    prometheus.Counter
	reportedEpochGauge prometheus.Gauge
	frontierEpochGauge prometheus.Gauge
)

func registerMetrics() {
	metricsOnce.Do(func() {
		allocsBumped = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nvmm",
			Subsystem: "epochzone",
			Name:      "allocs_bumped_total",
			Help:      "Number of allocations served by advancing the bump cursor.",
		})
		prometheus.MustRegister(allocsBumped)

		allocsReused = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nvmm",
			Subsystem: "epochzone",
			Name:      "allocs_reused_total",
			Help:      "Number of allocations served from the reclaimed-block pool.",
		})
		prometheus.MustRegister(allocsReused)

		deferredFrees = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nvmm",
			Subsystem: "epochzone",
			Name:      "deferred_frees_total",
			Help:      "Number of blocks enqueued onto an epoch-bucketed deferred-free list.",
		})
		prometheus.MustRegister(deferredFrees)

		unprotectedFrees = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nvmm",
			Subsystem: "epochzone",
			Name:      "unprotected_frees_total",
			Help:      "Number of blocks returned directly to the reuse pool, bypassing the epoch grace period.",
		})
		prometheus.MustRegister(unprotectedFrees)

		blocksReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nvmm",
			Subsystem: "epochzone",
			Name:      "blocks_reclaimed_total",
			Help:      "Number of blocks the background cleaner moved from a deferred bucket to the reuse pool.",
		})
		prometheus.MustRegister(blocksReclaimed)

		reportedEpochGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nvmm",
			Subsystem: "epochzone",
			Name:      "reported_epoch",
			Help:      "Most recently observed reported_epoch.",
		})
		prometheus.MustRegister(reportedEpochGauge)

		frontierEpochGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nvmm",
			Subsystem: "epochzone",
			Name:      "frontier_epoch",
			Help:      "Most recently observed frontier_epoch.",
		})
		prometheus.MustRegister(frontierEpochGauge)
	})
}

// metrics bundles references to the package's process-wide collectors
// so call sites read h.metrics.allocsBumped.Inc() instead of a bare
// package-level name, which would read oddly once more than one Heap
// in the same process is in play.
type metrics struct {
	allocsBumped     prometheus.Counter
	allocsReused     prometheus.Counter
	deferredFrees    prometheus.Counter
	unprotectedFrees prometheus.Counter
	blocksReclaimed  prometheus.Counter
}

func newMetrics() *metrics {
	registerMetrics()
	return &metrics{
		allocsBumped:     allocsBumped,
		allocsReused:     allocsReused,
		deferredFrees:    deferredFrees,
		unprotectedFrees: unprotectedFrees,
		blocksReclaimed:  blocksReclaimed,
	}
}

// observeEpoch updates the reported_epoch gauge from a value the
// caller already had on hand (an EpochOp's entry epoch), avoiding a
// redundant scan of the participant table purely for metrics.
func (m *metrics) observeEpoch(reported uint64) {
	reportedEpochGauge.Set(float64(reported))
}

func (m *metrics) observeFrontier(frontier uint64) {
	frontierEpochGauge.Set(float64(frontier))
}
