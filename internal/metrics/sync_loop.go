package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncPollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_loop",
		Name:      "poll_total",
		Help:      "Count of polling ticks.",
	}, []string{"chain", "status"})

	syncPollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync_loop",
		Name:      "poll_duration_seconds",
		Help:      "Duration of a polling tick.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"chain", "status"})

	syncPollFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_loop",
		Name:      "poll_fetched_messages_total",
		Help:      "Count of messages fetched by the polling backstop.",
	}, []string{"chain"})

	syncSweepTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_loop",
		Name:      "sweep_total",
		Help:      "Count of pending sweeps.",
	}, []string{"chain", "status"})

	syncSweepRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_loop",
		Name:      "sweep_records_total",
		Help:      "Count of local records resolved by the pending sweep.",
	}, []string{"chain", "result"})

	syncEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_loop",
		Name:      "events_total",
		Help:      "Count of MessagePosted events received.",
	}, []string{"chain", "result"})

	syncSubscribeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync_loop",
		Name:      "subscribe_total",
		Help:      "Count of event subscription attempts.",
	}, []string{"chain", "status"})
)

// SyncLoop tracks metrics for the event, polling and sweep activities.
type SyncLoop struct {
	chain string
}

// NewSyncLoop constructs a SyncLoop collector.
func NewSyncLoop(chainID uint64) *SyncLoop {
	return &SyncLoop{chain: chainLabel(chainID)}
}

// ObservePoll records a polling tick and the number of messages it fetched.
func (m SyncLoop) ObservePoll(err error, fetched int, started time.Time) {
	status := statusLabel(err)
	syncPollTotal.WithLabelValues(m.chain, status).Inc()
	syncPollDuration.WithLabelValues(m.chain, status).Observe(time.Since(started).Seconds())
	if fetched > 0 {
		syncPollFetched.WithLabelValues(m.chain).Add(float64(fetched))
	}
}

// ObserveSweep records a pending sweep.
func (m SyncLoop) ObserveSweep(err error, settled, evicted int) {
	syncSweepTotal.WithLabelValues(m.chain, statusLabel(err)).Inc()
	if settled > 0 {
		syncSweepRecords.WithLabelValues(m.chain, "settled").Add(float64(settled))
	}
	if evicted > 0 {
		syncSweepRecords.WithLabelValues(m.chain, "evicted").Add(float64(evicted))
	}
}

// ObserveEvent records an event delivery and whether it changed the store.
func (m SyncLoop) ObserveEvent(applied bool) {
	result := "duplicate"
	if applied {
		result = "applied"
	}
	syncEventsTotal.WithLabelValues(m.chain, result).Inc()
}

// ObserveSubscribe records a subscription attempt.
func (m SyncLoop) ObserveSubscribe(err error) {
	syncSubscribeTotal.WithLabelValues(m.chain, statusLabel(err)).Inc()
}
