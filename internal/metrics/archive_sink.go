package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	archiveFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "archive_sink",
		Name:      "flush_total",
		Help:      "Count of archive flushes.",
	}, []string{"status"})

	archiveFlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "archive_sink",
		Name:      "flush_duration_seconds",
		Help:      "Duration of an archive flush.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"status"})

	archiveFlushSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "archive_sink",
		Name:      "flush_size",
		Help:      "Number of messages written per flush.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	archiveDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "archive_sink",
		Name:      "dropped_messages_total",
		Help:      "Count of messages not archived because the queue was full.",
	})

	archiveBackfillMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "archive_sink",
		Name:      "backfill_messages_total",
		Help:      "Count of messages written by backfill chunks.",
	}, []string{"status"})
)

// ArchiveSink tracks metrics for archiving confirmed messages.
type ArchiveSink struct{}

// NewArchiveSink constructs an ArchiveSink collector.
func NewArchiveSink() *ArchiveSink {
	return &ArchiveSink{}
}

// ObserveFlush records a flush of buffered messages.
func (m ArchiveSink) ObserveFlush(err error, messages int, started time.Time) {
	status := statusLabel(err)
	archiveFlushTotal.WithLabelValues(status).Inc()
	archiveFlushDuration.WithLabelValues(status).Observe(time.Since(started).Seconds())
	archiveFlushSize.Observe(float64(messages))
}

// ObserveDropped records messages that never reached the queue.
func (m ArchiveSink) ObserveDropped(messages int) {
	archiveDroppedTotal.Add(float64(messages))
}

// ObserveBackfill records one backfilled chunk.
func (m ArchiveSink) ObserveBackfill(err error, messages int) {
	archiveBackfillMessages.WithLabelValues(statusLabel(err)).Add(float64(messages))
}
