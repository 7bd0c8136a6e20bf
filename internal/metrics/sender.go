package metrics

import (
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "sends_total",
		Help:      "Count of send attempts by outcome.",
	}, []string{"chain", "outcome"})

	sendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "send_duration_seconds",
		Help:      "Duration of a send attempt from preflight to settlement.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
	}, []string{"chain", "outcome"})

	confirmationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "confirmation_duration_seconds",
		Help:      "Duration of the confirmation wait.",
		Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 120, 300, 600},
	}, []string{"chain", "status"})

	lateSettlementTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sender",
		Name:      "late_settlements_total",
		Help:      "Count of timed out sends resolved after the confirmation wait.",
	}, []string{"chain", "result"})
)

// Sender tracks metrics for the send coordinator.
type Sender struct {
	chain string
}

// NewSender constructs a Sender collector.
func NewSender(chainID uint64) *Sender {
	return &Sender{chain: chainLabel(chainID)}
}

// ObserveSend records a finished send attempt, labelled by error kind.
func (m Sender) ObserveSend(err error, started time.Time) {
	outcome := "success"
	if err != nil {
		outcome = model.KindOf(err).String()
	}
	sendTotal.WithLabelValues(m.chain, outcome).Inc()
	sendDuration.WithLabelValues(m.chain, outcome).Observe(time.Since(started).Seconds())
}

// ObserveConfirmation records the confirmation wait.
func (m Sender) ObserveConfirmation(err error, started time.Time) {
	confirmationDuration.WithLabelValues(m.chain, statusLabel(err)).Observe(time.Since(started).Seconds())
}

// ObserveLateSettlement records how a timed out send was eventually resolved.
func (m Sender) ObserveLateSettlement(result string) {
	lateSettlementTotal.WithLabelValues(m.chain, result).Inc()
}
