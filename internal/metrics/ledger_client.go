// Package metrics exposes application metrics collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ledgerchat"

var (
	ledgerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger_client",
		Name:      "operations_total",
		Help:      "Count of ledger node operations.",
	}, []string{"operation", "chain", "status"})
	ledgerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ledger_client",
		Name:      "operation_duration_seconds",
		Help:      "Duration of ledger node operations.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"operation", "chain", "status"})
)

// LedgerClient tracks metrics for calls to the chat contract and its node.
type LedgerClient struct {
	chain string
}

// NewLedgerClient constructs a metrics collector for ledger calls on chainID.
func NewLedgerClient(chainID uint64) *LedgerClient {
	return &LedgerClient{chain: chainLabel(chainID)}
}

// Observe records a single ledger call outcome and duration.
func (m LedgerClient) Observe(operation string, err error, started time.Time) {
	status := statusLabel(err)
	ledgerRequestsTotal.WithLabelValues(operation, m.chain, status).Inc()
	ledgerRequestDuration.WithLabelValues(operation, m.chain, status).Observe(time.Since(started).Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func chainLabel(chainID uint64) string {
	if chainID == 0 {
		return "unknown"
	}
	return strconv.FormatUint(chainID, 10)
}
