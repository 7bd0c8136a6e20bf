package metrics

import (
	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	networkStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "network_guard",
		Name:      "status",
		Help:      "Current network status, 1 for the active status.",
	}, []string{"chain", "status"})

	networkTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "network_guard",
		Name:      "transitions_total",
		Help:      "Count of network status transitions.",
	}, []string{"chain", "from", "to"})
)

var allStatuses = []model.NetworkStatus{
	model.NetworkChecking,
	model.NetworkConnected,
	model.NetworkWrongNetwork,
	model.NetworkDisconnected,
}

// NetworkGuard tracks the network status of the session.
type NetworkGuard struct {
	chain string
}

// NewNetworkGuard constructs a NetworkGuard collector.
func NewNetworkGuard(chainID uint64) *NetworkGuard {
	return &NetworkGuard{chain: chainLabel(chainID)}
}

// ObserveTransition records a status change.
func (m NetworkGuard) ObserveTransition(prev, next model.NetworkStatus) {
	networkTransitionsTotal.WithLabelValues(m.chain, string(prev), string(next)).Inc()
	for _, s := range allStatuses {
		v := 0.0
		if s == next {
			v = 1
		}
		networkStatus.WithLabelValues(m.chain, string(s)).Set(v)
	}
}
