package session

import "time"

const (
	pageSize        uint64 = 15
	monitorInterval        = 5 * time.Second

	taskMonitor = "network-monitor"
)
