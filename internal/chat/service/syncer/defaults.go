package syncer

import "time"

const (
	pollInterval  = 3 * time.Second
	sweepInterval = 10 * time.Second
	settleDelay   = 1 * time.Second
	staleAfter    = 300 * time.Second

	tailWindow    uint64 = 10
	pollBatchSize uint64 = 100

	taskEvents = "events"
	taskPoll   = "poll"
	taskSweep  = "sweep"
)
