package archive

import "time"

const (
	flushSize     = 500
	flushInterval = 5 * time.Second
	flushRPS      = 5
	queueCapacity = 10_000

	backfillChunk   uint64 = 200
	backfillWorkers        = 4
)
