package sender

import "time"

const (
	confirmationTimeout = 60 * time.Second
	lateWindow          = 10 * time.Minute
	lookupTimeout       = 10 * time.Second

	minConfirmations uint64 = 1
	lookupWindow     uint64 = 10

	zeroAddress = "0x0000000000000000000000000000000000000000"
)
