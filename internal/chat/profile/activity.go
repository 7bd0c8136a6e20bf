package profile

import (
	"context"
	"sync"
	"time"

	"github.com/goodnatureofminers/ledgerchat/internal/chat/model"
	"go.uber.org/zap"
)

const defaultActivityTimeout = 5 * time.Second

// ActivityLogger posts activity records in the background. Failures are
// logged and otherwise ignored: activity never blocks or fails chat operations.
type ActivityLogger struct {
	poster  ActivityPoster
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewActivityLogger builds an ActivityLogger. A nil poster discards records.
func NewActivityLogger(poster ActivityPoster, timeout time.Duration, logger *zap.Logger) *ActivityLogger {
	if timeout <= 0 {
		timeout = defaultActivityTimeout
	}
	return &ActivityLogger{poster: poster, logger: logger, timeout: timeout}
}

// Log posts one record without waiting for it.
func (a *ActivityLogger) Log(address string, activity model.ActivityType, metadata map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || address == "" || a.poster == nil {
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.poster.PostActivity(ctx, address, activity, metadata); err != nil {
			a.logger.Debug("activity not recorded",
				zap.String("address", address),
				zap.String("type", string(activity)),
				zap.Error(err))
		}
	}()
}

// Close stops accepting records and waits for the ones in flight.
func (a *ActivityLogger) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.wg.Wait()
}
