// Package proxy implements the internal inference proxy service
package proxy

import (
	"context"
	"time"

	"github.com/fuaadabdullah/inference-gateway/pkg/errors"
)

// semaphore bounds concurrent inference against the backend runtime.
// Requests beyond capacity queue for a permit rather than being rejected;
// an optional acquire timeout turns long waits into CONCURRENCY_TIMEOUT.
type semaphore struct {
	permits        chan struct{}
	acquireTimeout time.Duration
}

func newSemaphore(capacity int, acquireTimeout time.Duration) *semaphore {
	if capacity <= 0 {
		capacity = 2
	}
	return &semaphore{
		permits:        make(chan struct{}, capacity),
		acquireTimeout: acquireTimeout,
	}
}

// acquire blocks until a permit is available, the context is cancelled, or
// the configured wait bound elapses.
func (s *semaphore) acquire(ctx context.Context) error {
	var timeout <-chan time.Time
	if s.acquireTimeout > 0 {
		timer := time.NewTimer(s.acquireTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case s.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return errors.NewGatewayError(errors.ErrConcurrencyTimeout, "Timed out waiting for an inference permit")
	}
}

// release returns a permit
func (s *semaphore) release() {
	<-s.permits
}

// capacity reports the permit bound for /health
func (s *semaphore) capacity() int {
	return cap(s.permits)
}

// inFlight reports how many permits are currently held
func (s *semaphore) inFlight() int {
	return len(s.permits)
}
