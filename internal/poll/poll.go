// Package poll runs periodic background refresh work and shares the latest
// result with concurrent readers. The gateway uses it to keep a cached view
// of the hypervisor's VM names for the health endpoint.
package poll

import (
	"context"
	mathrand "math/rand"
	"sync"
	"time"
)

// Loop calls fn immediately and then every interval (with jitter) until ctx
// is canceled. A false return triggers exponential retry capped at maxRetry
// before the loop goes back to the regular interval.
func Loop(ctx context.Context, interval, maxRetry time.Duration, fn func() bool) {
	for {
		var retry time.Duration
		for !fn() {
			if retry == 0 {
				retry = time.Millisecond * 50
			}
			retry += retry / 8
			if retry > maxRetry {
				retry = maxRetry
			}

			if !sleep(ctx, Jitter(retry)) {
				return
			}
		}

		if !sleep(ctx, Jitter(interval)) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Jitter spreads a duration by +/-5% so pollers don't synchronize.
func Jitter(duration time.Duration) time.Duration {
	maxJitter := int64(duration) * 5 / 100
	if maxJitter == 0 {
		return duration
	}
	return duration + time.Duration(mathrand.Int63n(maxJitter*2)-maxJitter)
}

// Snapshot is a mutex-guarded value shared between one writer (the poll
// loop) and many readers (request handlers).
type Snapshot[T any] struct {
	lock    sync.Mutex
	current T
	set     bool
}

func (s *Snapshot[T]) Get() (T, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.current, s.set
}

func (s *Snapshot[T]) Swap(val T) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.current = val
	s.set = true
}
