package bus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// limiter bounds in-flight invocations per agent with a counting semaphore
// so one overloaded agent cannot starve the rest of the bus.
type limiter struct {
	mu       sync.Mutex
	slots    map[string]chan struct{}
	capacity int
	wait     time.Duration
}

func newLimiter(capacity int, wait time.Duration) *limiter {
	return &limiter{
		slots:    make(map[string]chan struct{}),
		capacity: capacity,
		wait:     wait,
	}
}

func (l *limiter) sem(agentID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.slots[agentID]
	if !ok {
		sem = make(chan struct{}, l.capacity)
		l.slots[agentID] = sem
	}
	return sem
}

// acquire blocks until a slot is free, the bounded wait elapses (ErrTimeout)
// or ctx is cancelled.
func (l *limiter) acquire(ctx context.Context, agentID string) error {
	sem := l.sem(agentID)

	select {
	case sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("agent %q: %w", agentID, ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limiter) release(agentID string) {
	sem := l.sem(agentID)
	select {
	case <-sem:
	default:
	}
}
