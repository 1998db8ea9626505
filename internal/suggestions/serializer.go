package suggestions

import (
	"context"
	"sync"
)

// tenantSerializer admits at most one in-flight creation per tenant while
// distinct tenants proceed in parallel. Waiters resume in FIFO arrival
// order. Queue entries are removed once the slot is free and nobody waits,
// so the map stays bounded by the number of tenants with work in flight.
type tenantSerializer struct {
	mu     sync.Mutex
	queues map[TenantID]*tenantQueue
}

type tenantQueue struct {
	held    bool
	waiters []chan struct{}
}

func newTenantSerializer() *tenantSerializer {
	return &tenantSerializer{queues: make(map[TenantID]*tenantQueue)}
}

// Do runs operation while holding the tenant's slot. The slot is released
// exactly once on every exit path, including panics inside operation and
// cancellation while queued.
func (s *tenantSerializer) Do(ctx context.Context, tenant TenantID, operation func() error) error {
	if err := s.acquire(ctx, tenant); err != nil {
		return err
	}
	defer s.release(tenant)
	return operation()
}

func (s *tenantSerializer) acquire(ctx context.Context, tenant TenantID) error {
	s.mu.Lock()
	queue, ok := s.queues[tenant]
	if !ok {
		queue = &tenantQueue{}
		s.queues[tenant] = queue
	}
	if !queue.held {
		queue.held = true
		s.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	queue.waiters = append(queue.waiters, ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for index, waiter := range queue.waiters {
			if waiter == ready {
				queue.waiters = append(queue.waiters[:index], queue.waiters[index+1:]...)
				s.mu.Unlock()
				return ctx.Err()
			}
		}
		// The slot was handed to us between cancellation and locking the
		// map; pass it on so every acquisition is released exactly once.
		s.releaseLocked(tenant, queue)
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *tenantSerializer) release(tenant TenantID) {
	s.mu.Lock()
	if queue, ok := s.queues[tenant]; ok {
		s.releaseLocked(tenant, queue)
	}
	s.mu.Unlock()
}

func (s *tenantSerializer) releaseLocked(tenant TenantID, queue *tenantQueue) {
	if len(queue.waiters) > 0 {
		next := queue.waiters[0]
		queue.waiters = queue.waiters[1:]
		close(next)
		return
	}
	queue.held = false
	delete(s.queues, tenant)
}

// size reports the number of live queue entries.
func (s *tenantSerializer) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}
