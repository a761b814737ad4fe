package broker

import (
	"context"
	"sync"
)

// system owns the goroutines an Endpoint starts through spawn (as opposed
// to the ones core.Invoker spawns inside Router, and the actor goroutines
// Master and Clone start for themselves), generalizing
// go-mcast's single Peer.context/finish cancellation pair
// (pkg/mcast/core/peer.go) to N independently cancellable children, per
// design note 9's "explicit non-singleton actor system": every Endpoint
// owns its own, never a package-level instance.
type system struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	cancels []context.CancelFunc
}

func newSystem() *system {
	return &system{}
}

// spawn runs f on its own goroutine under a child context derived from
// ctx, tracking both its cancellation and its completion.
func (s *system) spawn(ctx context.Context, f func(context.Context)) {
	child, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f(child)
	}()
}

// shutdown cancels every spawned child and waits for them all to return.
func (s *system) shutdown() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
}
