package memory

import (
	"context"
	"sync"

	"github.com/becomeliminal/nim-memory/core"
)

// Factory builds the Manager for a session.
type Factory func(ctx context.Context, ns core.Namespace) Manager

// Sessions keeps one Manager per namespace for long-lived processes, so the
// short-term cache of a session survives across requests.
type Sessions struct {
	factory Factory

	mu       sync.Mutex
	managers map[core.Namespace]Manager
}

// NewSessions creates an empty registry backed by factory.
func NewSessions(factory Factory) *Sessions {
	return &Sessions{
		factory:  factory,
		managers: make(map[core.Namespace]Manager),
	}
}

// Get returns the manager for ns, creating it on first use.
func (s *Sessions) Get(ctx context.Context, ns core.Namespace) Manager {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.managers[ns]; ok {
		return m
	}
	m := s.factory(ctx, ns)
	s.managers[ns] = m
	return m
}

// Forget drops the manager for ns. The next Get builds a new one.
func (s *Sessions) Forget(ns core.Namespace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.managers, ns)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.managers)
}
