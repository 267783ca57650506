// Package inmem provides a process-local conversation and fact store for
// local development and tests.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/becomeliminal/nim-memory/core"
)

type threadKey struct {
	userID   string
	threadID string
}

// Store keeps turns and fact sheets in memory. It implements both
// memory.ConversationStore and memory.FactStore.
type Store struct {
	mu    sync.RWMutex
	turns map[threadKey][]core.Turn
	facts map[string]core.FactSheet
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		turns: make(map[threadKey][]core.Turn),
		facts: make(map[string]core.FactSheet),
	}
}

// Append stores turns under one lock, so they become visible together.
func (s *Store) Append(_ context.Context, userID, threadID string, turns ...core.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := threadKey{userID, threadID}
	for _, t := range turns {
		if t.Timestamp.IsZero() {
			t.Timestamp = time.Now().UTC()
		}
		s.turns[key] = append(s.turns[key], t)
	}
	return nil
}

// QueryRecent returns up to limit turns, newest first.
func (s *Store) QueryRecent(_ context.Context, userID, threadID string, limit int) ([]core.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	arr := s.turns[threadKey{userID, threadID}]
	if len(arr) == 0 || limit <= 0 {
		return nil, nil
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]core.Turn, 0, limit)
	for i := len(arr) - 1; i >= len(arr)-limit; i-- {
		out = append(out, arr[i])
	}
	return out, nil
}

// History returns turns oldest first.
func (s *Store) History(_ context.Context, userID, threadID string, offset, limit int) ([]core.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	arr := s.turns[threadKey{userID, threadID}]
	if offset < 0 {
		offset = 0
	}
	if offset >= len(arr) || limit <= 0 {
		return nil, nil
	}
	end := offset + limit
	if end > len(arr) {
		end = len(arr)
	}
	return append([]core.Turn(nil), arr[offset:end]...), nil
}

// Get returns a copy of the user's sheet, or nil when none exists.
func (s *Store) Get(_ context.Context, userID string) (*core.FactSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sheet, ok := s.facts[userID]
	if !ok {
		return nil, nil
	}
	out := sheet
	out.Facts = copyFacts(sheet.Facts)
	return &out, nil
}

// Put replaces the user's facts.
func (s *Store) Put(_ context.Context, userID string, facts map[string]string, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.facts[userID] = core.FactSheet{
		UserID:     userID,
		Facts:      copyFacts(facts),
		LastUpdate: updatedAt,
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func copyFacts(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
