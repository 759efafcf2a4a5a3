package service

import (
	"context"
	"sync"
	"time"
)

// ThrottleState is the per-client-address failure counter. A zero LockUntil
// means the address is not locked.
type ThrottleState struct {
	Attempts  int
	LockUntil time.Time
}

func (s ThrottleState) Locked(now time.Time) bool {
	return !s.LockUntil.IsZero() && s.LockUntil.After(now)
}

// ThrottleStore is keyed shared state with per-key atomic read-modify-write.
// Injecting it keeps the throttle free of process-wide singletons and lets a
// deployment back it with Redis when running more than one replica.
type ThrottleStore interface {
	Get(ctx context.Context, key string) (ThrottleState, error)
	// Update applies fn to the current state for key under per-key atomicity
	// and persists the result with the returned retention ttl.
	Update(ctx context.Context, key string, fn func(ThrottleState) (ThrottleState, time.Duration)) (ThrottleState, error)
	Clear(ctx context.Context, key string) error
}

type memoryThrottleEntry struct {
	state     ThrottleState
	expiresAt time.Time
}

// MemoryThrottleStore is the single-node implementation: a mutex-guarded map
// with lazy cleanup of expired entries.
type MemoryThrottleStore struct {
	mu      sync.Mutex
	entries map[string]memoryThrottleEntry
	cleanup time.Time
	clock   func() time.Time
}

func NewMemoryThrottleStore() *MemoryThrottleStore {
	return &MemoryThrottleStore{
		entries: make(map[string]memoryThrottleEntry),
		cleanup: time.Now().Add(time.Minute),
		clock:   time.Now,
	}
}

func (s *MemoryThrottleStore) Get(_ context.Context, key string) (ThrottleState, error) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)
	entry, ok := s.entries[key]
	if !ok || now.After(entry.expiresAt) {
		return ThrottleState{}, nil
	}
	return entry.state, nil
}

func (s *MemoryThrottleStore) Update(_ context.Context, key string, fn func(ThrottleState) (ThrottleState, time.Duration)) (ThrottleState, error) {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupLocked(now)
	current := ThrottleState{}
	if entry, ok := s.entries[key]; ok && !now.After(entry.expiresAt) {
		current = entry.state
	}
	next, ttl := fn(current)
	if ttl <= 0 {
		delete(s.entries, key)
		return next, nil
	}
	s.entries[key] = memoryThrottleEntry{state: next, expiresAt: now.Add(ttl)}
	return next, nil
}

func (s *MemoryThrottleStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryThrottleStore) cleanupLocked(now time.Time) {
	if now.Before(s.cleanup) {
		return
	}
	for k, v := range s.entries {
		if now.After(v.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.cleanup = now.Add(time.Minute)
}
