package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements an in-memory store for forecast snapshots.
// It is safe for concurrent use by multiple goroutines.
//
// MemoryStore keeps the latest snapshot per series in a map. If TTL is
// configured, a background goroutine removes snapshots older than the TTL.
// Use RedisStore to share snapshots between serve instances, or SQLiteStore
// to keep a history.
type MemoryStore struct {
	mu            sync.RWMutex
	snapshots     map[string]Snapshot
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates an in-memory snapshot store with no TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]Snapshot),
	}
}

// NewMemoryStoreWithTTL creates an in-memory store whose snapshots expire
// after ttl. Expired snapshots are swept every cleanupInterval (default one
// minute) and are never returned by GetLatest, even before the sweep.
//
// Call Stop when the store is no longer needed.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		snapshots:     make(map[string]Snapshot),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the cleanup goroutine and waits for it to exit.
// It is safe to call more than once, and on a store without TTL.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes snapshots older than the TTL.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for name, snapshot := range s.snapshots {
		if s.expired(snapshot, now) {
			delete(s.snapshots, name)
		}
	}
}

func (s *MemoryStore) expired(snapshot Snapshot, now time.Time) bool {
	return s.ttl > 0 && now.Sub(snapshot.GeneratedAt) > s.ttl
}

// Put stores a snapshot, replacing any existing snapshot of the same series.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if err := ValidateSeriesName(snapshot.Series); err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.Series] = snapshot
	return nil
}

// GetLatest returns the most recent snapshot of a series. found is false
// when none is stored or it has expired.
func (s *MemoryStore) GetLatest(ctx context.Context, name string) (Snapshot, bool, error) {
	select {
	case <-ctx.Done():
		return Snapshot{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, found := s.snapshots[name]
	if !found || s.expired(snapshot, time.Now()) {
		return Snapshot{}, false, nil
	}
	return snapshot, true, nil
}

// Len returns the number of snapshots currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// Delete removes the snapshot of a series and reports whether one existed.
func (s *MemoryStore) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.snapshots[name]
	delete(s.snapshots, name)
	return existed
}

// Series lists the names with a stored snapshot.
func (s *MemoryStore) Series() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.snapshots))
	for name := range s.snapshots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
