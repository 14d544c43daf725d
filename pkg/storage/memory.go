package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in a map. It is safe for concurrent use.
//
// With a TTL, snapshots not Put again within the TTL are hidden from
// GetLatest and removed by Janitor. Without one they live until replaced.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

type entry struct {
	snapshot Snapshot
	storedAt time.Time
}

// NewMemoryStore creates an in-memory store. ttl <= 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl < 0 {
		ttl = 0
	}
	return &MemoryStore{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores a snapshot under its name, replacing any existing one and
// restarting its TTL.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if err := ValidateName(snapshot.Name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[snapshot.Name] = entry{snapshot: clone(snapshot), storedAt: s.now()}
	return nil
}

// GetLatest returns the snapshot stored under name. found is false when none
// exists or it has expired.
func (s *MemoryStore) GetLatest(ctx context.Context, name string) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, found := s.entries[name]
	if !found || s.expired(e, s.now()) {
		return Snapshot{}, false, nil
	}
	return clone(e.snapshot), true, nil
}

// Janitor removes expired snapshots every interval until ctx is done.
// It returns immediately when the store has no TTL.
func (s *MemoryStore) Janitor(ctx context.Context, interval time.Duration) {
	if s.ttl == 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for name, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, name)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) expired(e entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.storedAt) > s.ttl
}
