package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

type memoryEntry struct {
	artifact  domain.Artifact
	storedAt  time.Time
	expiresAt time.Time
}

type MemoryConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// MemoryArtifactStore keeps artifacts in process memory. Used for local
// development and tests when Redis is not configured.
type MemoryArtifactStore struct {
	mu         sync.RWMutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewMemoryArtifactStore(config MemoryConfig) *MemoryArtifactStore {
	if config.TTL <= 0 {
		config.TTL = 30 * 24 * time.Hour
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 512
	}
	return &MemoryArtifactStore{
		entries:    make(map[string]memoryEntry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
		now:        time.Now,
	}
}

func (s *MemoryArtifactStore) Get(_ context.Context, key string) (domain.Artifact, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return domain.Artifact{}, ErrNotFound
	}
	if s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return domain.Artifact{}, ErrNotFound
	}
	return entry.artifact.Clone(), nil
}

func (s *MemoryArtifactStore) Put(_ context.Context, key string, artifact domain.Artifact) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.maxEntries {
		s.evictOldest()
	}
	s.entries[key] = memoryEntry{
		artifact:  artifact.Clone(),
		storedAt:  now,
		expiresAt: now.Add(s.ttl),
	}
	return nil
}

func (s *MemoryArtifactStore) evictOldest() {
	if len(s.entries) == 0 {
		return
	}

	type pair struct {
		key   string
		entry memoryEntry
	}
	pairs := make([]pair, 0, len(s.entries))
	for key, entry := range s.entries {
		pairs = append(pairs, pair{key: key, entry: entry})
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].entry.storedAt.Before(pairs[j].entry.storedAt)
	})
	delete(s.entries, pairs[0].key)
}
