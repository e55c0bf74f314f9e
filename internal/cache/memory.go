package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

type resultEntry struct {
	Path      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// MemoryStore is the in-process equivalent of RedisStore, used when Redis is
// not configured and in tests.
type MemoryStore struct {
	mu         sync.RWMutex
	tags       map[string]map[string]struct{}
	results    map[string]resultEntry
	maxResults int
	now        func() time.Time
}

func NewMemoryStore(maxResults int) *MemoryStore {
	if maxResults <= 0 {
		maxResults = 2000
	}
	return &MemoryStore{
		tags:       make(map[string]map[string]struct{}),
		results:    make(map[string]resultEntry),
		maxResults: maxResults,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) AddMembers(_ context.Context, tag string, items ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.tags[tag]
	if !ok {
		set = make(map[string]struct{}, len(items))
		s.tags[tag] = set
	}
	for _, item := range items {
		set[item] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) Intersect(_ context.Context, tags []string) ([]string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]string, 0)
	for item := range s.tags[tags[0]] {
		inAll := true
		for _, tag := range tags[1:] {
			if _, ok := s.tags[tag][item]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			items = append(items, item)
		}
	}
	sort.Strings(items)
	return items, nil
}

func (s *MemoryStore) GetResult(_ context.Context, tags []string) (string, bool, error) {
	key := ResultKey(tags)
	s.mu.RLock()
	entry, ok := s.results[key]
	s.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if !entry.ExpiresAt.IsZero() && s.now().After(entry.ExpiresAt) {
		s.mu.Lock()
		delete(s.results, key)
		s.mu.Unlock()
		return "", false, nil
	}
	return entry.Path, true, nil
}

// SetResult stores path under the tags' key. A ttl of zero never expires.
func (s *MemoryStore) SetResult(_ context.Context, tags []string, path string, ttl time.Duration) error {
	now := s.now()
	entry := resultEntry{Path: path, CreatedAt: now}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	key := ResultKey(tags)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[key]; !exists && len(s.results) >= s.maxResults {
		s.evictOldest()
	}
	s.results[key] = entry
	return nil
}

// ResultTTL reports the remaining lifetime of the tags' entry.
func (s *MemoryStore) ResultTTL(tags []string) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.results[ResultKey(tags)]
	if !ok || entry.ExpiresAt.IsZero() {
		return 0, ok
	}
	return entry.ExpiresAt.Sub(s.now()), true
}

func (s *MemoryStore) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range s.results {
		if oldestKey == "" || entry.CreatedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.CreatedAt
		}
	}
	delete(s.results, oldestKey)
}
