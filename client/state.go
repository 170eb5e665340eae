package client

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-gateway-console/cache"
)

// State is the per-session request state: the response cache and the
// registry of reads currently on the wire. One State is shared by every
// request issued for a signed-in session.
type State struct {
	cache      *cache.ResponseCache
	mu         sync.Mutex
	pending    *singleflight.Group
	generation uint64

	networkCalls atomic.Uint64
	cacheHits    atomic.Uint64
	sharedWaits  atomic.Uint64
}

func NewState(responseCache *cache.ResponseCache) *State {
	return &State{
		cache:   responseCache,
		pending: &singleflight.Group{},
	}
}

// Reset drops cached responses and detaches every pending read. Reads that
// are still on the wire complete for their own waiters but are not stored.
func (s *State) Reset() {
	s.invalidate()
}

func (s *State) NetworkCalls() uint64 {
	return s.networkCalls.Load()
}

func (s *State) CacheHits() uint64 {
	return s.cacheHits.Load()
}

func (s *State) SharedWaits() uint64 {
	return s.sharedWaits.Load()
}

func (s *State) Cache() *cache.ResponseCache {
	return s.cache
}

func (s *State) current() (*singleflight.Group, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, s.generation
}

// store keeps payload only when no invalidation happened since the read
// that produced it was registered.
func (s *State) store(generation uint64, key string, payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return false
	}

	return s.cache.Set(key, payload) == nil
}

func (s *State) invalidate() {
	s.mu.Lock()
	s.generation++
	s.pending = &singleflight.Group{}
	s.cache.Clear()
	s.mu.Unlock()
}
