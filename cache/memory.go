package cache

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-gateway-console/types"
)

const (
	DefaultTTL        = time.Second
	DefaultMaxEntries = 100
	DefaultCompactTo  = 50
)

type ResponseCacheConfig struct {
	TTL        time.Duration
	MaxEntries int
	CompactTo  int
}

// ResponseCache holds successful read payloads for a short TTL. Age is
// measured from the time an entry was stored, never from its last read.
type ResponseCache struct {
	config *ResponseCacheConfig
	logger types.Logger
	clock  clock.Clock
	data   map[string]*types.CacheEntry
	mu     sync.RWMutex

	hits        uint64
	misses      uint64
	compactions uint64
}

func NewResponseCache(logger types.Logger, clk clock.Clock, config *ResponseCacheConfig) *ResponseCache {
	cfg := &ResponseCacheConfig{
		TTL:        DefaultTTL,
		MaxEntries: DefaultMaxEntries,
		CompactTo:  DefaultCompactTo,
	}

	if config != nil {
		if config.TTL > 0 {
			cfg.TTL = config.TTL
		}
		if config.MaxEntries > 0 {
			cfg.MaxEntries = config.MaxEntries
		}
		if config.CompactTo > 0 {
			cfg.CompactTo = config.CompactTo
		}
	}

	if cfg.CompactTo > cfg.MaxEntries {
		cfg.CompactTo = cfg.MaxEntries / 2
	}

	if clk == nil {
		clk = clock.New()
	}

	return &ResponseCache{
		config: cfg,
		logger: logger,
		clock:  clk,
		data:   make(map[string]*types.CacheEntry),
	}
}

func (m *ResponseCache) Get(key string) ([]byte, bool) {
	now := m.clock.Now()

	m.mu.RLock()
	entry, exists := m.data[key]
	m.mu.RUnlock()

	if !exists || now.Sub(entry.StoredAt) >= m.config.TTL {
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&m.hits, 1)
	return entry.Payload, true
}

func (m *ResponseCache) Set(key string, payload []byte) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	entry := &types.CacheEntry{
		Key:      key,
		Payload:  payload,
		StoredAt: m.clock.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = entry

	if len(m.data) > m.config.MaxEntries {
		m.compactUnsafe()
	}

	return nil
}

func (m *ResponseCache) Delete(key string) {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
}

func (m *ResponseCache) Clear() {
	m.mu.Lock()
	m.data = make(map[string]*types.CacheEntry)
	m.mu.Unlock()
}

func (m *ResponseCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *ResponseCache) Compact() {
	m.mu.Lock()
	m.compactUnsafe()
	m.mu.Unlock()
}

func (m *ResponseCache) Stats() (hits, misses, compactions uint64) {
	return atomic.LoadUint64(&m.hits), atomic.LoadUint64(&m.misses), atomic.LoadUint64(&m.compactions)
}

// compactUnsafe keeps the CompactTo most recently stored entries.
func (m *ResponseCache) compactUnsafe() {
	if len(m.data) <= m.config.CompactTo {
		return
	}

	entries := make([]*types.CacheEntry, 0, len(m.data))
	for _, entry := range m.data {
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StoredAt.After(entries[j].StoredAt)
	})

	before := len(entries)
	m.data = make(map[string]*types.CacheEntry, m.config.CompactTo)
	for _, entry := range entries[:m.config.CompactTo] {
		m.data[entry.Key] = entry
	}

	atomic.AddUint64(&m.compactions, 1)

	if m.logger != nil {
		m.logger.Debug("Response cache compacted",
			zap.Int("before", before),
			zap.Int("after", len(m.data)))
	}
}
