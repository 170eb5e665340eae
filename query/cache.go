package query

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-gateway-console/types"
)

const DefaultRefreshTimeout = 10 * time.Second

// Fetcher loads the authoritative value of one key.
type Fetcher func(ctx context.Context) (interface{}, error)

// Listener receives the current value of a key after every change. A nil
// value with exists false means the entry was removed.
type Listener func(value interface{}, exists bool)

type entry struct {
	value      interface{}
	exists     bool
	stale      bool
	fetcher    Fetcher
	generation uint64
	cancel     context.CancelFunc
}

type subscription struct {
	id       uint64
	listener Listener
}

// Cache holds the collections shown by the console. Values are replaced
// wholesale and must be treated as immutable by readers.
type Cache struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         types.Logger
	metrics        types.MetricsManager
	refreshTimeout time.Duration
	entries        map[string]*entry
	subscribers    map[string][]subscription
	nextID         uint64
	mu             sync.Mutex
	wg             sync.WaitGroup
}

func NewCache(ctx context.Context, logger types.Logger, metrics types.MetricsManager, refreshTimeout time.Duration) *Cache {
	if refreshTimeout <= 0 {
		refreshTimeout = DefaultRefreshTimeout
	}

	cacheCtx, cancel := context.WithCancel(ctx)

	return &Cache{
		ctx:            cacheCtx,
		cancel:         cancel,
		logger:         logger,
		metrics:        metrics,
		refreshTimeout: refreshTimeout,
		entries:        make(map[string]*entry),
		subscribers:    make(map[string][]subscription),
	}
}

func (c *Cache) Register(key Key, fetcher Fetcher) {
	c.mu.Lock()
	c.entryUnsafe(key.String()).fetcher = fetcher
	c.mu.Unlock()
}

// Fetch returns the cached value when it is fresh and loads it through the
// registered fetcher otherwise.
func (c *Cache) Fetch(ctx context.Context, key Key) (interface{}, error) {
	id := key.String()

	c.mu.Lock()
	e, ok := c.entries[id]
	if ok && e.exists && !e.stale {
		value := e.value
		c.mu.Unlock()
		return value, nil
	}
	if !ok || e.fetcher == nil {
		c.mu.Unlock()
		return nil, types.Errorf(types.ErrQueryNotFetchable, "%s", id)
	}
	fetcher := e.fetcher
	generation := e.generation
	c.mu.Unlock()

	value, err := fetcher(ctx)
	if err != nil {
		c.recordRefresh("error")
		return nil, err
	}

	if c.storeIfCurrent(id, generation, value) {
		c.recordRefresh("success")
	} else {
		c.recordRefresh("discarded")
	}

	return value, nil
}

func (c *Cache) Get(key Key) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok || !e.exists {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) Set(key Key, value interface{}) {
	id := key.String()

	c.mu.Lock()
	e := c.entryUnsafe(id)
	c.cancelRefreshUnsafe(e)
	e.value = value
	e.exists = true
	e.stale = false
	listeners := c.listenersUnsafe(id)
	c.mu.Unlock()

	notify(listeners, value, true)
}

// Update replaces the value of key with fn(current) in one step. Like Set,
// the written value is fresh and supersedes any load still in flight.
func (c *Cache) Update(key Key, fn func(current interface{}, exists bool) interface{}) interface{} {
	id := key.String()

	c.mu.Lock()
	e := c.entryUnsafe(id)
	c.cancelRefreshUnsafe(e)
	e.value = fn(e.value, e.exists)
	e.exists = true
	e.stale = false
	value := e.value
	listeners := c.listenersUnsafe(id)
	c.mu.Unlock()

	notify(listeners, value, true)
	return value
}

// Remove drops the value of key. A registered fetcher is kept.
func (c *Cache) Remove(key Key) {
	id := key.String()

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.cancelRefreshUnsafe(e)
	e.value = nil
	e.exists = false
	e.stale = false
	listeners := c.listenersUnsafe(id)
	c.mu.Unlock()

	notify(listeners, nil, false)
}

// CancelRefresh aborts any in-flight load of key and guarantees its result
// is never stored.
func (c *Cache) CancelRefresh(key Key) {
	c.mu.Lock()
	if e, ok := c.entries[key.String()]; ok {
		c.cancelRefreshUnsafe(e)
	}
	c.mu.Unlock()
}

// Invalidate marks key stale and reloads it in the background when a
// fetcher is registered.
func (c *Cache) Invalidate(key Key) {
	id := key.String()

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return
	}

	e.stale = true
	if e.fetcher == nil || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}

	c.cancelRefreshUnsafe(e)
	refreshCtx, cancel := context.WithTimeout(c.ctx, c.refreshTimeout)
	e.cancel = cancel
	generation := e.generation
	fetcher := e.fetcher
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer cancel()

		value, err := fetcher(refreshCtx)
		if err != nil {
			c.recordRefresh("error")
			c.logger.Warn("Background refresh failed",
				zap.String("key", id),
				zap.Error(err))
			return
		}

		if !c.storeIfCurrent(id, generation, value) {
			c.recordRefresh("discarded")
			c.logger.Debug("Discarded superseded refresh",
				zap.String("key", id))
			return
		}

		c.recordRefresh("success")
	}()
}

// Subscribe registers listener for changes of key and returns a function
// that removes it.
func (c *Cache) Subscribe(key Key, listener Listener) func() {
	id := key.String()

	c.mu.Lock()
	c.nextID++
	subID := c.nextID
	c.subscribers[id] = append(c.subscribers[id], subscription{id: subID, listener: listener})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		subs := c.subscribers[id]
		for i, s := range subs {
			if s.id == subID {
				c.subscribers[id] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(c.subscribers[id]) == 0 {
			delete(c.subscribers, id)
		}
	}
}

// Clear drops every entry and fetcher. Subscriptions survive.
func (c *Cache) Clear() {
	c.mu.Lock()
	for _, e := range c.entries {
		c.cancelRefreshUnsafe(e)
	}
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	c.logger.Debug("Query cache cleared")
}

// Close cancels every refresh and waits for background loads to return.
func (c *Cache) Close() {
	c.cancel()
	c.Clear()
	c.wg.Wait()
}

func (c *Cache) storeIfCurrent(id string, generation uint64, value interface{}) bool {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.generation != generation {
		c.mu.Unlock()
		return false
	}

	e.value = value
	e.exists = true
	e.stale = false
	e.cancel = nil
	listeners := c.listenersUnsafe(id)
	c.mu.Unlock()

	notify(listeners, value, true)
	return true
}

func (c *Cache) entryUnsafe(id string) *entry {
	e, ok := c.entries[id]
	if !ok {
		e = &entry{}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) cancelRefreshUnsafe(e *entry) {
	e.generation++
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (c *Cache) listenersUnsafe(id string) []Listener {
	subs := c.subscribers[id]
	if len(subs) == 0 {
		return nil
	}

	listeners := make([]Listener, len(subs))
	for i, s := range subs {
		listeners[i] = s.listener
	}
	return listeners
}

func notify(listeners []Listener, value interface{}, exists bool) {
	for _, listener := range listeners {
		listener(value, exists)
	}
}

func (c *Cache) recordRefresh(result string) {
	if c.metrics == nil {
		return
	}

	c.metrics.Counter("query_refresh_total", map[string]string{
		"result": result,
	}).Inc()
}
