package mutation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-gateway-console/query"
	"github.com/saiset-co/sai-gateway-console/types"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// Controller applies speculative writes to the query cache. Mutations of
// the same key run one at a time, from snapshot to commit or rollback.
type Controller struct {
	cache   *query.Cache
	logger  types.Logger
	metrics types.MetricsManager
	locks   map[string]*keyLock
	mu      sync.Mutex
}

func NewController(cache *query.Cache, logger types.Logger, metrics types.MetricsManager) *Controller {
	return &Controller{
		cache:   cache,
		logger:  logger,
		metrics: metrics,
		locks:   make(map[string]*keyLock),
	}
}

func (c *Controller) Cache() *query.Cache {
	return c.cache
}

func (c *Controller) acquire(ctx context.Context, id string) (func(), error) {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				c.release(id, l)
			})
		}, nil
	case <-ctx.Done():
		c.release(id, l)
		return nil, ctx.Err()
	}
}

func (c *Controller) release(id string, l *keyLock) {
	c.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(c.locks, id)
	}
	c.mu.Unlock()
}

func (c *Controller) recordMutation(resource, result string, duration time.Duration) {
	if c.metrics == nil {
		return
	}

	c.metrics.Counter("mutations_total", map[string]string{
		"resource": resource,
		"result":   result,
	}).Inc()

	c.metrics.Histogram("mutation_duration_seconds",
		[]float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
		map[string]string{"resource": resource},
	).Observe(duration.Seconds())
}

// Mutation describes one optimistic write against the collection at Key.
type Mutation[T, R any] struct {
	Resource  string
	Key       query.Key
	Patch     func(current T) T
	Call      func(ctx context.Context) (R, error)
	Reconcile func(current T, result R) T
}

// Run applies Patch, performs Call and then either reconciles the cache
// with the server result or restores the exact pre-patch state. The key is
// refreshed from the backend afterwards in both cases. The call's error is
// returned unchanged.
func Run[T, R any](ctx context.Context, c *Controller, m Mutation[T, R]) (R, error) {
	var zero R
	start := time.Now()

	tx, err := Begin[T](ctx, c, m.Key)
	if err != nil {
		return zero, err
	}

	if m.Patch != nil {
		tx.Apply(m.Patch)
	}

	result, err := m.Call(ctx)
	if err != nil {
		tx.Abort()

		c.recordMutation(m.Resource, "rolled_back", time.Since(start))
		c.logger.Warn("Mutation rolled back",
			zap.String("resource", m.Resource),
			zap.Stringer("key", m.Key),
			zap.Error(err))

		return result, err
	}

	tx.Commit(func(current T) T {
		if m.Reconcile == nil {
			return current
		}
		return m.Reconcile(current, result)
	})

	c.recordMutation(m.Resource, "committed", time.Since(start))
	c.logger.Debug("Mutation committed",
		zap.String("resource", m.Resource),
		zap.Stringer("key", m.Key))

	return result, nil
}
