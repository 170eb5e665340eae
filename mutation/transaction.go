package mutation

import (
	"context"

	"github.com/saiset-co/sai-gateway-console/query"
)

// Transaction is one speculative change of a cached collection. It holds
// the key's mutation lock until Commit or Abort.
type Transaction[T any] struct {
	controller *Controller
	key        query.Key
	snapshot   interface{}
	existed    bool
	unlock     func()
	done       bool
}

// Begin waits for earlier mutations of key, stops any refresh racing the
// write and captures the current value.
func Begin[T any](ctx context.Context, c *Controller, key query.Key) (*Transaction[T], error) {
	unlock, err := c.acquire(ctx, key.String())
	if err != nil {
		return nil, err
	}

	c.cache.CancelRefresh(key)
	snapshot, existed := c.cache.Get(key)

	return &Transaction[T]{
		controller: c,
		key:        key,
		snapshot:   snapshot,
		existed:    existed,
		unlock:     unlock,
	}, nil
}

func (tx *Transaction[T]) Apply(patch func(current T) T) {
	if tx.done {
		return
	}

	tx.controller.cache.Update(tx.key, func(current interface{}, _ bool) interface{} {
		typed, _ := current.(T)
		return patch(typed)
	})
}

func (tx *Transaction[T]) Commit(reconcile func(current T) T) {
	if tx.done {
		return
	}

	if reconcile != nil {
		tx.Apply(reconcile)
	}

	tx.finish()
}

// Abort restores the value captured by Begin, or removes the entry when
// there was none.
func (tx *Transaction[T]) Abort() {
	if tx.done {
		return
	}

	if tx.existed {
		tx.controller.cache.Set(tx.key, tx.snapshot)
	} else {
		tx.controller.cache.Remove(tx.key)
	}

	tx.finish()
}

// finish schedules the settle refresh while the key is still locked, so a
// queued mutation's Begin always supersedes it.
func (tx *Transaction[T]) finish() {
	tx.done = true
	tx.controller.cache.Invalidate(tx.key)
	tx.unlock()
}
