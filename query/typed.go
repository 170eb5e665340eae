package query

import (
	"context"

	"github.com/saiset-co/sai-gateway-console/types"
)

func GetAs[T any](c *Cache, key Key) (T, bool) {
	var zero T

	value, ok := c.Get(key)
	if !ok {
		return zero, false
	}

	typed, ok := value.(T)
	return typed, ok
}

func FetchAs[T any](ctx context.Context, c *Cache, key Key) (T, error) {
	var zero T

	value, err := c.Fetch(ctx, key)
	if err != nil {
		return zero, err
	}

	typed, ok := value.(T)
	if !ok {
		return zero, types.Errorf(types.ErrInvalidState, "unexpected value type %T for %s", value, key)
	}
	return typed, nil
}
