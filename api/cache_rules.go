package api

import (
	"context"
	"net/http"

	"github.com/saiset-co/sai-gateway-console/types"
)

type CacheRules struct {
	caller *caller
}

func (c *CacheRules) List(ctx context.Context) ([]types.CacheRule, error) {
	return fetch[[]types.CacheRule](ctx, c.caller, CacheRulesPath, nil)
}

func (c *CacheRules) Create(ctx context.Context, input *types.CacheRuleInput) (*types.CacheRule, error) {
	return fetch[*types.CacheRule](ctx, c.caller, CacheRulesPath, &types.RequestOptions{
		Method: http.MethodPost,
		Body:   input,
	})
}

func (c *CacheRules) Update(ctx context.Context, id int64, input *types.CacheRuleInput) (*types.CacheRule, error) {
	return fetch[*types.CacheRule](ctx, c.caller, resourcePath(CacheRulesPath, id), &types.RequestOptions{
		Method: http.MethodPut,
		Body:   input,
	})
}

func (c *CacheRules) Delete(ctx context.Context, id int64) error {
	return send(ctx, c.caller, http.MethodDelete, resourcePath(CacheRulesPath, id), nil)
}

// Invalidate purges gateway cache entries matching pattern. An empty
// pattern purges everything.
func (c *CacheRules) Invalidate(ctx context.Context, pattern string) error {
	if pattern == "" {
		pattern = DefaultInvalidatePattern
	}
	return send(ctx, c.caller, http.MethodPost, CacheInvalidatePath, &types.InvalidateRequest{Pattern: pattern})
}
