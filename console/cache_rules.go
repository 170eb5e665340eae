package console

import (
	"context"

	"github.com/saiset-co/sai-gateway-console/api"
	"github.com/saiset-co/sai-gateway-console/mutation"
	"github.com/saiset-co/sai-gateway-console/query"
	"github.com/saiset-co/sai-gateway-console/types"
)

const cacheRulesResource = "cache-rules"

type CacheRules struct {
	session *Session
}

func (c *CacheRules) Key() query.Key {
	return c.session.Key(cacheRulesResource)
}

func (c *CacheRules) List(ctx context.Context) ([]types.CacheRule, error) {
	userID := c.session.UserID()
	key := keyFor(userID, cacheRulesResource)
	c.session.register(userID, key, func(ctx context.Context, client *api.API) (interface{}, error) {
		return client.CacheRules.List(ctx)
	})

	return query.FetchAs[[]types.CacheRule](ctx, c.session.queries, key)
}

func (c *CacheRules) Create(ctx context.Context, input *types.CacheRuleInput) (*types.CacheRule, error) {
	client, err := c.session.api()
	if err != nil {
		return nil, err
	}

	tempID := mutation.NewTempID()
	placeholder := types.CacheRule{
		RouteID:         input.RouteID,
		TTLSeconds:      input.TTLSeconds,
		CacheKeyPattern: input.CacheKeyPattern,
		Enabled:         true,
		TempID:          tempID,
	}

	return mutation.Run(ctx, c.session.mutations, mutation.Mutation[[]types.CacheRule, *types.CacheRule]{
		Resource: cacheRulesResource,
		Key:      c.Key(),
		Patch:    mutation.Append(placeholder),
		Call: func(ctx context.Context) (*types.CacheRule, error) {
			return client.CacheRules.Create(ctx, input)
		},
		Reconcile: func(current []types.CacheRule, created *types.CacheRule) []types.CacheRule {
			if created == nil {
				return current
			}
			return mutation.ReplaceTemp(tempID, *created)(current)
		},
	})
}

func (c *CacheRules) Update(ctx context.Context, id int64, input *types.CacheRuleInput) (*types.CacheRule, error) {
	client, err := c.session.api()
	if err != nil {
		return nil, err
	}

	matchID := func(rule types.CacheRule) bool { return rule.ID == id }

	return mutation.Run(ctx, c.session.mutations, mutation.Mutation[[]types.CacheRule, *types.CacheRule]{
		Resource: cacheRulesResource,
		Key:      c.Key(),
		Patch: mutation.UpdateWhere(matchID, func(rule types.CacheRule) types.CacheRule {
			rule.RouteID = input.RouteID
			rule.TTLSeconds = input.TTLSeconds
			rule.CacheKeyPattern = input.CacheKeyPattern
			return rule
		}),
		Call: func(ctx context.Context) (*types.CacheRule, error) {
			return client.CacheRules.Update(ctx, id, input)
		},
		Reconcile: func(current []types.CacheRule, updated *types.CacheRule) []types.CacheRule {
			if updated == nil {
				return current
			}
			return mutation.UpdateWhere(matchID, func(types.CacheRule) types.CacheRule { return *updated })(current)
		},
	})
}

func (c *CacheRules) Delete(ctx context.Context, id int64) error {
	client, err := c.session.api()
	if err != nil {
		return err
	}

	_, err = mutation.Run(ctx, c.session.mutations, mutation.Mutation[[]types.CacheRule, struct{}]{
		Resource: cacheRulesResource,
		Key:      c.Key(),
		Patch:    mutation.RemoveWhere(func(rule types.CacheRule) bool { return rule.ID == id }),
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, client.CacheRules.Delete(ctx, id)
		},
	})
	return err
}

// Invalidate purges the gateway's own response cache. The rule list is
// not affected.
func (c *CacheRules) Invalidate(ctx context.Context, pattern string) error {
	client, err := c.session.api()
	if err != nil {
		return err
	}
	return client.CacheRules.Invalidate(ctx, pattern)
}
