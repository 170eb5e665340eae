package console

import (
	"context"
	"time"

	"github.com/saiset-co/sai-gateway-console/api"
	"github.com/saiset-co/sai-gateway-console/mutation"
	"github.com/saiset-co/sai-gateway-console/query"
	"github.com/saiset-co/sai-gateway-console/types"
)

const routesResource = "routes"

type Routes struct {
	session *Session
}

func (r *Routes) Key() query.Key {
	return r.session.Key(routesResource)
}

func (r *Routes) List(ctx context.Context) ([]types.Route, error) {
	userID := r.session.UserID()
	key := keyFor(userID, routesResource)
	r.session.register(userID, key, func(ctx context.Context, client *api.API) (interface{}, error) {
		return client.Routes.List(ctx)
	})

	return query.FetchAs[[]types.Route](ctx, r.session.queries, key)
}

func (r *Routes) Get(ctx context.Context, id int64) (*types.Route, error) {
	client, err := r.session.api()
	if err != nil {
		return nil, err
	}
	return client.Routes.Get(ctx, id)
}

func (r *Routes) Create(ctx context.Context, input *types.RouteInput) (*types.Route, error) {
	client, err := r.session.api()
	if err != nil {
		return nil, err
	}

	tempID := mutation.NewTempID()
	placeholder := types.Route{
		Path:                  input.Path,
		BackendURLs:           input.BackendURLs,
		LoadBalancingStrategy: input.LoadBalancingStrategy,
		TimeoutMs:             input.TimeoutMs,
		RetryCount:            input.RetryCount,
		Enabled:               true,
		CreatedAt:             time.Now().UTC(),
		TempID:                tempID,
	}

	return mutation.Run(ctx, r.session.mutations, mutation.Mutation[[]types.Route, *types.Route]{
		Resource: routesResource,
		Key:      r.Key(),
		Patch:    mutation.Append(placeholder),
		Call: func(ctx context.Context) (*types.Route, error) {
			return client.Routes.Create(ctx, input)
		},
		Reconcile: func(current []types.Route, created *types.Route) []types.Route {
			if created == nil {
				return current
			}
			return mutation.ReplaceTemp(tempID, *created)(current)
		},
	})
}

func (r *Routes) Update(ctx context.Context, id int64, input *types.RouteInput) (*types.Route, error) {
	client, err := r.session.api()
	if err != nil {
		return nil, err
	}

	matchID := func(route types.Route) bool { return route.ID == id }

	return mutation.Run(ctx, r.session.mutations, mutation.Mutation[[]types.Route, *types.Route]{
		Resource: routesResource,
		Key:      r.Key(),
		Patch: mutation.UpdateWhere(matchID, func(route types.Route) types.Route {
			route.Path = input.Path
			route.BackendURLs = input.BackendURLs
			route.LoadBalancingStrategy = input.LoadBalancingStrategy
			route.TimeoutMs = input.TimeoutMs
			route.RetryCount = input.RetryCount
			return route
		}),
		Call: func(ctx context.Context) (*types.Route, error) {
			return client.Routes.Update(ctx, id, input)
		},
		Reconcile: func(current []types.Route, updated *types.Route) []types.Route {
			if updated == nil {
				return current
			}
			return mutation.UpdateWhere(matchID, func(types.Route) types.Route { return *updated })(current)
		},
	})
}

func (r *Routes) Delete(ctx context.Context, id int64) error {
	client, err := r.session.api()
	if err != nil {
		return err
	}

	_, err = mutation.Run(ctx, r.session.mutations, mutation.Mutation[[]types.Route, struct{}]{
		Resource: routesResource,
		Key:      r.Key(),
		Patch:    mutation.RemoveWhere(func(route types.Route) bool { return route.ID == id }),
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, client.Routes.Delete(ctx, id)
		},
	})
	return err
}
