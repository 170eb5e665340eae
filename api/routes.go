package api

import (
	"context"
	"net/http"

	"github.com/saiset-co/sai-gateway-console/types"
)

type Routes struct {
	caller *caller
}

func (r *Routes) List(ctx context.Context) ([]types.Route, error) {
	return fetch[[]types.Route](ctx, r.caller, RoutesPath, nil)
}

func (r *Routes) Get(ctx context.Context, id int64) (*types.Route, error) {
	return fetch[*types.Route](ctx, r.caller, resourcePath(RoutesPath, id), nil)
}

func (r *Routes) Create(ctx context.Context, input *types.RouteInput) (*types.Route, error) {
	return fetch[*types.Route](ctx, r.caller, RoutesPath, &types.RequestOptions{
		Method: http.MethodPost,
		Body:   input,
	})
}

func (r *Routes) Update(ctx context.Context, id int64, input *types.RouteInput) (*types.Route, error) {
	return fetch[*types.Route](ctx, r.caller, resourcePath(RoutesPath, id), &types.RequestOptions{
		Method: http.MethodPut,
		Body:   input,
	})
}

func (r *Routes) Delete(ctx context.Context, id int64) error {
	return send(ctx, r.caller, http.MethodDelete, resourcePath(RoutesPath, id), nil)
}
