package api

import (
	"context"
	"net/http"

	"github.com/saiset-co/sai-gateway-console/types"
)

type APIKeys struct {
	caller *caller
}

func (k *APIKeys) List(ctx context.Context) ([]types.APIKey, error) {
	return fetch[[]types.APIKey](ctx, k.caller, APIKeysPath, nil)
}

func (k *APIKeys) Create(ctx context.Context, input *types.APIKeyInput) (*types.APIKey, error) {
	return fetch[*types.APIKey](ctx, k.caller, APIKeysPath, &types.RequestOptions{
		Method: http.MethodPost,
		Body:   input,
	})
}

func (k *APIKeys) Revoke(ctx context.Context, id int64) error {
	return send(ctx, k.caller, http.MethodPost, resourcePath(APIKeysPath, id, "revoke"), nil)
}

func (k *APIKeys) Delete(ctx context.Context, id int64) error {
	return send(ctx, k.caller, http.MethodDelete, resourcePath(APIKeysPath, id), nil)
}
