package console

import (
	"context"
	"time"

	"github.com/saiset-co/sai-gateway-console/api"
	"github.com/saiset-co/sai-gateway-console/mutation"
	"github.com/saiset-co/sai-gateway-console/query"
	"github.com/saiset-co/sai-gateway-console/types"
)

const (
	apiKeysResource = "api-keys"

	// PendingKeyValue is shown in place of the secret until the backend
	// returns the real key.
	PendingKeyValue = "gw_loading..."
)

type APIKeys struct {
	session *Session
}

func (k *APIKeys) Key() query.Key {
	return k.session.Key(apiKeysResource)
}

func (k *APIKeys) List(ctx context.Context) ([]types.APIKey, error) {
	userID := k.session.UserID()
	key := keyFor(userID, apiKeysResource)
	k.session.register(userID, key, func(ctx context.Context, client *api.API) (interface{}, error) {
		return client.APIKeys.List(ctx)
	})

	return query.FetchAs[[]types.APIKey](ctx, k.session.queries, key)
}

func (k *APIKeys) Create(ctx context.Context, input *types.APIKeyInput) (*types.APIKey, error) {
	client, err := k.session.api()
	if err != nil {
		return nil, err
	}

	tempID := mutation.NewTempID()
	placeholder := types.APIKey{
		Name:         input.Name,
		Key:          PendingKeyValue,
		Tier:         input.Tier,
		RateLimitRPM: input.RateLimitRPM,
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
		TempID:       tempID,
	}

	return mutation.Run(ctx, k.session.mutations, mutation.Mutation[[]types.APIKey, *types.APIKey]{
		Resource: apiKeysResource,
		Key:      k.Key(),
		Patch:    mutation.Append(placeholder),
		Call: func(ctx context.Context) (*types.APIKey, error) {
			return client.APIKeys.Create(ctx, input)
		},
		Reconcile: func(current []types.APIKey, created *types.APIKey) []types.APIKey {
			if created == nil {
				return current
			}
			return mutation.ReplaceTemp(tempID, *created)(current)
		},
	})
}

func (k *APIKeys) Revoke(ctx context.Context, id int64) error {
	client, err := k.session.api()
	if err != nil {
		return err
	}

	_, err = mutation.Run(ctx, k.session.mutations, mutation.Mutation[[]types.APIKey, struct{}]{
		Resource: apiKeysResource,
		Key:      k.Key(),
		Patch: mutation.UpdateWhere(func(key types.APIKey) bool { return key.ID == id }, func(key types.APIKey) types.APIKey {
			key.Enabled = false
			return key
		}),
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, client.APIKeys.Revoke(ctx, id)
		},
	})
	return err
}

func (k *APIKeys) Delete(ctx context.Context, id int64) error {
	client, err := k.session.api()
	if err != nil {
		return err
	}

	_, err = mutation.Run(ctx, k.session.mutations, mutation.Mutation[[]types.APIKey, struct{}]{
		Resource: apiKeysResource,
		Key:      k.Key(),
		Patch:    mutation.RemoveWhere(func(key types.APIKey) bool { return key.ID == id }),
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, client.APIKeys.Delete(ctx, id)
		},
	})
	return err
}
