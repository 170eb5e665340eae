package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/saiset-co/sai-gateway-console/types"
	"github.com/saiset-co/sai-gateway-console/utils"
)

const (
	RoutesPath           = "/admin/routes"
	APIKeysPath          = "/admin/api-keys"
	CacheRulesPath       = "/admin/cache-rules"
	CacheInvalidatePath  = "/admin/cache/invalidate"
	AnalyticsMetricsPath = "/admin/analytics/metrics"
	AnalyticsStreamPath  = "/admin/analytics/stream"

	DefaultInvalidatePattern = "cache:*"
)

// API binds the typed admin endpoints to one credential.
type API struct {
	Routes     *Routes
	APIKeys    *APIKeys
	CacheRules *CacheRules
	Analytics  *Analytics
}

type caller struct {
	requests types.RequestClient
	token    string
}

func New(requests types.RequestClient, token string) (*API, error) {
	if token == "" {
		return nil, types.ErrAuthenticationRequired
	}
	if requests == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "request client is nil")
	}

	c := &caller{requests: requests, token: token}

	return &API{
		Routes:     &Routes{caller: c},
		APIKeys:    &APIKeys{caller: c},
		CacheRules: &CacheRules{caller: c},
		Analytics:  &Analytics{caller: c},
	}, nil
}

// StreamURL returns the analytics stream address for token, or "" when
// there is no token.
func StreamURL(baseURL, token string) string {
	return StreamURLFor(baseURL, AnalyticsStreamPath, token)
}

func StreamURLFor(baseURL, path, token string) string {
	if token == "" {
		return ""
	}
	return baseURL + path + "?token=" + url.QueryEscape(token)
}

func resourcePath(base string, id int64, suffix ...string) string {
	path := base + "/" + strconv.FormatInt(id, 10)
	for _, s := range suffix {
		path += "/" + s
	}
	return path
}

func fetch[T any](ctx context.Context, c *caller, endpoint string, opts *types.RequestOptions) (T, error) {
	var out T

	payload, err := c.requests.Execute(ctx, endpoint, c.token, opts)
	if err != nil {
		return out, err
	}

	if err := utils.Unmarshal(payload, &out); err != nil {
		return out, types.Errorf(types.ErrResponseInvalid, "%s: %v", endpoint, err)
	}

	return out, nil
}

func send(ctx context.Context, c *caller, method, endpoint string, body interface{}) error {
	_, err := c.requests.Execute(ctx, endpoint, c.token, &types.RequestOptions{
		Method: method,
		Body:   body,
	})
	return err
}
