package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-gateway-console/types"
)

type recordedCall struct {
	endpoint string
	token    string
	method   string
	body     interface{}
}

type fakeRequests struct {
	calls    []recordedCall
	response []byte
	err      error
}

func (f *fakeRequests) Execute(_ context.Context, endpoint, token string, opts *types.RequestOptions) ([]byte, error) {
	call := recordedCall{endpoint: endpoint, token: token, method: opts.GetMethod()}
	if opts != nil {
		call.body = opts.Body
	}
	f.calls = append(f.calls, call)

	if f.err != nil {
		return nil, f.err
	}
	if f.response == nil {
		return []byte("null"), nil
	}
	return f.response, nil
}

func (f *fakeRequests) last() recordedCall {
	return f.calls[len(f.calls)-1]
}

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(&fakeRequests{}, "")
	assert.ErrorIs(t, err, types.ErrAuthenticationRequired)
}

func TestRoutes(t *testing.T) {
	requests := &fakeRequests{response: []byte(`[{"id":1,"path":"/users","backend_urls":["http://a"],"load_balancing_strategy":"round_robin","timeout_ms":3000,"retry_count":2,"enabled":true}]`)}
	client, err := New(requests, "token-a")
	require.NoError(t, err)
	ctx := context.Background()

	routes, err := client.Routes.List(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, int64(1), routes[0].ID)
	assert.Equal(t, []string{"http://a"}, routes[0].BackendURLs)
	assert.Equal(t, recordedCall{endpoint: "/admin/routes", token: "token-a", method: http.MethodGet}, requests.last())

	requests.response = []byte(`{"id":9,"path":"/orders"}`)
	input := &types.RouteInput{Path: "/orders"}

	created, err := client.Routes.Create(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, int64(9), created.ID)
	assert.Equal(t, recordedCall{endpoint: "/admin/routes", token: "token-a", method: http.MethodPost, body: input}, requests.last())

	_, err = client.Routes.Get(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, "/admin/routes/9", requests.last().endpoint)

	_, err = client.Routes.Update(ctx, 9, input)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, requests.last().method)
	assert.Equal(t, "/admin/routes/9", requests.last().endpoint)

	require.NoError(t, client.Routes.Delete(ctx, 9))
	assert.Equal(t, recordedCall{endpoint: "/admin/routes/9", token: "token-a", method: http.MethodDelete}, requests.last())
}

func TestAPIKeys(t *testing.T) {
	requests := &fakeRequests{}
	client, err := New(requests, "token-a")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, client.APIKeys.Revoke(ctx, 4))
	assert.Equal(t, recordedCall{endpoint: "/admin/api-keys/4/revoke", token: "token-a", method: http.MethodPost}, requests.last())

	require.NoError(t, client.APIKeys.Delete(ctx, 4))
	assert.Equal(t, "/admin/api-keys/4", requests.last().endpoint)
	assert.Equal(t, http.MethodDelete, requests.last().method)

	requests.response = []byte(`{"id":42,"name":"k","key":"gw_abc","tier":"free","rate_limit_rpm":60,"enabled":true}`)
	key, err := client.APIKeys.Create(ctx, &types.APIKeyInput{Name: "k", Tier: "free", RateLimitRPM: 60})
	require.NoError(t, err)
	assert.Equal(t, "gw_abc", key.Key)
	assert.Equal(t, "/admin/api-keys", requests.last().endpoint)
}

func TestCacheRules_InvalidateDefaultsPattern(t *testing.T) {
	requests := &fakeRequests{}
	client, err := New(requests, "token-a")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, client.CacheRules.Invalidate(ctx, ""))
	assert.Equal(t, recordedCall{
		endpoint: "/admin/cache/invalidate",
		token:    "token-a",
		method:   http.MethodPost,
		body:     &types.InvalidateRequest{Pattern: "cache:*"},
	}, requests.last())

	require.NoError(t, client.CacheRules.Invalidate(ctx, "cache:/users*"))
	assert.Equal(t, &types.InvalidateRequest{Pattern: "cache:/users*"}, requests.last().body)

	_, err = client.CacheRules.Update(ctx, 3, &types.CacheRuleInput{RouteID: 1, TTLSeconds: 30})
	require.NoError(t, err)
	assert.Equal(t, "/admin/cache-rules/3", requests.last().endpoint)
}

func TestAnalytics_MetricsEndpoint(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "/admin/analytics/metrics", MetricsEndpoint(time.Time{}, time.Time{}))
	assert.Equal(t, "/admin/analytics/metrics?start=2024-01-01T00%3A00%3A00Z", MetricsEndpoint(start, time.Time{}))
	assert.Equal(t, "/admin/analytics/metrics?end=2024-01-02T00%3A00%3A00Z&start=2024-01-01T00%3A00%3A00Z", MetricsEndpoint(start, end))
}

func TestAnalytics_Metrics(t *testing.T) {
	requests := &fakeRequests{response: []byte(`{"total_requests":10,"error_rate":0.1,"top_endpoints":[{"path":"/a","request_count":5}]}`)}
	client, err := New(requests, "token-a")
	require.NoError(t, err)

	snapshot, err := client.Analytics.Metrics(context.Background(), time.Time{}, time.Time{})

	require.NoError(t, err)
	assert.Equal(t, int64(10), snapshot.TotalRequests)
	require.Len(t, snapshot.TopEndpoints, 1)
	assert.Equal(t, "/a", snapshot.TopEndpoints[0].Path)
}

func TestFetch_ErrorsPassThrough(t *testing.T) {
	requests := &fakeRequests{err: types.ErrUnauthorized}
	client, err := New(requests, "token-a")
	require.NoError(t, err)

	_, err = client.Routes.List(context.Background())
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	requests.err = nil
	requests.response = []byte(`{"not":"a list"}`)
	_, err = client.Routes.List(context.Background())
	assert.ErrorIs(t, err, types.ErrResponseInvalid)
}

func TestStreamURL(t *testing.T) {
	assert.Equal(t, "", StreamURL("http://localhost:8080", ""))
	assert.Equal(t,
		"http://localhost:8080/admin/analytics/stream?token=a%2Bb%2Fc%3D",
		StreamURL("http://localhost:8080", "a+b/c="))
}
