package api

import (
	"context"
	"net/url"
	"time"

	"github.com/saiset-co/sai-gateway-console/types"
)

type Analytics struct {
	caller *caller
}

// Metrics fetches the aggregate snapshot for [start, end]. Zero bounds are
// left to the backend's defaults.
func (a *Analytics) Metrics(ctx context.Context, start, end time.Time) (*types.MetricsSnapshot, error) {
	return fetch[*types.MetricsSnapshot](ctx, a.caller, MetricsEndpoint(start, end), nil)
}

func MetricsEndpoint(start, end time.Time) string {
	params := url.Values{}
	if !start.IsZero() {
		params.Set("start", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		params.Set("end", end.UTC().Format(time.RFC3339))
	}

	if query := params.Encode(); query != "" {
		return AnalyticsMetricsPath + "?" + query
	}
	return AnalyticsMetricsPath
}
