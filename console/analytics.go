package console

import (
	"context"
	"time"

	"github.com/saiset-co/sai-gateway-console/api"
	"github.com/saiset-co/sai-gateway-console/query"
	"github.com/saiset-co/sai-gateway-console/stream"
	"github.com/saiset-co/sai-gateway-console/types"
)

const (
	analyticsResource = "analytics"

	DefaultAnalyticsRefresh = "@every 30s"
)

// Analytics serves the historical metrics query and the live stream.
type Analytics struct {
	session *Session
}

// Key identifies the metrics query for a trailing window. A zero window
// asks for the backend's default range.
func (a *Analytics) Key(window time.Duration) query.Key {
	return a.session.Key(analyticsResource, window.String())
}

func (a *Analytics) Metrics(ctx context.Context, window time.Duration) (*types.MetricsSnapshot, error) {
	userID := a.session.UserID()
	key := keyFor(userID, analyticsResource, window.String())
	a.session.register(userID, key, func(ctx context.Context, client *api.API) (interface{}, error) {
		var start, end time.Time
		if window > 0 {
			end = time.Now().UTC()
			start = end.Add(-window)
		}

		return client.Analytics.Metrics(ctx, start, end)
	})

	return query.FetchAs[*types.MetricsSnapshot](ctx, a.session.queries, key)
}

// Watch refreshes the metrics query for window on the configured schedule
// until every returned stop func has been called. Watches end with the
// identity that started them.
func (a *Analytics) Watch(window time.Duration) (func(), error) {
	key := a.Key(window)
	jobName := key.String()

	a.session.watchMu.Lock()
	defer a.session.watchMu.Unlock()

	if a.session.watches[jobName] == 0 {
		spec := a.session.config.Queries.AnalyticsRefresh
		if spec == "" {
			spec = DefaultAnalyticsRefresh
		}

		err := a.session.cron.Add(jobName, spec, func(context.Context) error {
			a.session.queries.Invalidate(key)
			return nil
		})
		if err != nil {
			return nil, types.WrapError(err, "failed to schedule analytics refresh")
		}
	}
	a.session.watches[jobName]++
	epoch := a.session.watchEpoch

	released := false
	return func() {
		a.session.watchMu.Lock()
		defer a.session.watchMu.Unlock()

		if released || epoch != a.session.watchEpoch {
			return
		}
		released = true

		a.session.watches[jobName]--
		if a.session.watches[jobName] > 0 {
			return
		}

		delete(a.session.watches, jobName)
		_ = a.session.cron.Remove(jobName)
	}, nil
}

func (a *Analytics) Latest() *types.MetricsSnapshot {
	return a.session.stream.Latest()
}

func (a *Analytics) ConnectionState() stream.ConnectionState {
	return a.session.stream.State()
}

func (a *Analytics) Subscribe(handler stream.SnapshotHandler) func() {
	return a.session.stream.Subscribe(handler)
}

func (a *Analytics) SubscribeState(handler stream.StateHandler) func() {
	return a.session.stream.SubscribeState(handler)
}
