package console

import (
	"context"

	"github.com/saiset-co/sai-gateway-console/stream"
	"github.com/saiset-co/sai-gateway-console/types"
)

func (s *Session) registerHealthChecks() {
	s.health.RegisterChecker("api", func(context.Context) types.HealthCheck {
		breaker := s.client.BreakerState()
		status := types.StatusHealthy
		if breaker == "open" {
			status = types.StatusUnhealthy
		}

		return types.HealthCheck{
			Status: status,
			Details: map[string]interface{}{
				"base_url":       s.client.BaseURL(),
				"breaker":        breaker,
				"network_calls":  s.client.State().NetworkCalls(),
				"cache_hits":     s.client.State().CacheHits(),
				"shared_waits":   s.client.State().SharedWaits(),
				"cached_entries": s.client.State().Cache().Len(),
			},
		}
	})

	s.health.RegisterChecker("stream", func(context.Context) types.HealthCheck {
		state := s.stream.State()

		check := types.HealthCheck{
			Status: types.StatusUnknown,
			Details: map[string]interface{}{
				"state":    state.String(),
				"attempts": s.stream.Attempts(),
			},
		}

		switch state {
		case stream.StateConnected:
			check.Status = types.StatusHealthy
		case stream.StateDisconnected:
			check.Status = types.StatusUnhealthy
			check.Message = "live metrics unavailable"
		}

		return check
	})

	s.health.RegisterChecker("scheduler", func(context.Context) types.HealthCheck {
		if !s.cron.IsRunning() {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: "refresh scheduler stopped"}
		}
		return types.HealthCheck{Status: types.StatusHealthy}
	})
}
