package types

import (
	"reflect"
	"time"
)

type Route struct {
	ID                    int64     `json:"id"`
	Path                  string    `json:"path"`
	BackendURLs           []string  `json:"backend_urls"`
	LoadBalancingStrategy string    `json:"load_balancing_strategy"`
	TimeoutMs             int       `json:"timeout_ms"`
	RetryCount            int       `json:"retry_count"`
	Enabled               bool      `json:"enabled"`
	CreatedAt             time.Time `json:"created_at,omitempty"`
	TempID                string    `json:"-"`
}

type RouteInput struct {
	Path                  string   `json:"path"`
	BackendURLs           []string `json:"backend_urls"`
	LoadBalancingStrategy string   `json:"load_balancing_strategy"`
	TimeoutMs             int      `json:"timeout_ms"`
	RetryCount            int      `json:"retry_count"`
}

type APIKey struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Key          string    `json:"key"`
	Tier         string    `json:"tier"`
	RateLimitRPM int       `json:"rate_limit_rpm"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	TempID       string    `json:"-"`
}

type APIKeyInput struct {
	Name         string `json:"name"`
	Tier         string `json:"tier"`
	RateLimitRPM int    `json:"rate_limit_rpm"`
}

type CacheRule struct {
	ID              int64  `json:"id"`
	RouteID         int64  `json:"route_id"`
	TTLSeconds      int    `json:"ttl_seconds"`
	CacheKeyPattern string `json:"cache_key_pattern"`
	Enabled         bool   `json:"enabled"`
	TempID          string `json:"-"`
}

type CacheRuleInput struct {
	RouteID         int64  `json:"route_id"`
	TTLSeconds      int    `json:"ttl_seconds"`
	CacheKeyPattern string `json:"cache_key_pattern"`
}

type InvalidateRequest struct {
	Pattern string `json:"pattern"`
}

type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int64     `json:"count"`
}

type EndpointStat struct {
	Path         string  `json:"path"`
	RequestCount int64   `json:"request_count"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	ErrorRate    float64 `json:"error_rate"`
}

// MetricsSnapshot is treated as immutable once published.
type MetricsSnapshot struct {
	TotalRequests  int64             `json:"total_requests"`
	ErrorRate      float64           `json:"error_rate"`
	CacheHitRatio  float64           `json:"cache_hit_ratio"`
	LatencyP50     float64           `json:"latency_p50"`
	LatencyP95     float64           `json:"latency_p95"`
	LatencyP99     float64           `json:"latency_p99"`
	RequestsPerMin []TimeSeriesPoint `json:"requests_per_min"`
	TopEndpoints   []EndpointStat    `json:"top_endpoints"`
}

// Equal reports structural equality.
func (s *MetricsSnapshot) Equal(other *MetricsSnapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return reflect.DeepEqual(s, other)
}

func (r Route) PlaceholderID() string { return r.TempID }
func (r Route) RecordID() int64       { return r.ID }

func (k APIKey) PlaceholderID() string { return k.TempID }
func (k APIKey) RecordID() int64       { return k.ID }

func (c CacheRule) PlaceholderID() string { return c.TempID }
func (c CacheRule) RecordID() int64       { return c.ID }
