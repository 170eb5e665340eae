package client

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-gateway-console/types"
	"github.com/saiset-co/sai-gateway-console/utils"
)

type ClientState int32

const (
	StateRunning ClientState = iota
	StateStopping
	StateStopped
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultBaseURL = "http://localhost:8080"
)

// HTTPClient is the console's RequestClient. Reads are served from the
// session State when fresh and coalesced while on the wire; writes always
// go to the network.
type HTTPClient struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         types.Logger
	metrics        types.MetricsManager
	client         *fasthttp.Client
	baseURL        string
	timeout        time.Duration
	compression    bool
	requests       *State
	circuitBreaker *CircuitBreaker
	state          atomic.Value
}

type result struct {
	payload []byte
	err     error
}

func NewHTTPClient(ctx context.Context, logger types.Logger, metrics types.MetricsManager, requests *State, config *types.APIConfig) *HTTPClient {
	clientCtx, cancel := context.WithCancel(ctx)

	baseURL := DefaultBaseURL
	timeout := DefaultTimeout
	compression := false
	var breakerConfig *types.CircuitBreakerConfig

	if config != nil {
		if config.BaseURL != "" {
			baseURL = strings.TrimRight(config.BaseURL, "/")
		}
		if config.Timeout > 0 {
			timeout = config.Timeout
		}
		compression = config.Compression
		breakerConfig = config.CircuitBreaker
	}

	httpClient := &fasthttp.Client{
		Name:         "gateway-console",
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	client := &HTTPClient{
		ctx:            clientCtx,
		cancel:         cancel,
		logger:         logger,
		metrics:        metrics,
		client:         httpClient,
		baseURL:        baseURL,
		timeout:        timeout,
		compression:    compression,
		requests:       requests,
		circuitBreaker: NewCircuitBreaker(breakerConfig, logger, nil),
	}

	client.state.Store(StateRunning)

	return client
}

func (c *HTTPClient) Execute(ctx context.Context, endpoint, token string, opts *types.RequestOptions) ([]byte, error) {
	if token == "" {
		return nil, types.ErrAuthenticationRequired
	}

	if !c.IsRunning() {
		return nil, types.ErrClientClosed
	}

	method := opts.GetMethod()
	if method == fasthttp.MethodGet {
		return c.read(ctx, endpoint, token, opts)
	}

	return c.write(ctx, method, endpoint, token, opts)
}

func (c *HTTPClient) State() *State {
	return c.requests
}

// BreakerState reports the circuit breaker position, "disabled" when it is
// not configured.
func (c *HTTPClient) BreakerState() string {
	return c.circuitBreaker.State()
}

func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) Close() {
	if !c.state.CompareAndSwap(StateRunning, StateStopping) {
		return
	}

	defer func() {
		c.state.Store(StateStopped)
		c.cancel()
	}()

	c.client.CloseIdleConnections()

	c.logger.Debug("HTTP client closed gracefully",
		zap.String("base_url", c.baseURL))
}

func (c *HTTPClient) IsRunning() bool {
	return c.state.Load().(ClientState) == StateRunning
}

func (c *HTTPClient) read(ctx context.Context, endpoint, token string, opts *types.RequestOptions) ([]byte, error) {
	var body interface{}
	if opts != nil {
		body = opts.Body
	}

	key, err := BuildKey(token, endpoint, body)
	if err != nil {
		return nil, err
	}

	if payload, ok := c.requests.cache.Get(key); ok {
		c.requests.cacheHits.Add(1)
		c.recordCache("hit")
		return copyBytes(payload), nil
	}

	group, generation := c.requests.current()

	ch := group.DoChan(key, func() (interface{}, error) {
		if payload, ok := c.requests.cache.Get(key); ok {
			c.requests.cacheHits.Add(1)
			c.recordCache("hit")
			return payload, nil
		}

		c.recordCache("miss")

		payload, err := c.do(fasthttp.MethodGet, endpoint, token, opts)
		if err != nil {
			return nil, err
		}

		if !c.requests.store(generation, key, payload) {
			c.logger.Debug("Discarded read result after invalidation",
				zap.String("endpoint", endpoint))
		}

		return payload, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.requests.sharedWaits.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return copyBytes(res.Val.([]byte)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *HTTPClient) write(ctx context.Context, method, endpoint, token string, opts *types.RequestOptions) ([]byte, error) {
	done := make(chan result, 1)

	go func() {
		payload, err := c.do(method, endpoint, token, opts)
		if err == nil {
			c.requests.invalidate()
		}
		done <- result{payload: payload, err: err}
	}()

	select {
	case res := <-done:
		return res.payload, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// do performs exactly one network round trip bounded by the call timeout.
func (c *HTTPClient) do(method, endpoint, token string, opts *types.RequestOptions) ([]byte, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, types.ErrClientClosed
	}

	if !c.circuitBreaker.CanExecute() {
		return nil, types.TransportError(types.ErrCircuitBreakerOpen)
	}

	start := time.Now()
	c.requests.networkCalls.Add(1)

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + endpoint)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	if c.compression {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	if opts != nil {
		if opts.Body != nil {
			jsonData, err := utils.Marshal(opts.Body)
			if err != nil {
				return nil, types.WrapError(err, "failed to marshal request data")
			}
			req.SetBodyRaw(jsonData)
		}

		for key, value := range opts.Headers {
			req.Header.Set(key, value)
		}
	}

	err := c.client.DoTimeout(req, resp, c.timeout)
	statusCode := resp.StatusCode()

	if IsCircuitBreakerFailure(statusCode, err) {
		c.circuitBreaker.RecordFailure()
	} else {
		c.circuitBreaker.RecordSuccess()
	}

	if err != nil {
		c.recordRequest(method, "transport_error", time.Since(start))

		if isTimeout(err) {
			c.logger.Warn("Request timed out",
				zap.String("method", method),
				zap.String("endpoint", endpoint),
				zap.Duration("timeout", c.timeout))
			return nil, types.ErrRequestTimeout
		}

		c.logger.Error("Request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, types.TransportError(err)
	}

	if statusCode == fasthttp.StatusUnauthorized {
		c.recordRequest(method, "unauthorized", time.Since(start))
		return nil, types.ErrUnauthorized
	}

	if statusCode < 200 || statusCode >= 300 {
		c.recordRequest(method, "api_error", time.Since(start))
		c.logger.Debug("Request rejected",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status_code", statusCode))
		return nil, types.NewAPIError(statusCode, copyBytes(resp.Body()))
	}

	payload, err := decodeBody(resp)
	if err != nil {
		c.recordRequest(method, "decode_error", time.Since(start))
		return nil, types.TransportError(err)
	}

	if len(payload) == 0 {
		payload = []byte("null")
	} else if !utils.Valid(payload) {
		c.recordRequest(method, "decode_error", time.Since(start))
		return nil, types.Errorf(types.ErrResponseInvalid, "%s %s", method, endpoint)
	}

	c.recordRequest(method, "success", time.Since(start))

	c.logger.Debug("Request completed",
		zap.String("method", method),
		zap.String("endpoint", endpoint),
		zap.Int("status_code", statusCode),
		zap.Int("size", len(payload)))

	return payload, nil
}

func (c *HTTPClient) recordRequest(method, result string, duration time.Duration) {
	if c.metrics == nil {
		return
	}

	c.metrics.Counter("api_requests_total", map[string]string{
		"method": method,
		"result": result,
	}).Inc()

	c.metrics.Histogram("api_request_duration_seconds",
		[]float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
		map[string]string{"method": method},
	).Observe(duration.Seconds())
}

func (c *HTTPClient) recordCache(result string) {
	if c.metrics == nil {
		return
	}

	c.metrics.Counter("api_response_cache_total", map[string]string{
		"result": result,
	}).Inc()
}

func isTimeout(err error) bool {
	if errors.Is(err, fasthttp.ErrTimeout) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
