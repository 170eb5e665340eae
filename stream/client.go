package stream

import (
	"context"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-gateway-console/types"
	"github.com/saiset-co/sai-gateway-console/utils"
)

type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type SnapshotHandler func(snapshot *types.MetricsSnapshot)

type StateHandler func(state ConnectionState)

// URLBuilder returns the stream address for a credential.
type URLBuilder func(token string) string

type Options struct {
	Transport            Transport
	Clock                clock.Clock
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	MaxReconnectAttempts int
}

// Client keeps one live metrics stream per credential. Failures are
// retried with exponential backoff up to MaxReconnectAttempts times in a
// row. Every connection, reader and timer belongs to a generation; Stop
// and Restart start a new one, which silences everything scheduled by the
// previous one.
type Client struct {
	ctx       context.Context
	cancel    context.CancelFunc
	logger    types.Logger
	metrics   types.MetricsManager
	transport Transport
	clock     clock.Clock
	urlFor    URLBuilder

	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int

	mu         sync.Mutex
	state      ConnectionState
	attempts   int
	generation uint64
	token      string
	timer      *clock.Timer
	connCancel context.CancelFunc
	latest     *types.MetricsSnapshot

	snapshotHandlers map[uint64]SnapshotHandler
	stateHandlers    map[uint64]StateHandler
	nextID           uint64

	wg sync.WaitGroup
}

func NewClient(ctx context.Context, logger types.Logger, metrics types.MetricsManager, urlFor URLBuilder, opts *Options) *Client {
	clientCtx, cancel := context.WithCancel(ctx)

	c := &Client{
		ctx:              clientCtx,
		cancel:           cancel,
		logger:           logger,
		metrics:          metrics,
		urlFor:           urlFor,
		transport:        NewSSETransport(nil),
		clock:            clock.New(),
		baseDelay:        DefaultBaseDelay,
		maxDelay:         DefaultMaxDelay,
		maxAttempts:      DefaultMaxReconnectAttempts,
		state:            StateConnecting,
		snapshotHandlers: make(map[uint64]SnapshotHandler),
		stateHandlers:    make(map[uint64]StateHandler),
	}

	if opts != nil {
		if opts.Transport != nil {
			c.transport = opts.Transport
		}
		if opts.Clock != nil {
			c.clock = opts.Clock
		}
		if opts.BaseDelay > 0 {
			c.baseDelay = opts.BaseDelay
		}
		if opts.MaxDelay > 0 {
			c.maxDelay = opts.MaxDelay
		}
		if opts.MaxReconnectAttempts >= 0 {
			c.maxAttempts = opts.MaxReconnectAttempts
		}
	}

	return c
}

// Start connects with token. Without a token nothing is attempted and the
// client stays in the connecting state.
func (c *Client) Start(token string) {
	c.mu.Lock()
	c.teardownUnsafe()
	notify := c.startUnsafe(token)
	c.mu.Unlock()

	notify()
}

// Restart drops the current connection and any scheduled reconnect and
// connects again with token.
func (c *Client) Restart(token string) {
	c.logger.Info("Restarting metrics stream")
	c.Start(token)
}

// Stop closes the connection and cancels any scheduled reconnect.
func (c *Client) Stop() {
	c.mu.Lock()
	c.teardownUnsafe()
	c.token = ""
	notify := c.setStateUnsafe(StateDisconnected)
	c.mu.Unlock()

	notify()
}

// Close stops the client for good and waits for its readers to exit.
func (c *Client) Close() {
	c.Stop()
	c.cancel()
	c.wg.Wait()
}

func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Latest returns the last published snapshot.
func (c *Client) Latest() *types.MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

func (c *Client) Subscribe(handler SnapshotHandler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.snapshotHandlers[id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.snapshotHandlers, id)
		c.mu.Unlock()
	}
}

func (c *Client) SubscribeState(handler StateHandler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.stateHandlers[id] = handler
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.stateHandlers, id)
		c.mu.Unlock()
	}
}

func (c *Client) startUnsafe(token string) func() {
	c.token = token
	c.attempts = 0
	c.latest = nil

	notify := c.setStateUnsafe(StateConnecting)

	if token == "" {
		c.logger.Debug("Metrics stream waiting for credentials")
		return notify
	}

	if c.ctx.Err() != nil {
		return notify
	}

	c.spawnUnsafe(c.generation)
	return notify
}

func (c *Client) teardownUnsafe() {
	c.generation++

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}
}

func (c *Client) spawnUnsafe(generation uint64) {
	connCtx, cancel := context.WithCancel(c.ctx)
	c.connCancel = cancel
	url := c.urlFor(c.token)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(connCtx, generation, url)
	}()
}

func (c *Client) run(ctx context.Context, generation uint64, url string) {
	conn, err := c.transport.Open(ctx, url)
	if err != nil {
		c.fail(generation, err)
		return
	}
	defer conn.Close()

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	notify := c.setStateUnsafe(StateConnected)
	c.mu.Unlock()

	notify()

	c.logger.Info("Metrics stream connected",
		zap.String("transport", c.transport.Name()))

	for {
		data, err := conn.Next()
		if err != nil {
			c.fail(generation, err)
			return
		}

		c.handleMessage(generation, data)
	}
}

func (c *Client) handleMessage(generation uint64, data []byte) {
	snapshot := &types.MetricsSnapshot{}
	if err := utils.Unmarshal(data, snapshot); err != nil {
		c.recordMessage("malformed")
		c.logger.Warn("Skipping malformed metrics message",
			zap.Error(types.Errorf(types.ErrStreamParse, "%v", err)),
			zap.Int("size", len(data)))
		return
	}

	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return
	}

	if c.latest.Equal(snapshot) {
		c.mu.Unlock()
		c.recordMessage("duplicate")
		return
	}

	c.latest = snapshot
	handlers := make([]SnapshotHandler, 0, len(c.snapshotHandlers))
	for _, h := range c.snapshotHandlers {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	c.recordMessage("published")

	for _, h := range handlers {
		h(snapshot)
	}
}

func (c *Client) fail(generation uint64, cause error) {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return
	}

	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}

	notify := c.setStateUnsafe(StateDisconnected)

	c.attempts++
	if c.attempts < c.maxAttempts {
		delay := Backoff(c.attempts, c.baseDelay, c.maxDelay)
		c.timer = c.clock.AfterFunc(delay, func() {
			c.reconnect(generation)
		})

		c.logger.Warn("Metrics stream disconnected, scheduling reconnect",
			zap.Error(cause),
			zap.Int("attempt", c.attempts),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Duration("delay", delay))
	} else {
		c.logger.Error("Metrics stream disconnected, max reconnection attempts reached",
			zap.Error(cause),
			zap.Int("max_attempts", c.maxAttempts))
	}
	c.mu.Unlock()

	notify()
}

func (c *Client) reconnect(generation uint64) {
	c.mu.Lock()
	if generation != c.generation || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}

	c.timer = nil
	notify := c.setStateUnsafe(StateConnecting)
	c.spawnUnsafe(generation)
	c.mu.Unlock()

	c.recordReconnect()
	notify()
}

// setStateUnsafe records the new state and returns a function delivering
// it to state handlers once the lock is released.
func (c *Client) setStateUnsafe(state ConnectionState) func() {
	if c.state == state {
		return func() {}
	}
	c.state = state
	c.recordState(state)

	handlers := make([]StateHandler, 0, len(c.stateHandlers))
	for _, h := range c.stateHandlers {
		handlers = append(handlers, h)
	}

	return func() {
		for _, h := range handlers {
			h(state)
		}
	}
}

func (c *Client) recordState(state ConnectionState) {
	if c.metrics == nil {
		return
	}

	for _, s := range []ConnectionState{StateConnecting, StateConnected, StateDisconnected} {
		value := 0.0
		if s == state {
			value = 1
		}
		c.metrics.Gauge("stream_connection_state", map[string]string{"state": s.String()}).Set(value)
	}
}

func (c *Client) recordReconnect() {
	if c.metrics == nil {
		return
	}

	c.metrics.Counter("stream_reconnects_total", nil).Inc()
}

func (c *Client) recordMessage(result string) {
	if c.metrics == nil {
		return
	}

	c.metrics.Counter("stream_messages_total", map[string]string{
		"result": result,
	}).Inc()
}
