package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-gateway-console/logger"
	"github.com/saiset-co/sai-gateway-console/types"
)

type fakeConn struct {
	ctx      context.Context
	messages chan []byte
}

func (c *fakeConn) Next() ([]byte, error) {
	select {
	case m, ok := <-c.messages:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func (c *fakeConn) Close() error { return nil }

type fakeTransport struct {
	mu    sync.Mutex
	opens int
	urls  []string
	fail  bool
	conns chan *fakeConn
}

func newFakeTransport(fail bool) *fakeTransport {
	return &fakeTransport{fail: fail, conns: make(chan *fakeConn, 32)}
}

func (t *fakeTransport) Name() string { return "fake" }

func (t *fakeTransport) Open(ctx context.Context, url string) (Conn, error) {
	t.mu.Lock()
	t.opens++
	t.urls = append(t.urls, url)
	fail := t.fail
	t.mu.Unlock()

	if fail {
		return nil, types.TransportError(errors.New("connection refused"))
	}

	conn := &fakeConn{ctx: ctx, messages: make(chan []byte, 16)}
	t.conns <- conn
	return conn, nil
}

func (t *fakeTransport) setFail(fail bool) {
	t.mu.Lock()
	t.fail = fail
	t.mu.Unlock()
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func (t *fakeTransport) lastURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.urls[len(t.urls)-1]
}

func testURL(token string) string {
	return "http://gateway.test/admin/analytics/stream?token=" + token
}

func newTestStreamClient(t *testing.T, transport Transport, clk clock.Clock) *Client {
	t.Helper()
	c := NewClient(context.Background(), logger.NewNop(), nil, testURL, &Options{
		Transport:            transport,
		Clock:                clk,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
	})
	t.Cleanup(c.Close)
	return c
}

// waitForFailure blocks until the n-th connection attempt has failed and its
// reconnect, if any, has been scheduled.
func waitForFailure(t *testing.T, c *Client, transport *fakeTransport, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return transport.openCount() == n && c.State() == StateDisconnected
	}, time.Second, time.Millisecond)
}

func TestClient_PublishesDistinctSnapshotsInOrder(t *testing.T) {
	transport := newFakeTransport(false)
	c := newTestStreamClient(t, transport, nil)

	var mu sync.Mutex
	var published []int64
	c.Subscribe(func(s *types.MetricsSnapshot) {
		mu.Lock()
		published = append(published, s.TotalRequests)
		mu.Unlock()
	})

	c.Start("tok")
	conn := <-transport.conns
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)

	conn.messages <- []byte(`{"total_requests":1,"top_endpoints":[{"path":"/a"}]}`)
	conn.messages <- []byte(`{"total_requests":1,"top_endpoints":[{"path":"/a"}]}`)
	conn.messages <- []byte(`{not json`)
	conn.messages <- []byte(`{"total_requests":2}`)
	conn.messages <- []byte(`{"total_requests":1}`)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int64{1, 2, 1}, published)
	mu.Unlock()
	assert.Equal(t, int64(1), c.Latest().TotalRequests)
	assert.Equal(t, StateConnected, c.State(), "malformed messages do not change the connection state")
}

func TestClient_NoTokenNoAttempt(t *testing.T) {
	transport := newFakeTransport(false)
	c := newTestStreamClient(t, transport, nil)

	c.Start("")

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, transport.openCount())
	assert.Equal(t, StateConnecting, c.State())
}

func TestClient_ExponentialBackoff(t *testing.T) {
	transport := newFakeTransport(true)
	clk := clock.NewMock()
	c := newTestStreamClient(t, transport, clk)

	c.Start("tok")
	waitForFailure(t, c, transport, 1)
	assert.Equal(t, 1, c.Attempts())

	clk.Add(2 * time.Second)
	waitForFailure(t, c, transport, 2)
	clk.Add(4 * time.Second)
	waitForFailure(t, c, transport, 3)
	assert.Equal(t, 3, c.Attempts())

	clk.Add(4 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 3, transport.openCount())

	clk.Add(3999 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 3, transport.openCount(), "the fourth attempt waits 8s after the third failure")

	clk.Add(time.Millisecond)
	waitForFailure(t, c, transport, 4)
}

func TestClient_StopsAfterMaxAttempts(t *testing.T) {
	transport := newFakeTransport(true)
	clk := clock.NewMock()
	c := newTestStreamClient(t, transport, clk)

	c.Start("tok")
	waitForFailure(t, c, transport, 1)

	for i := 1; i < DefaultMaxReconnectAttempts; i++ {
		clk.Add(Backoff(i, DefaultBaseDelay, DefaultMaxDelay))
		waitForFailure(t, c, transport, i+1)
	}
	assert.Equal(t, DefaultMaxReconnectAttempts, c.Attempts())

	clk.Add(time.Hour)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, DefaultMaxReconnectAttempts, transport.openCount(), "nothing is scheduled after 10 consecutive failures")
	assert.Equal(t, StateDisconnected, c.State())

	transport.setFail(false)
	c.Restart("tok")
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)
	assert.Equal(t, 0, c.Attempts())
}

func TestClient_StopCancelsScheduledReconnect(t *testing.T) {
	transport := newFakeTransport(true)
	clk := clock.NewMock()
	c := newTestStreamClient(t, transport, clk)

	c.Start("tok")
	waitForFailure(t, c, transport, 1)

	c.Stop()
	clk.Add(time.Minute)
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, 1, transport.openCount())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClient_ConnectResetsAttempts(t *testing.T) {
	transport := newFakeTransport(true)
	clk := clock.NewMock()
	c := newTestStreamClient(t, transport, clk)

	c.Start("tok")
	waitForFailure(t, c, transport, 1)
	clk.Add(2 * time.Second)
	waitForFailure(t, c, transport, 2)
	require.Equal(t, 2, c.Attempts())

	transport.setFail(false)
	clk.Add(4 * time.Second)

	conn := <-transport.conns
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)
	assert.Equal(t, 0, c.Attempts())

	close(conn.messages)
	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, time.Second, time.Millisecond)
	assert.Equal(t, 1, c.Attempts())

	clk.Add(2 * time.Second)
	require.Eventually(t, func() bool { return transport.openCount() == 4 }, time.Second, time.Millisecond)
}

func TestClient_RestartUsesFreshCredential(t *testing.T) {
	transport := newFakeTransport(false)
	c := newTestStreamClient(t, transport, nil)

	var mu sync.Mutex
	var published []int64
	c.Subscribe(func(s *types.MetricsSnapshot) {
		mu.Lock()
		published = append(published, s.TotalRequests)
		mu.Unlock()
	})

	var states []ConnectionState
	c.SubscribeState(func(s ConnectionState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	c.Start("tok-a")
	old := <-transport.conns
	require.Eventually(t, func() bool { return c.State() == StateConnected }, time.Second, time.Millisecond)

	c.Restart("tok-b")
	fresh := <-transport.conns

	assert.Equal(t, testURL("tok-b"), transport.lastURL())
	require.Eventually(t, func() bool { return old.ctx.Err() != nil }, time.Second, time.Millisecond)

	fresh.messages <- []byte(`{"total_requests":7}`)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(published) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{7}, published)
	assert.Equal(t, []ConnectionState{StateConnected, StateConnecting, StateConnected}, states)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(tt.attempts, DefaultBaseDelay, DefaultMaxDelay), "attempts=%d", tt.attempts)
	}
}
