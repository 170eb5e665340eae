package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-gateway-console/logger"
	"github.com/saiset-co/sai-gateway-console/types"
)

func TestSSETransport_Framing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "tok", r.URL.Query().Get("token"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		_, _ = w.Write([]byte(": keep-alive\n\n"))
		_, _ = w.Write([]byte("event: metrics\nid: 1\ndata: {\"total_requests\":1}\n\n"))
		_, _ = w.Write([]byte("data: {\"total_requests\":\ndata: 2}\n\n"))
		flusher.Flush()
	}))
	defer server.Close()

	conn, err := NewSSETransport(nil).Open(context.Background(), server.URL+"/admin/analytics/stream?token=tok")
	require.NoError(t, err)
	defer conn.Close()

	first, err := conn.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"total_requests":1}`, string(first))

	second, err := conn.Next()
	require.NoError(t, err)
	assert.Equal(t, "{\"total_requests\":\n2}", string(second))

	_, err = conn.Next()
	assert.ErrorIs(t, err, types.ErrTransport, "end of stream is a disconnect")
}

func TestSSETransport_RejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := NewSSETransport(nil).Open(context.Background(), server.URL)

	assert.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestSSETransport_CancelUnblocksNext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	conn, err := NewSSETransport(nil).Open(ctx, server.URL)
	require.NoError(t, err)
	defer conn.Close()

	done := make(chan error, 1)
	go func() {
		_, err := conn.Next()
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after cancellation")
	}
}

func TestWebSocketTransport_StreamsSnapshots(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.URL.Query().Get("token"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"total_requests":5}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"total_requests":6}`))

		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	c := NewClient(context.Background(), logger.NewNop(), nil, func(token string) string {
		return server.URL + "/admin/analytics/stream?token=" + token
	}, &Options{Transport: NewTransport(TransportWebSocket)})
	defer c.Close()

	received := make(chan int64, 4)
	c.Subscribe(func(s *types.MetricsSnapshot) {
		received <- s.TotalRequests
	})

	c.Start("tok")

	for _, want := range []int64{5, 6} {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("snapshot %d not received", want)
		}
	}
	assert.Equal(t, StateConnected, c.State())
}

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/x", websocketURL("http://localhost:8080/x"))
	assert.Equal(t, "wss://gw.example.com/x", websocketURL("https://gw.example.com/x"))
	assert.Equal(t, "ws://already", websocketURL("ws://already"))
}
