package stream

import (
	"context"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/saiset-co/sai-gateway-console/types"
)

// WebSocketTransport reads the same stream over a websocket. The URL's
// http(s) scheme is rewritten to ws(s).
type WebSocketTransport struct {
	dialer *websocket.Dialer
}

func NewWebSocketTransport(dialer *websocket.Dialer) *WebSocketTransport {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocketTransport{dialer: dialer}
}

func (t *WebSocketTransport) Name() string {
	return TransportWebSocket
}

func (t *WebSocketTransport) Open(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := t.dialer.DialContext(ctx, websocketURL(url), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != 0 {
			if resp.StatusCode == 401 {
				return nil, types.ErrUnauthorized
			}
			return nil, types.NewAPIError(resp.StatusCode, nil)
		}
		return nil, types.TransportError(err)
	}

	wc := &wsConn{conn: conn, done: make(chan struct{})}

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-wc.done:
		}
	}()

	return wc, nil
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

func (c *wsConn) Next() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, types.TransportError(err)
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close() error {
	select {
	case <-c.done:
		return nil
	default:
		close(c.done)
	}
	return c.conn.Close()
}

func websocketURL(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}
