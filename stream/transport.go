package stream

import (
	"context"
)

// Transport opens one streaming connection. Open returns once the
// connection is established.
type Transport interface {
	Name() string
	Open(ctx context.Context, url string) (Conn, error)
}

// Conn yields raw message payloads until the stream ends. Cancelling the
// context passed to Open unblocks Next.
type Conn interface {
	Next() ([]byte, error)
	Close() error
}

func NewTransport(name string) Transport {
	switch name {
	case TransportWebSocket:
		return NewWebSocketTransport(nil)
	default:
		return NewSSETransport(nil)
	}
}
