package stream

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/saiset-co/sai-gateway-console/types"
)

const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"

	maxEventSize = 1 << 20
)

type SSETransport struct {
	client *http.Client
}

func NewSSETransport(client *http.Client) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	return &SSETransport{client: client}
}

func (t *SSETransport) Name() string {
	return TransportSSE
}

func (t *SSETransport) Open(ctx context.Context, url string) (Conn, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.WrapError(err, "failed to build stream request")
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, types.TransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, types.ErrUnauthorized
		}
		return nil, types.NewAPIError(resp.StatusCode, nil)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), maxEventSize)

	return &sseConn{body: resp.Body, scanner: scanner}, nil
}

type sseConn struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// Next returns the data of the next event. Multi-line data fields are
// joined with newlines. Comments and other fields are ignored.
func (c *sseConn) Next() ([]byte, error) {
	var data [][]byte

	for c.scanner.Scan() {
		line := c.scanner.Bytes()

		if len(line) == 0 {
			if len(data) > 0 {
				return bytes.Join(data, []byte("\n")), nil
			}
			continue
		}

		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}

		value = bytes.TrimPrefix(value, []byte(" "))
		data = append(data, append([]byte(nil), value...))
	}

	if err := c.scanner.Err(); err != nil {
		return nil, types.TransportError(err)
	}

	return nil, types.TransportError(io.EOF)
}

func (c *sseConn) Close() error {
	return c.body.Close()
}
