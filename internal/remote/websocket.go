package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
)

// DialWebSocket connects to a remote agent over a ws:// or wss:// endpoint.
// The websocket carries the same binary frames as the socket transport, so
// the returned value is the ordinary Client.
func DialWebSocket(ctx context.Context, url string) (*Client, error) {
	wsConn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial agent at %s: %w", url, err)
	}
	wsConn.SetReadLimit(MaxFrameSize + 4)

	// The NetConn context outlives the dial: it governs the connection's
	// lifetime, not the handshake.
	conn := websocket.NetConn(context.Background(), wsConn, websocket.MessageBinary)

	c := NewClient(conn)
	if err := c.describe(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Connect resolves any endpoint string to a connected client.
func Connect(ctx context.Context, rawEndpoint string, timeout time.Duration) (*Client, error) {
	ep, err := ParseEndpoint(rawEndpoint)
	if err != nil {
		return nil, err
	}
	if ep.Mode == ModeWebSocket {
		dialCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return DialWebSocket(dialCtx, ep.Address)
	}
	return DialEndpoint(ep, timeout)
}
