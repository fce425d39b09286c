package remote

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/agentbus/agentbus/internal/agent"
)

// Client connects to a remote agent over a unix or tcp socket and implements
// agent.Handle. Calls are serialized: the protocol is one frame out, one
// reply back per connection.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	cap  agent.Capability
}

// Dial connects to a remote agent and fetches its capability so the caller
// can register it.
func Dial(network, address string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout(network, address, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial agent at %s://%s: %w", network, address, err)
	}

	c := NewClient(conn)
	if err := c.describe(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// DialEndpoint dials a parsed socket endpoint. Websocket endpoints belong to
// DialWebSocket.
func DialEndpoint(ep Endpoint, timeout time.Duration) (*Client, error) {
	switch ep.Mode {
	case ModeTCP:
		return Dial("tcp", ep.Address, timeout)
	case ModeUnix:
		return Dial("unix", ep.Address, timeout)
	default:
		return nil, fmt.Errorf("endpoint %q: mode %s is not a socket", ep.Raw, ep.Mode)
	}
}

// NewClient wraps an established connection without the describe round trip;
// call Describe before registering.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn}
}

func (c *Client) describe() error {
	reply, err := c.roundTrip(Frame{Method: MethodDescribe})
	if err != nil {
		return fmt.Errorf("describe agent: %w", err)
	}
	if reply.Capability == nil {
		return fmt.Errorf("agent returned empty capability")
	}
	c.cap = *reply.Capability
	return nil
}

// Describe fetches and caches the agent's capability.
func (c *Client) Describe() (agent.Capability, error) {
	if err := c.describe(); err != nil {
		return agent.Capability{}, err
	}
	return c.cap, nil
}

// Capability returns the capability fetched at dial time.
func (c *Client) Capability() agent.Capability { return c.cap }

// ExecuteTask sends the request over the socket and waits for the reply,
// honoring ctx while the exchange is in flight.
func (c *Client) ExecuteTask(ctx context.Context, req *agent.Request) (*agent.Response, error) {
	type outcome struct {
		resp *agent.Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		reply, err := c.roundTrip(Frame{Method: MethodExecute, Request: req})
		if err != nil {
			done <- outcome{err: err}
			return
		}
		if reply.Error != "" {
			done <- outcome{err: fmt.Errorf("remote agent: %s", reply.Error)}
			return
		}
		if reply.Response == nil {
			done <- outcome{err: fmt.Errorf("remote agent returned no response")}
			return
		}
		done <- outcome{resp: reply.Response}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-ctx.Done():
		// The pending reply is orphaned; close so the next caller gets a
		// clean dial error instead of someone else's frame.
		_ = c.conn.Close()
		return nil, ctx.Err()
	}
}

// Ping implements agent.Pinger with a protocol-level liveness probe.
func (c *Client) Ping(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		reply, err := c.roundTrip(Frame{Method: MethodPing})
		if err == nil && reply.Error != "" {
			err = fmt.Errorf("remote agent: %s", reply.Error)
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) roundTrip(f Frame) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteFrame(c.conn, &f); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	var reply Reply
	if err := ReadFrame(c.conn, &reply); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return &reply, nil
}

// Close terminates the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}
