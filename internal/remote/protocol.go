// Package remote connects out-of-process agents to the bus. A remote agent
// speaks a small length-prefixed JSON protocol over a unix or tcp socket, or
// the same frames over a websocket; either way the bus sees an agent.Handle.
package remote

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/agentbus/agentbus/internal/agent"
)

// MaxFrameSize bounds a single protocol frame (4 MB).
const MaxFrameSize = 4 * 1024 * 1024

// Protocol methods.
const (
	MethodDescribe = "describe"
	MethodExecute  = "execute"
	MethodPing     = "ping"
)

// Frame is the wire format sent from the bus to a remote agent.
type Frame struct {
	Method  string         `json:"method"`
	Request *agent.Request `json:"request,omitempty"`
}

// Reply is the wire format sent from a remote agent back to the bus.
// Exactly one of Response, Capability or Error is meaningful per method.
type Reply struct {
	Response   *agent.Response   `json:"response,omitempty"`
	Capability *agent.Capability `json:"capability,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// WriteFrame sends a length-prefixed JSON message.
func WriteFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes (max %d)", len(data), MaxFrameSize)
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// ReadFrame reads a length-prefixed JSON message.
func ReadFrame(r io.Reader, v any) error {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	size := binary.BigEndian.Uint32(header)
	if size > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes (max %d)", size, MaxFrameSize)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}
