package remote

import (
	"fmt"
	"strings"
)

// Mode says how to reach a remote agent endpoint.
type Mode string

const (
	ModeTCP       Mode = "tcp"
	ModeUnix      Mode = "unix"
	ModeWebSocket Mode = "websocket"
)

// Endpoint is a parsed remote agent address.
type Endpoint struct {
	Raw     string
	Mode    Mode
	Address string
}

// DetectMode inspects an endpoint string and returns the connection mode.
// Detection relies on URI scheme prefixes:
//
//	ws(s)://      -> ModeWebSocket
//	tcp://        -> ModeTCP
//	unix://       -> ModeUnix
//	anything else -> ModeUnix (local filesystem socket path)
func DetectMode(endpoint string) Mode {
	lower := strings.ToLower(endpoint)

	switch {
	case strings.HasPrefix(lower, "ws://"), strings.HasPrefix(lower, "wss://"):
		return ModeWebSocket
	case strings.HasPrefix(lower, "tcp://"):
		return ModeTCP
	default:
		return ModeUnix
	}
}

// ParseEndpoint parses a raw endpoint string into an Endpoint, stripping the
// scheme where the dialer wants a bare address.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("empty agent endpoint")
	}

	mode := DetectMode(raw)
	addr := raw
	switch mode {
	case ModeTCP:
		addr = raw[len("tcp://"):]
	case ModeUnix:
		addr = strings.TrimPrefix(raw, "unix://")
	}
	if addr == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q has no address", raw)
	}
	return Endpoint{Raw: raw, Mode: mode, Address: addr}, nil
}
