package remote

import (
	"context"
	"fmt"
	"log"
	"net"

	"github.com/agentbus/agentbus/internal/agent"
)

// Server exposes a local agent.Handle to the protocol so it can be driven
// from another process.
type Server struct {
	cap    agent.Capability
	handle agent.Handle
}

func NewServer(cap agent.Capability, handle agent.Handle) *Server {
	return &Server{cap: cap, handle: handle}
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}
		go s.ServeConn(conn)
	}
}

// ServeConn handles one connection's frames until it closes or breaks.
func (s *Server) ServeConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	for {
		var f Frame
		if err := ReadFrame(conn, &f); err != nil {
			return // connection closed or broken
		}

		var reply Reply
		switch f.Method {
		case MethodDescribe:
			cap := s.cap
			reply.Capability = &cap
		case MethodPing:
			// empty reply signals liveness
		case MethodExecute:
			if f.Request == nil {
				reply.Error = "execute frame without request"
				break
			}
			resp, err := s.handle.ExecuteTask(context.Background(), f.Request)
			if err != nil {
				reply.Error = err.Error()
			} else {
				reply.Response = resp
			}
		default:
			reply.Error = fmt.Sprintf("unknown method %q", f.Method)
		}

		if err := WriteFrame(conn, &reply); err != nil {
			log.Printf("remote server: write reply: %v", err)
			return
		}
	}
}
