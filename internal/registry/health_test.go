package registry

import (
	"context"
	"errors"
	"testing"
)

type pingingHandle struct {
	stubHandle
	err error
}

func (p pingingHandle) Ping(context.Context) error { return p.err }

func TestCheckNowWithPinger(t *testing.T) {
	r := New()
	_ = r.Register("healthy", pingingHandle{}, capFor([]string{"x"}, nil))
	_ = r.Register("broken", pingingHandle{err: errors.New("connection refused")}, capFor([]string{"x"}, nil))
	_ = r.Register("plain", stubHandle{}, capFor([]string{"x"}, nil))
	_ = r.Register("parked", stubHandle{}, capFor([]string{"x"}, nil))
	r.Deactivate("parked")

	r.CheckNow(context.Background())
	health := r.Health()

	if h := health["healthy"]; !h.IsHealthy || h.Status != "healthy" {
		t.Errorf("healthy agent = %+v", h)
	}
	if h := health["broken"]; h.IsHealthy || h.Status != "unhealthy" || h.ErrorMessage == "" {
		t.Errorf("broken agent = %+v", h)
	}
	if h := health["plain"]; !h.IsHealthy || h.Status != "active" {
		// No Pinger: assumed healthy while active.
		t.Errorf("plain agent = %+v", h)
	}
	if h := health["parked"]; h.IsHealthy || h.Status != "inactive" {
		t.Errorf("parked agent = %+v", h)
	}
}

func TestHealthBeforeFirstCheck(t *testing.T) {
	r := New()
	_ = r.Register("a1", stubHandle{}, capFor([]string{"x"}, nil))

	h := r.Health()["a1"]
	if !h.IsHealthy || h.Status != "registered" {
		t.Errorf("initial health = %+v, want healthy/registered", h)
	}
}
