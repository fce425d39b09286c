package agent

import (
	"context"
	"errors"
	"testing"
)

func TestMuxDispatch(t *testing.T) {
	m := NewMux("mux-agent")
	m.Handle("greet", func(_ context.Context, req *Request) (*Response, error) {
		return &Response{Success: true, Content: "hello " + req.Input}, nil
	})

	req := NewRequest("greet", "Alice")
	resp, err := m.ExecuteTask(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Content != "hello Alice" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.RequestID != req.ID || resp.TraceID != req.TraceID {
		t.Error("mux must stamp request and trace IDs")
	}
	if resp.AgentID != "mux-agent" {
		t.Errorf("agent id = %q, want mux-agent", resp.AgentID)
	}
}

func TestMuxUnknownIntent(t *testing.T) {
	m := NewMux("mux-agent")

	resp, err := m.ExecuteTask(context.Background(), NewRequest("nope", ""))
	if err != nil {
		t.Fatalf("unknown intent must be a failed response, not an error: %v", err)
	}
	if resp.Success {
		t.Error("unknown intent response must not be successful")
	}
	if resp.ErrorMessage != `unsupported intent "nope"` {
		t.Errorf("error message = %q", resp.ErrorMessage)
	}
}

func TestMuxHandlerError(t *testing.T) {
	m := NewMux("mux-agent")
	boom := errors.New("boom")
	m.Handle("explode", func(context.Context, *Request) (*Response, error) {
		return nil, boom
	})

	_, err := m.ExecuteTask(context.Background(), NewRequest("explode", ""))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestMuxIntentsSorted(t *testing.T) {
	m := NewMux("mux-agent")
	for _, intent := range []string{"c", "a", "b"} {
		m.Handle(intent, func(context.Context, *Request) (*Response, error) {
			return &Response{Success: true}, nil
		})
	}

	got := m.Intents()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("intents = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("intents = %v, want %v", got, want)
			break
		}
	}
}
