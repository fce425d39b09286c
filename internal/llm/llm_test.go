package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewValidation(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := New(Options{API: "cohere", Model: "m"}); err == nil {
		t.Error("expected error for unknown api type")
	}

	c, err := New(Options{Model: "gpt-test"})
	if err != nil {
		t.Fatal(err)
	}
	if c.api != APIOpenAI {
		t.Errorf("default api = %q, want openai", c.api)
	}
	if c.baseURL != openAIDefaultBaseURL {
		t.Errorf("default base url = %q", c.baseURL)
	}
}

func TestOpenAICompletion(t *testing.T) {
	var gotReq oaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		_ = json.NewEncoder(w).Encode(oaiResponse{
			Choices: []oaiChoice{{Message: oaiMessage{Role: "assistant", Content: "the answer"}}},
		})
	}))
	defer srv.Close()

	c, err := New(Options{API: APIOpenAI, BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.TextCompletion(context.Background(), "be terse", "what is 2+2", "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if out != "the answer" {
		t.Errorf("out = %q", out)
	}
	if gotReq.Model != "gpt-test" || len(gotReq.Messages) != 2 {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "be terse" {
		t.Errorf("system message = %+v", gotReq.Messages[0])
	}
	if gotReq.User != "conv-1" {
		t.Errorf("user = %q, want conversation id", gotReq.User)
	}
}

func TestAnthropicCompletion(t *testing.T) {
	var gotReq anthRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if key := r.Header.Get("x-api-key"); key != "sk-ant" {
			t.Errorf("x-api-key = %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Error(err)
		}
		_ = json.NewEncoder(w).Encode(anthResponse{
			Content: []anthContentBlock{
				{Type: "text", Text: "first"},
				{Type: "thinking", Text: "ignored"},
				{Type: "text", Text: "second"},
			},
		})
	}))
	defer srv.Close()

	c, err := New(Options{API: APIAnthropic, BaseURL: srv.URL, APIKey: "sk-ant", Model: "claude-test"})
	if err != nil {
		t.Fatal(err)
	}

	out, err := c.TextCompletion(context.Background(), "judge actions", "still relevant?", "")
	if err != nil {
		t.Fatal(err)
	}
	if out != "first\n\nsecond" {
		t.Errorf("out = %q", out)
	}
	if gotReq.System != "judge actions" || len(gotReq.Messages) != 1 {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestCompletionAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "over quota"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _ := New(Options{API: APIOpenAI, BaseURL: srv.URL, Model: "gpt-test"})
	_, err := c.TextCompletion(context.Background(), "s", "u", "")
	if err == nil || !strings.Contains(err.Error(), "status 429") {
		t.Errorf("err = %v", err)
	}
}

func TestCompletionEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(oaiResponse{})
	}))
	defer srv.Close()

	c, _ := New(Options{API: APIOpenAI, BaseURL: srv.URL, Model: "gpt-test"})
	_, err := c.TextCompletion(context.Background(), "s", "u", "")
	if err == nil || !strings.Contains(err.Error(), "empty completion") {
		t.Errorf("err = %v", err)
	}
}
