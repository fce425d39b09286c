// Package llm is the completion client behind the relevance pipeline's third
// tier. It speaks either the Anthropic messages API or any OpenAI-compatible
// chat completions endpoint; the caller only sees TextCompletion.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	APIAnthropic = "anthropic"
	APIOpenAI    = "openai"

	defaultMaxTokens = 1024
)

type Options struct {
	API       string // APIAnthropic or APIOpenAI
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Client    *http.Client
}

// Client issues completion calls against one configured endpoint.
type Client struct {
	api       string
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	client    *http.Client
}

func New(opts Options) (*Client, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}

	api := opts.API
	if api == "" {
		api = APIOpenAI
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	switch api {
	case APIAnthropic:
		if baseURL == "" {
			baseURL = anthropicDefaultBaseURL
		}
	case APIOpenAI:
		if baseURL == "" {
			baseURL = openAIDefaultBaseURL
		}
	default:
		return nil, fmt.Errorf("llm: unknown api type %q (supported: %s, %s)", api, APIAnthropic, APIOpenAI)
	}

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	httpClient := opts.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	return &Client{
		api:       api,
		baseURL:   baseURL,
		apiKey:    opts.APIKey,
		model:     opts.Model,
		maxTokens: maxTokens,
		client:    httpClient,
	}, nil
}

// TextCompletion sends one system+user exchange and returns the raw text
// reply. conversationID is forwarded as a user identifier where the API
// supports one; it never changes the content of the exchange.
func (c *Client) TextCompletion(ctx context.Context, systemPrompt, userPrompt, conversationID string) (string, error) {
	switch c.api {
	case APIAnthropic:
		return c.anthropicCompletion(ctx, systemPrompt, userPrompt)
	default:
		return c.openAICompletion(ctx, systemPrompt, userPrompt, conversationID)
	}
}
