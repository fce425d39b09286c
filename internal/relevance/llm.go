package relevance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentbus/agentbus/internal/agent"
)

const relevanceSystemPrompt = `You judge whether a previously scheduled CRM action is still worth executing.
Respond with a single JSON object and nothing else:
{"isRelevant": true|false, "confidence": 0.0-1.0, "reasoning": "one or two sentences"}`

type llmJudgment struct {
	IsRelevant bool    `json:"isRelevant"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// validateWithLLM delegates the relevance judgment to the completion
// collaborator. Malformed or missing output fails closed: executing a stale
// action is the worse failure mode, so the answer is "not relevant" with a
// reason, never a guess of "relevant" and never a raised parse error.
func (v *Validator) validateWithLLM(ctx context.Context, cfg *Config, action *agent.Action, contact *agent.ContactContext, prior []tierResult) tierResult {
	if v.completer == nil {
		return tierResult{
			verdict:    verdictStale,
			confidence: 0.1,
			reason:     "llm validation not configured, failing closed",
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.LLMTimeout)
	defer cancel()

	out, err := v.completer.TextCompletion(callCtx, relevanceSystemPrompt, buildJudgmentPrompt(action, contact, prior), action.TraceID)
	if err != nil {
		return tierResult{
			verdict:    verdictStale,
			confidence: 0.1,
			reason:     fmt.Sprintf("llm validation unavailable, failing closed: %v", err),
		}
	}

	judgment, err := parseJudgment(out)
	if err != nil {
		return tierResult{
			verdict:    verdictStale,
			confidence: 0.1,
			reason:     fmt.Sprintf("unparsable llm judgment, failing closed: %v", err),
		}
	}

	verdict := verdictStale
	if judgment.IsRelevant {
		verdict = verdictRelevant
	}
	return tierResult{
		verdict:    verdict,
		confidence: clamp01(judgment.Confidence),
		reason:     judgment.Reasoning,
	}
}

func buildJudgmentPrompt(action *agent.Action, contact *agent.ContactContext, prior []tierResult) string {
	var sb strings.Builder
	sb.WriteString("Scheduled action:\n")
	fmt.Fprintf(&sb, "  kind: %s\n  description: %s\n  proposed: %s\n",
		action.Kind, action.Description, action.CreatedAt.Format(time.RFC3339))
	if !action.SuggestedTiming.IsZero() {
		fmt.Fprintf(&sb, "  suggested timing: %s\n", action.SuggestedTiming.Format(time.RFC3339))
	}
	for k, val := range action.Params {
		fmt.Fprintf(&sb, "  param %s: %s\n", k, val)
	}

	if contact != nil {
		sb.WriteString("Current contact context:\n")
		fmt.Fprintf(&sb, "  relationship state: %s\n  lifecycle stage: %s\n  sentiment: %.2f\n",
			contact.RelationshipState, contact.LifecycleStage, contact.Sentiment)
		if !contact.LastInteractionAt.IsZero() {
			fmt.Fprintf(&sb, "  last interaction: %s\n", contact.LastInteractionAt.Format(time.RFC3339))
		}
	} else {
		sb.WriteString("Current contact context: unavailable\n")
	}

	if len(prior) > 0 {
		sb.WriteString("Earlier deterministic checks were inconclusive:\n")
		for _, p := range prior {
			fmt.Fprintf(&sb, "  - %s\n", p.reason)
		}
	}
	sb.WriteString("Is this action still worth executing now?")
	return sb.String()
}

// parseJudgment tolerates prose around the JSON object but nothing less than
// one well-formed object with a reasoning string.
func parseJudgment(out string) (*llmJudgment, error) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var j llmJudgment
	if err := json.Unmarshal([]byte(out[start:end+1]), &j); err != nil {
		return nil, fmt.Errorf("decode judgment: %w", err)
	}
	if j.Reasoning == "" {
		return nil, fmt.Errorf("judgment missing reasoning")
	}
	return &j, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
