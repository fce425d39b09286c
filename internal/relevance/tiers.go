package relevance

import (
	"fmt"
	"log"
	"time"

	"github.com/agentbus/agentbus/internal/agent"
)

// Deciding tier names, recorded in audit entries and metrics.
const (
	TierRules        = "rules"
	TierContext      = "context"
	TierLLM          = "llm"
	TierInconclusive = "inconclusive"
	TierError        = "error"
)

type verdict int

const (
	verdictInconclusive verdict = iota
	verdictRelevant
	verdictStale
)

type tierResult struct {
	verdict    verdict
	confidence float64
	reason     string
}

func inconclusive(reason string) tierResult {
	return tierResult{verdict: verdictInconclusive, reason: reason}
}

// targetStateParam names the action parameter carrying the relationship
// state the action was proposed for.
const targetStateParam = "target_state"

// evaluateCriteria is the cheap, deterministic rule tier. It checks expiry,
// action age and the target relationship state, then defers to any
// configured Lua criteria scripts.
func (v *Validator) evaluateCriteria(cfg *Config, action *agent.Action, contact *agent.ContactContext) tierResult {
	now := time.Now()

	if action.Expired(now) {
		return tierResult{
			verdict:    verdictStale,
			confidence: cfg.RelevantConfidence,
			reason:     fmt.Sprintf("action expired at %s", action.ExpiresAt.Format(time.RFC3339)),
		}
	}
	if !action.CreatedAt.IsZero() && cfg.MaxActionAge > 0 && now.Sub(action.CreatedAt) > cfg.MaxActionAge {
		return tierResult{
			verdict:    verdictStale,
			confidence: cfg.RelevantConfidence,
			reason:     fmt.Sprintf("action proposed %s ago, older than the %s limit", now.Sub(action.CreatedAt).Round(time.Hour), cfg.MaxActionAge),
		}
	}

	if target := action.Params[targetStateParam]; target != "" {
		if contact == nil {
			return inconclusive("target relationship state declared but contact context unavailable")
		}
		if contact.RelationshipState != target {
			return tierResult{
				verdict:    verdictStale,
				confidence: cfg.RelevantConfidence,
				reason:     fmt.Sprintf("contact moved from target state %q to %q", target, contact.RelationshipState),
			}
		}
		return tierResult{
			verdict:    verdictRelevant,
			confidence: cfg.RelevantConfidence,
			reason:     fmt.Sprintf("contact still in target state %q and action within age limits", target),
		}
	}

	for _, script := range cfg.CriteriaScripts {
		res, err := runCriteriaScript(script, action, contact)
		if err != nil {
			log.Printf("relevance: criteria script %s: %v", script, err)
			continue
		}
		if res.verdict != verdictInconclusive {
			if res.confidence == 0 {
				res.confidence = cfg.RelevantConfidence
			}
			return res
		}
	}

	return inconclusive("no rule matched decisively")
}

// evaluateContext re-derives freshness from the current contact snapshot:
// last interaction recency, sentiment and lifecycle state. Still
// deterministic; runs when the rule tier is inconclusive.
func (v *Validator) evaluateContext(cfg *Config, action *agent.Action, contact *agent.ContactContext) tierResult {
	if contact == nil {
		return inconclusive("contact context unavailable")
	}

	if cfg.terminal(contact.RelationshipState) {
		return tierResult{
			verdict:    verdictStale,
			confidence: cfg.RelevantConfidence,
			reason:     fmt.Sprintf("relationship state %q is terminal", contact.RelationshipState),
		}
	}
	if contact.Sentiment < cfg.MinSentiment {
		return tierResult{
			verdict:    verdictStale,
			confidence: 0.8,
			reason:     fmt.Sprintf("contact sentiment %.2f below floor %.2f", contact.Sentiment, cfg.MinSentiment),
		}
	}
	if !contact.LastInteractionAt.IsZero() && cfg.IdleAfter > 0 &&
		time.Since(contact.LastInteractionAt) > cfg.IdleAfter {
		return inconclusive(fmt.Sprintf("no interaction for %s, freshness cannot be derived from context alone",
			time.Since(contact.LastInteractionAt).Round(24*time.Hour)))
	}
	if !contact.LastInteractionAt.IsZero() && !action.CreatedAt.IsZero() &&
		contact.LastInteractionAt.After(action.CreatedAt) {
		// The relationship moved after this action was proposed.
		return inconclusive("contact interacted after the action was proposed")
	}

	return tierResult{
		verdict:    verdictRelevant,
		confidence: 0.75,
		reason:     "contact context unchanged since the action was proposed",
	}
}
