// Package relevance decides whether agent-proposed actions are still worth
// executing. Three tiers of increasing cost run in order: static rules,
// contact-context checks, and an LLM judgment. Every pipeline run emits one
// audit entry, and anything inconclusive or malformed fails closed.
package relevance

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/agentbus/agentbus/internal/agent"
	"github.com/agentbus/agentbus/internal/audit"
	"github.com/agentbus/agentbus/internal/metrics"
)

// Completer is the LLM collaborator used by the third tier.
type Completer interface {
	TextCompletion(ctx context.Context, systemPrompt, userPrompt, conversationID string) (string, error)
}

// ContactSource looks up the current relationship snapshot for a contact.
type ContactSource interface {
	ContactContext(ctx context.Context, contactID, orgID string) (*agent.ContactContext, error)
}

// Request asks for one action to be validated against one contact.
type Request struct {
	Action    agent.Action
	ContactID string
	OrgID     string
}

type Options struct {
	Sink    audit.Sink
	Cache   *Cache
	Metrics *metrics.Metrics
	Config  *Config
}

type Validator struct {
	completer Completer
	contacts  ContactSource
	sink      audit.Sink
	cache     *Cache
	metrics   *metrics.Metrics
	cfg       atomic.Pointer[Config]
}

func New(completer Completer, contacts ContactSource, opts Options) *Validator {
	v := &Validator{
		completer: completer,
		contacts:  contacts,
		sink:      opts.Sink,
		cache:     opts.Cache,
		metrics:   opts.Metrics,
	}
	if v.sink == nil {
		v.sink = audit.NopSink{}
	}
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	v.cfg.Store(&cfg)
	return v
}

// UpdateConfig swaps the pipeline configuration. In-flight validations keep
// the config they loaded at entry.
func (v *Validator) UpdateConfig(cfg Config) {
	v.cfg.Store(&cfg)
}

func (v *Validator) Config() Config {
	return *v.cfg.Load()
}

// Validate runs the pipeline for a single action. It never returns an error:
// invalid input and collaborator failures come back as a non-relevant result
// with the reason inside, and every call leaves one audit entry behind.
func (v *Validator) Validate(ctx context.Context, req Request) *agent.RelevanceResult {
	cfg := v.cfg.Load()
	action := req.Action

	if action.ID == "" || action.Kind == "" {
		return v.finish(ctx, &action, req.ContactID, TierError, tierResult{
			verdict:    verdictStale,
			confidence: 0,
			reason:     "validation error: action is missing id or kind",
		})
	}

	contactID := req.ContactID
	if contactID == "" {
		contactID = action.ContactID
	}
	contact := v.lookupContact(ctx, contactID, req.OrgID)

	res, tier := v.pipeline(ctx, cfg, &action, contact)
	return v.finish(ctx, &action, contactID, tier, res)
}

// ValidateBatch applies the pipeline per item. One bad item never aborts the
// batch: it yields its own failed result and the rest are still evaluated.
func (v *Validator) ValidateBatch(ctx context.Context, reqs []Request) []*agent.RelevanceResult {
	results := make([]*agent.RelevanceResult, len(reqs))
	for i, req := range reqs {
		results[i] = v.Validate(ctx, req)
	}
	return results
}

// StillRelevant is the cache-friendly fast path: rule and context tiers
// only, no LLM. Less authoritative than Validate; use it for cheap gating,
// not as the final gate before execution.
func (v *Validator) StillRelevant(ctx context.Context, action agent.Action, contactID, orgID string) bool {
	if v.cache != nil {
		if relevant, ok := v.cache.Get(ctx, action.ID); ok {
			return relevant
		}
	}

	cfg := v.cfg.Load()
	contact := v.lookupContact(ctx, contactID, orgID)

	t1 := v.evaluateCriteria(cfg, &action, contact)
	relevant := t1.verdict == verdictRelevant
	if t1.verdict == verdictInconclusive {
		relevant = v.evaluateContext(cfg, &action, contact).verdict == verdictRelevant
	}

	if v.cache != nil {
		v.cache.Set(ctx, action.ID, relevant, cfg.CacheTTL)
	}
	return relevant
}

// SuggestAlternatives proposes related, currently-valid actions for one the
// pipeline rejected. The suggestions are explicitly unvalidated: they carry
// no validation metadata and this method never calls back into Validate.
func (v *Validator) SuggestAlternatives(ctx context.Context, action agent.Action, contactID, orgID string) []agent.Action {
	cfg := v.cfg.Load()
	contact := v.lookupContact(ctx, contactID, orgID)
	now := time.Now()

	if contact != nil && cfg.terminal(contact.RelationshipState) {
		return nil
	}

	var out []agent.Action

	if action.Expired(now) || (cfg.MaxActionAge > 0 && !action.CreatedAt.IsZero() && now.Sub(action.CreatedAt) > cfg.MaxActionAge) {
		rescheduled := action
		rescheduled.ID = uuid.NewString()
		rescheduled.CreatedAt = now
		rescheduled.ExpiresAt = time.Time{}
		rescheduled.SuggestedTiming = now.Add(72 * time.Hour)
		rescheduled.ValidationReason = ""
		rescheduled.RequiresApproval = false
		rescheduled.ApprovalRequestID = ""
		rescheduled.Description = fmt.Sprintf("Reschedule: %s", action.Description)
		out = append(out, rescheduled)
	}

	if contact != nil {
		if target := action.Params[targetStateParam]; target != "" && contact.RelationshipState != target {
			out = append(out, agent.Action{
				ID:          uuid.NewString(),
				Kind:        "send_check_in",
				Description: fmt.Sprintf("Check in with contact, now in state %q", contact.RelationshipState),
				Priority:    action.Priority,
				Scope:       agent.ScopeLocal,
				ContactID:   contact.ContactID,
				TraceID:     action.TraceID,
				CreatedAt:   now,
			})
		}
		if contact.Sentiment < cfg.MinSentiment {
			out = append(out, agent.Action{
				ID:          uuid.NewString(),
				Kind:        "schedule_review",
				Description: "Schedule a relationship review before further outreach",
				Priority:    action.Priority + 1,
				Scope:       agent.ScopeLocal,
				ContactID:   contact.ContactID,
				TraceID:     action.TraceID,
				CreatedAt:   now,
			})
		}
	}

	return out
}

// pipeline runs the tiers an action's scope demands and returns the final
// verdict plus the deciding tier. Low-risk local actions stop after the
// deterministic tiers and fail closed when those are inconclusive. High-risk
// cross-contact actions always reach the LLM tier, except that a
// deterministic stale verdict is final: the model may confirm relevance, not
// resurrect a rule-rejected action. Executing a stale action is the worse
// failure mode, so a stale verdict never gets a second opinion.
func (v *Validator) pipeline(ctx context.Context, cfg *Config, action *agent.Action, contact *agent.ContactContext) (tierResult, string) {
	t1 := v.evaluateCriteria(cfg, action, contact)
	highRisk := action.Scope == agent.ScopeCrossContact

	if !highRisk {
		if t1.verdict != verdictInconclusive {
			return t1, TierRules
		}
		t2 := v.evaluateContext(cfg, action, contact)
		if t2.verdict != verdictInconclusive {
			return t2, TierContext
		}
		return tierResult{
			verdict:    verdictStale,
			confidence: 0.3,
			reason:     fmt.Sprintf("inconclusive after deterministic checks (%s; %s); failing closed", t1.reason, t2.reason),
		}, TierInconclusive
	}

	if t1.verdict == verdictStale {
		return t1, TierRules
	}
	t2 := v.evaluateContext(cfg, action, contact)
	if t2.verdict == verdictStale {
		return t2, TierContext
	}

	var prior []tierResult
	if t1.verdict == verdictInconclusive {
		prior = append(prior, t1)
	}
	if t2.verdict == verdictInconclusive {
		prior = append(prior, t2)
	}
	return v.validateWithLLM(ctx, cfg, action, contact, prior), TierLLM
}

func (v *Validator) lookupContact(ctx context.Context, contactID, orgID string) *agent.ContactContext {
	if v.contacts == nil || contactID == "" {
		return nil
	}
	contact, err := v.contacts.ContactContext(ctx, contactID, orgID)
	if err != nil {
		log.Printf("relevance: contact lookup %s: %v", contactID, err)
		return nil
	}
	return contact
}

// finish converts the deciding tier's result, records the audit entry and
// updates metrics. Sink failures are logged locally, never raised.
func (v *Validator) finish(ctx context.Context, action *agent.Action, contactID, tier string, res tierResult) *agent.RelevanceResult {
	result := &agent.RelevanceResult{
		ActionID:        action.ID,
		IsRelevant:      res.verdict == verdictRelevant,
		ConfidenceScore: clamp01(res.confidence),
		Reasoning:       res.reason,
		EvaluatedAt:     time.Now(),
	}

	entry := audit.Entry{
		ID:              uuid.NewString(),
		TraceID:         action.TraceID,
		ContactID:       contactID,
		ActionID:        action.ID,
		ActionKind:      action.Kind,
		Tier:            tier,
		IsRelevant:      result.IsRelevant,
		ConfidenceScore: result.ConfidenceScore,
		Reasoning:       result.Reasoning,
		EvaluatedAt:     result.EvaluatedAt,
	}
	if err := v.sink.Record(ctx, entry); err != nil {
		log.Printf("relevance: audit sink unavailable, keeping entry locally: %+v: %v", entry, err)
	}

	if v.metrics != nil {
		verdict := "stale"
		if result.IsRelevant {
			verdict = "relevant"
		}
		v.metrics.Validations.WithLabelValues(tier, verdict).Inc()
	}
	return result
}
