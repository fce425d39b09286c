package relevance

import "time"

// Config tunes the validation pipeline. It is hot-reloadable: UpdateConfig
// swaps it atomically and in-flight validations keep the config they
// started with.
type Config struct {
	// MaxActionAge marks actions proposed longer ago than this as stale in
	// the rule-based tier.
	MaxActionAge time.Duration `yaml:"max_action_age"`
	// MinSentiment is the contact sentiment floor below which the contextual
	// tier declares an action stale.
	MinSentiment float64 `yaml:"min_sentiment"`
	// IdleAfter is how long without contact interaction before the
	// contextual tier can no longer vouch for freshness on its own.
	IdleAfter time.Duration `yaml:"idle_after"`
	// RelevantConfidence is the confidence assigned to rule-based
	// "clearly relevant" verdicts.
	RelevantConfidence float64 `yaml:"relevant_confidence"`
	// ApprovalBelow forces RequiresApproval on validated actions whose
	// confidence lands under this cutoff.
	ApprovalBelow float64 `yaml:"approval_below"`
	// LLMTimeout bounds one Tier-3 completion call.
	LLMTimeout time.Duration `yaml:"llm_timeout"`
	// CacheTTL is how long fast-path verdicts stay cached.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// CriteriaScripts are optional Lua rule scripts run by the rule-based
	// tier, in order; the first conclusive verdict wins.
	CriteriaScripts []string `yaml:"criteria_scripts"`
	// TerminalStates are relationship states in which no scheduled action
	// remains relevant.
	TerminalStates []string `yaml:"terminal_states"`
}

func DefaultConfig() Config {
	return Config{
		MaxActionAge:       30 * 24 * time.Hour,
		MinSentiment:       -0.2,
		IdleAfter:          90 * 24 * time.Hour,
		RelevantConfidence: 0.9,
		ApprovalBelow:      0.5,
		LLMTimeout:         20 * time.Second,
		CacheTTL:           5 * time.Minute,
		TerminalStates:     []string{"closed", "churned", "do_not_contact"},
	}
}

func (c *Config) terminal(state string) bool {
	for _, s := range c.TerminalStates {
		if s == state {
			return true
		}
	}
	return false
}
