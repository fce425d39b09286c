// Package config loads the agentbus configuration from YAML. String values
// may reference environment variables as ${NAME}; unknown variables are left
// verbatim so the error surfaces where the value is used.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// APIAddr is the control API listen address. Empty means ":8080".
	APIAddr string `yaml:"api_addr"`
	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr  string             `yaml:"metrics_addr"`
	Bus          BusConfig          `yaml:"bus"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	Relevance    RelevanceConfig    `yaml:"relevance"`
	Audit        AuditConfig        `yaml:"audit"`
	Redis        RedisConfig        `yaml:"redis"`
	LLM          LLMConfig          `yaml:"llm"`
	Agents       []AgentConfig      `yaml:"agents"`
}

type BusConfig struct {
	CallTimeout         Duration `yaml:"call_timeout"`
	SlotWait            Duration `yaml:"slot_wait"`
	MaxInFlightPerAgent int      `yaml:"max_in_flight_per_agent"`
	MaxWorkflowHops     int      `yaml:"max_workflow_hops"`
	OrchestrationMethod string   `yaml:"orchestration_method"`
}

type HousekeepingConfig struct {
	HealthCheckEvery  Duration `yaml:"health_check_every"`
	PruneEvery        Duration `yaml:"prune_every"`
	WorkflowRetention Duration `yaml:"workflow_retention"`
}

type RelevanceConfig struct {
	MaxActionAge       Duration `yaml:"max_action_age"`
	MinSentiment       *float64 `yaml:"min_sentiment"`
	IdleAfter          Duration `yaml:"idle_after"`
	RelevantConfidence float64  `yaml:"relevant_confidence"`
	ApprovalBelow      float64  `yaml:"approval_below"`
	LLMTimeout         Duration `yaml:"llm_timeout"`
	CacheTTL           Duration `yaml:"cache_ttl"`
	CriteriaScripts    []string `yaml:"criteria_scripts"`
	TerminalStates     []string `yaml:"terminal_states"`
}

type AuditConfig struct {
	Backend     string `yaml:"backend"` // sqlite, postgres or none
	DataDir     string `yaml:"data_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LLMConfig struct {
	API       string `yaml:"api"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// AgentConfig describes one remote agent to connect and register at startup.
type AgentConfig struct {
	ID          string   `yaml:"id"`
	Endpoint    string   `yaml:"endpoint"`
	DialTimeout Duration `yaml:"dial_timeout"`
	Intents     []string `yaml:"intents"`
	Industries  []string `yaml:"industries"`
}

// Duration parses YAML values like "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Or returns the duration, or fallback when unset.
func (d Duration) Or(fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return time.Duration(d)
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func expandEnvInSecrets(cfg *Config) {
	cfg.Audit.PostgresDSN = expandEnv(cfg.Audit.PostgresDSN)
	cfg.Redis.Addr = expandEnv(cfg.Redis.Addr)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.LLM.BaseURL = expandEnv(cfg.LLM.BaseURL)
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	for i, a := range cfg.Agents {
		cfg.Agents[i].Endpoint = expandEnv(a.Endpoint)
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	expandEnvInSecrets(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Audit.Backend {
	case "", "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("audit backend %q not supported (want sqlite, postgres or none)", cfg.Audit.Backend)
	}
	if cfg.Audit.Backend == "postgres" && cfg.Audit.PostgresDSN == "" {
		return fmt.Errorf("audit backend postgres requires postgres_dsn")
	}
	seen := make(map[string]bool, len(cfg.Agents))
	for _, a := range cfg.Agents {
		if a.ID == "" {
			return fmt.Errorf("agent entry missing id")
		}
		if seen[a.ID] {
			return fmt.Errorf("duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		if a.Endpoint == "" {
			return fmt.Errorf("agent %q missing endpoint", a.ID)
		}
		if len(a.Intents) == 0 {
			return fmt.Errorf("agent %q declares no intents", a.ID)
		}
	}
	return nil
}
