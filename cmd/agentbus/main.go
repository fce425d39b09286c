package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/agentbus/agentbus/internal/api"
	"github.com/agentbus/agentbus/internal/audit"
	"github.com/agentbus/agentbus/internal/bus"
	"github.com/agentbus/agentbus/internal/compliance"
	"github.com/agentbus/agentbus/internal/config"
	"github.com/agentbus/agentbus/internal/llm"
	"github.com/agentbus/agentbus/internal/metrics"
	"github.com/agentbus/agentbus/internal/registry"
	"github.com/agentbus/agentbus/internal/relevance"
	"github.com/agentbus/agentbus/internal/remote"
	"github.com/agentbus/agentbus/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	log.Println(version.String())

	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	if err := run(cfg); err != nil {
		log.Fatalf("agentbus: %v", err)
	}
}

func run(cfg *config.Config) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	store, err := openAuditStore(cfg.Audit)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	reg := registry.New()
	workflows := bus.NewWorkflowStore()
	b := bus.New(reg, workflows, bus.Options{
		CallTimeout:         cfg.Bus.CallTimeout.Or(0),
		SlotWait:            cfg.Bus.SlotWait.Or(0),
		MaxInFlightPerAgent: cfg.Bus.MaxInFlightPerAgent,
		MaxWorkflowHops:     cfg.Bus.MaxWorkflowHops,
		Metrics:             m,
	})
	if cfg.Bus.OrchestrationMethod != "" {
		if err := b.SetOrchestrationMethod(cfg.Bus.OrchestrationMethod); err != nil {
			return err
		}
	}

	var cache *relevance.Cache
	if cfg.Redis.Addr != "" {
		cache = relevance.NewCache(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	}

	var completer relevance.Completer
	if cfg.LLM.Model != "" {
		client, err := llm.New(llm.Options{
			API:       cfg.LLM.API,
			BaseURL:   cfg.LLM.BaseURL,
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
		})
		if err != nil {
			return err
		}
		completer = client
	} else {
		log.Println("no llm configured; inconclusive validations will fail closed")
	}

	relevanceCfg := relevanceConfig(cfg.Relevance)
	validator := relevance.New(completer, nil, relevance.Options{
		Sink:    store,
		Cache:   cache,
		Metrics: m,
		Config:  &relevanceCfg,
	})
	checker := compliance.NewChecker(store, m)

	clients, err := connectAgents(cfg.Agents, reg)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}()

	if err := b.StartHousekeeping(bus.HousekeepingOptions{
		HealthCheckEvery:  cfg.Housekeeping.HealthCheckEvery.Or(0),
		PruneEvery:        cfg.Housekeeping.PruneEvery.Or(0),
		WorkflowRetention: cfg.Housekeeping.WorkflowRetention.Or(0),
	}); err != nil {
		return err
	}
	defer b.StopHousekeeping()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	srv := api.NewServer(reg, b, validator, checker, store)
	apiAddr := cfg.APIAddr
	if apiAddr == "" {
		apiAddr = ":8080"
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(apiAddr) }()

	log.Printf("agentbus ready: api on %s, %d agents registered", apiAddr, len(clients))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("api shutdown: %v", err)
	}
	return nil
}

func openAuditStore(cfg config.AuditConfig) (audit.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return audit.OpenPostgres(cfg.PostgresDSN)
	case "none":
		return nopStore{}, nil
	default:
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "data"
		}
		return audit.OpenSQLite(dataDir)
	}
}

func connectAgents(entries []config.AgentConfig, reg *registry.Registry) ([]*remote.Client, error) {
	clients := make([]*remote.Client, 0, len(entries))
	for _, a := range entries {
		ctx, cancel := context.WithTimeout(context.Background(), a.DialTimeout.Or(10*time.Second))
		client, err := remote.Connect(ctx, a.Endpoint, a.DialTimeout.Or(10*time.Second))
		cancel()
		if err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			return nil, fmt.Errorf("agent %q: %w", a.ID, err)
		}

		cap := client.Capability()
		cap.AgentID = a.ID
		if len(a.Intents) > 0 {
			cap.SupportedIntents = a.Intents
		}
		if len(a.Industries) > 0 {
			cap.Industries = a.Industries
		}
		if err := reg.Register(a.ID, client, cap); err != nil {
			_ = client.Close()
			for _, c := range clients {
				_ = c.Close()
			}
			return nil, fmt.Errorf("register agent %q: %w", a.ID, err)
		}
		clients = append(clients, client)
		log.Printf("registered agent %s at %s (%d intents)", a.ID, a.Endpoint, len(cap.SupportedIntents))
	}
	return clients, nil
}

func relevanceConfig(rc config.RelevanceConfig) relevance.Config {
	cfg := relevance.DefaultConfig()
	if rc.MaxActionAge != 0 {
		cfg.MaxActionAge = time.Duration(rc.MaxActionAge)
	}
	if rc.MinSentiment != nil {
		cfg.MinSentiment = *rc.MinSentiment
	}
	if rc.IdleAfter != 0 {
		cfg.IdleAfter = time.Duration(rc.IdleAfter)
	}
	if rc.RelevantConfidence != 0 {
		cfg.RelevantConfidence = rc.RelevantConfidence
	}
	if rc.ApprovalBelow != 0 {
		cfg.ApprovalBelow = rc.ApprovalBelow
	}
	if rc.LLMTimeout != 0 {
		cfg.LLMTimeout = time.Duration(rc.LLMTimeout)
	}
	if rc.CacheTTL != 0 {
		cfg.CacheTTL = time.Duration(rc.CacheTTL)
	}
	if len(rc.CriteriaScripts) > 0 {
		cfg.CriteriaScripts = rc.CriteriaScripts
	}
	if len(rc.TerminalStates) > 0 {
		cfg.TerminalStates = rc.TerminalStates
	}
	return cfg
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics server: %v", err)
	}
}

// nopStore satisfies audit.Store for hosts that disable auditing.
type nopStore struct {
	audit.NopSink
}

func (nopStore) Validations(context.Context, audit.Filter) ([]audit.Entry, error) {
	return nil, nil
}

func (nopStore) Close() error { return nil }
