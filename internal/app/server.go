// Package app wires the evaluation service together: configuration,
// logging, tracing, the provider registry, the execution engine, the agent
// fleet, and the decision persistence pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/LLM-Dev-Ops/evalbench/internal/agents"
	"github.com/LLM-Dev-Ops/evalbench/internal/cache"
	"github.com/LLM-Dev-Ops/evalbench/internal/catalog"
	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/executor"
	"github.com/LLM-Dev-Ops/evalbench/internal/gateway"
	"github.com/LLM-Dev-Ops/evalbench/internal/httpapi"
	"github.com/LLM-Dev-Ops/evalbench/internal/logging"
	"github.com/LLM-Dev-Ops/evalbench/internal/metrics"
	"github.com/LLM-Dev-Ops/evalbench/internal/providers"
	"github.com/LLM-Dev-Ops/evalbench/internal/providers/registry"
	"github.com/LLM-Dev-Ops/evalbench/internal/ratelimit"
	"github.com/LLM-Dev-Ops/evalbench/internal/tracing"
)

type Server struct {
	cfg Config

	r *chi.Mux

	gateway  *gateway.Client
	pipeline *decision.Pipeline
	limiter  *ratelimit.Limiter
	logger   *slog.Logger

	stopProber      func()
	tracingShutdown func(context.Context) error
}

func NewServer(cfg Config) (*Server, error) {
	logger := logging.Setup(cfg.LogLevel)
	logger.Info("agent starting",
		slog.String("agent_name", cfg.AgentName),
		slog.String("agent_domain", cfg.AgentDomain),
		slog.String("agent_phase", cfg.AgentPhase),
		slog.String("agent_layer", cfg.AgentLayer))

	tracingShutdown, err := tracing.Setup(tracing.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.AgentName,
	})
	if err != nil {
		return nil, fmt.Errorf("tracing setup: %w", err)
	}

	corsOrigins := cfg.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	m := metrics.New()

	// Provider side: catalog, key resolution, and the invoker registry share
	// one traced HTTP client.
	cat := catalog.Default()
	keyCache := cache.New(time.Duration(cfg.KeyCacheTTLSecs)*time.Second, 1024)
	keys := providers.NewKeyResolver(keyCache)
	// No client-level timeout: each call's deadline comes from the target's
	// timeout_ms, so a client cap would silently truncate long evaluations.
	// The response-header ceiling still catches connections that hang before
	// the provider answers at all.
	providerTransport := http.DefaultTransport.(*http.Transport).Clone()
	providerTransport.ResponseHeaderTimeout = time.Duration(cfg.ProviderTimeoutSecs) * time.Second
	providerClient := providers.NewHTTPClient(tracing.HTTPTransport(providerTransport))
	invokers := registry.New(providerClient, keys, cat)

	engine := executor.NewEngine(invokers, cat,
		executor.WithLogger(logger),
		executor.WithMetrics(m))

	gw := gateway.NewClient(cfg.StoreURL, cfg.StoreAPIKey,
		gateway.WithLogger(logger),
		gateway.WithHTTPClient(&http.Client{
			Timeout:   30 * time.Second,
			Transport: tracing.HTTPTransport(nil),
		}))

	// The store must answer before the agent surface goes live.
	probeCtx, cancel := context.WithTimeout(context.Background(), gateway.ProbeTimeout)
	defer cancel()
	if err := gw.CheckHealth(probeCtx); err != nil {
		return nil, fmt.Errorf("decision store probe: %w", err)
	}
	logger.Info("decision store reachable", slog.String("url", cfg.StoreURL))
	stopProber := gw.StartProber(gateway.DefaultProbeInterval)

	pipe := decision.NewPipeline(gw,
		decision.WithPipelineLogger(logger),
		decision.WithBufferSize(cfg.PipelineBufferSize),
		decision.WithFlushInterval(time.Duration(cfg.FlushIntervalSecs)*time.Second),
		decision.WithDrainTimeout(time.Duration(cfg.DrainTimeoutSecs)*time.Second),
		decision.WithDropObserver(func(n int64) { m.PersistenceDrops.Add(float64(n)) }))

	reg := agents.NewRegistry(
		agents.NewBenchmarkAgent(engine),
		agents.NewComparatorAgent(engine),
		agents.NewSensitivityAgent(engine),
		agents.NewAdversarialAgent(engine),
		agents.NewStressAgent(engine),
		agents.NewConsistencyAgent(),
		agents.NewGoldenAgent(),
		agents.NewHallucinationAgent(),
		agents.NewRegressionAgent(),
		agents.NewBiasAgent(),
		agents.NewFaithfulnessAgent(),
		agents.NewQualityAgent(),
		agents.NewSyntheticAgent(),
	)
	svc := agents.NewService(reg, pipe, gw,
		agents.WithServiceLogger(logger),
		agents.WithServiceMetrics(m))
	for _, info := range reg.List() {
		logger.Info("registered agent",
			slog.String("agent_id", info.ID),
			slog.String("decision_type", info.DecisionType))
	}

	limiter := ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst, time.Second,
		ratelimit.WithCounter(m.RateLimited))

	s := &Server{
		cfg:             cfg,
		r:               r,
		gateway:         gw,
		pipeline:        pipe,
		limiter:         limiter,
		logger:          logger,
		stopProber:      stopProber,
		tracingShutdown: tracingShutdown,
	}

	httpapi.MountRoutes(r, httpapi.Dependencies{
		Service:     svc,
		Gateway:     gw,
		Metrics:     m,
		RateLimiter: limiter,
		Logger:      logger,
	})

	return s, nil
}

func (s *Server) Router() http.Handler { return s.r }

// Gateway exposes the store client for standalone health probes.
func (s *Server) Gateway() *gateway.Client { return s.gateway }

// Close drains the decision pipeline and releases background resources.
func (s *Server) Close() error {
	s.stopProber()
	s.limiter.Stop()
	err := s.pipeline.Close()
	if s.tracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if terr := s.tracingShutdown(ctx); terr != nil && err == nil {
			err = terr
		}
	}
	return err
}
