// Package gateway is the client for the decision store service: decision and
// telemetry writes, the liveness probe used at startup and readiness checks,
// and a circuit breaker that fails writes fast while the store is down.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
)

const (
	decisionsPath = "/api/v1/decisions"
	telemetryPath = "/api/v1/telemetry"
	healthPath    = "/health"

	// ProbeTimeout bounds the startup liveness probe.
	ProbeTimeout = 5 * time.Second

	// DefaultProbeInterval spaces the background liveness probes that keep
	// the health endpoint current.
	DefaultProbeInterval = 15 * time.Second
)

// ErrCircuitOpen is returned when the breaker rejects a write without
// calling the store.
var ErrCircuitOpen = errors.New("gateway: circuit open")

// Client talks to the decision store over HTTP. It implements decision.Sink.
// The API key travels only in request headers and is never logged.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *Breaker
	logger  *slog.Logger

	// probeOK holds the most recent CheckHealth result.
	probeOK atomic.Bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(g *Client) { g.client = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(g *Client) { g.logger = l }
}

// WithBreaker sets a pre-configured circuit breaker.
func WithBreaker(b *Breaker) ClientOption {
	return func(g *Client) { g.breaker = b }
}

// NewClient builds a store client for the given base URL and API key.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	g := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = NewBreaker(WithOnStateChange(func(from, to State) {
			g.logger.Warn("store circuit state changed",
				"from", from.String(),
				"to", to.String())
		}))
	}
	return g
}

// PersistDecision writes one decision record.
func (g *Client) PersistDecision(ctx context.Context, rec decision.Record) error {
	return g.post(ctx, decisionsPath, rec)
}

// PersistTelemetry writes one telemetry event.
func (g *Client) PersistTelemetry(ctx context.Context, ev decision.TelemetryEvent) error {
	return g.post(ctx, telemetryPath, ev)
}

// CheckHealth probes the store's health endpoint and records the result for
// Healthy. Startup aborts when the probe fails; readiness reuses it.
func (g *Client) CheckHealth(ctx context.Context) error {
	err := g.probe(ctx)
	g.probeOK.Store(err == nil)
	return err
}

func (g *Client) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("gateway: build health request: %w", err)
	}
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: store unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway: store unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

// BreakerState exposes the breaker state for readiness reporting.
func (g *Client) BreakerState() State {
	return g.breaker.CurrentState()
}

// Healthy reports whether the most recent liveness probe succeeded. False
// until the first probe completes.
func (g *Client) Healthy() bool {
	return g.probeOK.Load()
}

// StartProber re-probes the store on the given interval so Healthy tracks
// current reachability rather than the startup snapshot. The returned
// function stops the prober and waits for it to exit.
func (g *Client) StartProber(interval time.Duration) func() {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := g.CheckHealth(context.Background()); err != nil {
					g.logger.Warn("store liveness probe failed", "error", err)
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

func (g *Client) post(ctx context.Context, path string, payload any) error {
	if !g.breaker.Allow() {
		return ErrCircuitOpen
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gateway: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	g.authorize(req)

	resp, err := g.client.Do(req)
	if err != nil {
		g.breaker.RecordFailure()
		return fmt.Errorf("gateway: POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		g.breaker.RecordFailure()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway: POST %s: status %d: %s", path, resp.StatusCode, string(snippet))
	}
	io.Copy(io.Discard, resp.Body)
	g.breaker.RecordSuccess()
	return nil
}

// authorize attaches both auth header forms the store accepts.
func (g *Client) authorize(req *http.Request) {
	if g.apiKey == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("X-API-Key", g.apiKey)
}
