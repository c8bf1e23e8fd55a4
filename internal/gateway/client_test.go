package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
)

func TestPersistDecisionSendsAuthHeaders(t *testing.T) {
	var gotAuth, gotKey, gotPath string
	var gotBody decision.Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key")
	rec := decision.Record{AgentID: "benchmark", DecisionID: "d-1", InputsHash: "ab"}
	if err := c.PersistDecision(context.Background(), rec); err != nil {
		t.Fatalf("PersistDecision: %v", err)
	}

	if gotPath != "/api/v1/decisions" {
		t.Fatalf("expected decisions path, got %s", gotPath)
	}
	if gotAuth != "Bearer secret-key" || gotKey != "secret-key" {
		t.Fatalf("auth headers wrong: %q / %q", gotAuth, gotKey)
	}
	if gotBody.DecisionID != "d-1" {
		t.Fatalf("expected record body, got %+v", gotBody)
	}
}

func TestPersistTelemetryPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	ev := decision.TelemetryEvent{Kind: "persistence_drop"}
	if err := c.PersistTelemetry(context.Background(), ev); err != nil {
		t.Fatalf("PersistTelemetry: %v", err)
	}
	if gotPath != "/api/v1/telemetry" {
		t.Fatalf("expected telemetry path, got %s", gotPath)
	}
}

func TestPersistDecisionErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	err := c.PersistDecision(context.Background(), decision.Record{DecisionID: "d"})
	if err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestCheckHealth(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("expected /health, got %s", r.URL.Path)
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	if err := c.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}

	status.Store(http.StatusServiceUnavailable)
	if err := c.CheckHealth(context.Background()); err == nil {
		t.Fatal("expected error on unhealthy store")
	}
}

func TestCheckHealthUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "k")
	if err := c.CheckHealth(context.Background()); err == nil {
		t.Fatal("expected error for unreachable store")
	}
}

func TestHealthyTracksProbeResult(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	if c.Healthy() {
		t.Fatal("healthy before any probe ran")
	}

	if err := c.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !c.Healthy() {
		t.Fatal("expected healthy after successful probe")
	}

	status.Store(http.StatusInternalServerError)
	if err := c.CheckHealth(context.Background()); err == nil {
		t.Fatal("expected probe failure")
	}
	if c.Healthy() {
		t.Fatal("expected unhealthy after failed probe")
	}
}

func TestStartProberKeepsHealthCurrent(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	stop := c.StartProber(5 * time.Millisecond)
	defer stop()

	waitFor := func(want bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if c.Healthy() == want {
				return
			}
			time.Sleep(time.Millisecond)
		}
		t.Fatalf("Healthy never became %v", want)
	}

	waitFor(false)
	status.Store(http.StatusOK)
	waitFor(true)
	status.Store(http.StatusBadGateway)
	waitFor(false)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", WithBreaker(NewBreaker(WithThreshold(3))))
	for i := 0; i < 3; i++ {
		if err := c.PersistDecision(context.Background(), decision.Record{}); err == nil {
			t.Fatalf("write %d should fail", i)
		}
	}
	if c.BreakerState() != Open {
		t.Fatalf("expected breaker open, got %s", c.BreakerState())
	}

	err := c.PersistDecision(context.Background(), decision.Record{})
	if err != ErrCircuitOpen {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", WithBreaker(NewBreaker(WithThreshold(1), WithCooldown(time.Nanosecond))))

	if err := c.PersistDecision(context.Background(), decision.Record{}); err == nil {
		t.Fatal("first write should fail and open the breaker")
	}

	fail.Store(false)
	time.Sleep(time.Millisecond)
	// The elapsed cooldown lets the next call through as a half-open probe.
	if err := c.PersistDecision(context.Background(), decision.Record{}); err != nil {
		t.Fatalf("probe write should succeed: %v", err)
	}
	if c.BreakerState() != Closed {
		t.Fatalf("expected breaker closed after probe success, got %s", c.BreakerState())
	}
}
