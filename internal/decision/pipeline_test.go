package decision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memorySink struct {
	mu        sync.Mutex
	records   []Record
	events    []TelemetryEvent
	failUntil int
	calls     int
}

func (s *memorySink) PersistDecision(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failUntil {
		return errors.New("store down")
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *memorySink) PersistTelemetry(_ context.Context, ev TelemetryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memorySink) snapshot() ([]Record, []TelemetryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...), append([]TelemetryEvent(nil), s.events...)
}

func rec(id string) Record {
	return Record{AgentID: "benchmark", DecisionID: id, InputsHash: "00"}
}

func TestPipelineFlushesOnClose(t *testing.T) {
	sink := &memorySink{}
	p := NewPipeline(sink, WithFlushInterval(time.Hour))

	p.Enqueue(rec("a"))
	p.Enqueue(rec("b"))
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, _ := sink.snapshot()
	if len(records) != 2 {
		t.Fatalf("expected 2 persisted records, got %d", len(records))
	}
}

func TestPipelineDropsOldestWhenFull(t *testing.T) {
	sink := &memorySink{}
	p := NewPipeline(sink, WithBufferSize(2), WithFlushInterval(time.Hour))

	p.Enqueue(rec("a"))
	p.Enqueue(rec("b"))
	p.Enqueue(rec("c")) // displaces a

	if got := p.Dropped(); got != 1 {
		t.Fatalf("expected 1 drop, got %d", got)
	}
	_ = p.Close()

	records, events := sink.snapshot()
	ids := map[string]bool{}
	for _, r := range records {
		ids[r.DecisionID] = true
	}
	if ids["a"] || !ids["b"] || !ids["c"] {
		t.Fatalf("expected oldest record displaced, persisted: %v", ids)
	}

	var sawDrop bool
	for _, ev := range events {
		if ev.Kind == "persistence_drop" {
			sawDrop = true
		}
	}
	if !sawDrop {
		t.Fatal("expected a persistence_drop telemetry event")
	}
}

func TestPipelineRetriesTransientSinkFailure(t *testing.T) {
	sink := &memorySink{failUntil: 2}
	p := NewPipeline(sink, WithFlushInterval(time.Hour))

	p.Enqueue(rec("a"))
	_ = p.Close()

	records, _ := sink.snapshot()
	if len(records) != 1 {
		t.Fatalf("expected record persisted after retries, got %d", len(records))
	}
	if p.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", p.Dropped())
	}
}

func TestPipelineDropsRecordAfterExhaustedRetries(t *testing.T) {
	sink := &memorySink{failUntil: 100}
	p := NewPipeline(sink, WithFlushInterval(time.Hour))

	p.Enqueue(rec("a"))
	_ = p.Close()

	records, _ := sink.snapshot()
	if len(records) != 0 {
		t.Fatalf("expected no persisted records, got %d", len(records))
	}
	if p.Dropped() != 1 {
		t.Fatalf("expected the record counted as dropped, got %d", p.Dropped())
	}
}

func TestPipelineDropObserver(t *testing.T) {
	sink := &memorySink{}
	var observed int64
	var mu sync.Mutex
	p := NewPipeline(sink,
		WithBufferSize(1),
		WithFlushInterval(time.Hour),
		WithDropObserver(func(n int64) {
			mu.Lock()
			observed += n
			mu.Unlock()
		}))

	p.Enqueue(rec("a"))
	p.Enqueue(rec("b"))
	_ = p.Close()

	mu.Lock()
	defer mu.Unlock()
	if observed != 1 {
		t.Fatalf("expected observer to see 1 drop, got %d", observed)
	}
}

// deadlineSink records how much deadline budget each write attempt arrives
// with, failing the first failUntil attempts to force retries.
type deadlineSink struct {
	mu        sync.Mutex
	remaining []time.Duration
	failUntil int
}

func (s *deadlineSink) PersistDecision(ctx context.Context, _ Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := ctx.Deadline()
	if !ok {
		s.remaining = append(s.remaining, 0)
	} else {
		s.remaining = append(s.remaining, time.Until(d))
	}
	if len(s.remaining) <= s.failUntil {
		return errors.New("store down")
	}
	return nil
}

func (s *deadlineSink) PersistTelemetry(context.Context, TelemetryEvent) error { return nil }

func TestPipelinePersistAttemptsGetFreshDeadlines(t *testing.T) {
	sink := &deadlineSink{failUntil: 2}
	p := NewPipeline(sink, WithFlushInterval(time.Hour))

	p.Enqueue(rec("a"))
	_ = p.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.remaining) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(sink.remaining))
	}
	for i, d := range sink.remaining {
		// A shared budget would shrink with each backoff sleep; a fresh
		// per-attempt deadline stays near the full five seconds.
		if d <= 4500*time.Millisecond || d > 5*time.Second {
			t.Fatalf("attempt %d arrived with %v of budget", i, d)
		}
	}
}

func TestPipelineEnqueueNeverBlocks(t *testing.T) {
	sink := &memorySink{failUntil: 1 << 30}
	p := NewPipeline(sink, WithBufferSize(4), WithFlushInterval(time.Hour))
	defer p.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.Enqueue(rec("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked")
	}
}
