package decision

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// TelemetryEvent is an operational signal shipped alongside decision
// records, such as buffer drops.
type TelemetryEvent struct {
	Kind      string         `json:"kind"`
	AgentID   string         `json:"agent_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Sink is the durable store the pipeline writes behind. Implemented by the
// gateway client.
type Sink interface {
	PersistDecision(ctx context.Context, rec Record) error
	PersistTelemetry(ctx context.Context, ev TelemetryEvent) error
}

const (
	defaultBufferSize    = 256
	defaultFlushInterval = 5 * time.Second
	defaultDrainTimeout  = 10 * time.Second
	defaultMaxAttempts   = 3

	// persistAttemptTimeout bounds each store write; every retry attempt
	// gets a fresh deadline.
	persistAttemptTimeout = 5 * time.Second
)

// Pipeline is the write-behind buffer between agents and the durable store.
// Enqueue never blocks the caller: when the buffer is full the oldest record
// is dropped and the drop is reported as telemetry on the next flush.
type Pipeline struct {
	sink   Sink
	logger *slog.Logger

	buf           chan Record
	dropped       atomic.Int64
	onDrop        func(n int64)
	flushInterval time.Duration
	drainTimeout  time.Duration
	maxAttempts   uint

	stop chan struct{}
	done chan struct{}
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the structured logger.
func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// WithBufferSize overrides the buffer capacity.
func WithBufferSize(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.buf = make(chan Record, n)
		}
	}
}

// WithFlushInterval overrides the flush cadence.
func WithFlushInterval(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// WithDrainTimeout overrides the shutdown drain deadline.
func WithDrainTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.drainTimeout = d
		}
	}
}

// WithDropObserver registers a callback invoked with the number of records
// discarded, for metric counters.
func WithDropObserver(fn func(n int64)) PipelineOption {
	return func(p *Pipeline) { p.onDrop = fn }
}

// NewPipeline builds a pipeline over the given sink and starts its flusher.
func NewPipeline(sink Sink, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		sink:          sink,
		logger:        slog.Default(),
		buf:           make(chan Record, defaultBufferSize),
		flushInterval: defaultFlushInterval,
		drainTimeout:  defaultDrainTimeout,
		maxAttempts:   defaultMaxAttempts,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	go p.run()
	return p
}

// Enqueue queues a record for persistence. When the buffer is full the
// oldest queued record is discarded to make room.
func (p *Pipeline) Enqueue(rec Record) {
	select {
	case p.buf <- rec:
		return
	default:
	}
	select {
	case old := <-p.buf:
		p.drop(1)
		p.logger.Warn("decision buffer full, dropped oldest record",
			"dropped_decision_id", old.DecisionID,
			"agent_id", old.AgentID)
	default:
	}
	select {
	case p.buf <- rec:
	default:
		p.drop(1)
	}
}

// drop counts a discard and notifies the observer. Telemetry re-adds after a
// failed flush go straight to the counter instead, they are not new drops.
func (p *Pipeline) drop(n int64) {
	p.dropped.Add(n)
	if p.onDrop != nil {
		p.onDrop(n)
	}
}

// Dropped returns the number of records discarded so far.
func (p *Pipeline) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops the flusher and drains the remaining buffer, bounded by the
// drain timeout.
func (p *Pipeline) Close() error {
	close(p.stop)
	<-p.done

	ctx, cancel := context.WithTimeout(context.Background(), p.drainTimeout)
	defer cancel()
	p.flush(ctx)
	return ctx.Err()
}

func (p *Pipeline) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			// The cycle budget must cover a full retry schedule per record;
			// the flush interval alone can be far shorter than that.
			ctx, cancel := context.WithTimeout(context.Background(), p.drainTimeout)
			p.flush(ctx)
			cancel()
		}
	}
}

// flush persists everything currently buffered, each record retried with
// exponential backoff. A record that exhausts its attempts is dropped and
// counted; it is not requeued, so one dead store cannot wedge the buffer.
func (p *Pipeline) flush(ctx context.Context) {
	if n := p.dropped.Swap(0); n > 0 {
		ev := TelemetryEvent{
			Kind:      "persistence_drop",
			Detail:    map[string]any{"count": n},
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		}
		if err := p.sink.PersistTelemetry(ctx, ev); err != nil {
			p.logger.Warn("telemetry persist failed", "error", err)
			p.dropped.Add(n)
		}
	}

	for {
		select {
		case rec := <-p.buf:
			if err := p.persist(ctx, rec); err != nil {
				p.drop(1)
				p.logger.Error("decision persist failed, record dropped",
					"decision_id", rec.DecisionID,
					"agent_id", rec.AgentID,
					"error", err)
			}
		default:
			return
		}
	}
}

func (p *Pipeline) persist(ctx context.Context, rec Record) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, persistAttemptTimeout)
		defer cancel()
		return struct{}{}, p.sink.PersistDecision(attemptCtx, rec)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(p.maxAttempts))
	return err
}
