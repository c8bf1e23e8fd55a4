package agents

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
)

// ErrUnknownAgent is returned by Dispatch for an unregistered agent id.
var ErrUnknownAgent = errors.New("agents: unknown agent")

// telemetryTimeout bounds the best-effort decision_emitted write.
const telemetryTimeout = 5 * time.Second

// Metrics receives dispatch telemetry. Satisfied by metrics.Registry.
type Metrics interface {
	ObserveDecision(agentID string, confidence float64, durationSeconds float64)
}

// Service runs agents and turns their results into decision records: hash
// the inputs, stamp confidence and constraints, emit decision_emitted
// telemetry, and enqueue the record on the write-behind pipeline. The
// caller's response never waits on persistence.
type Service struct {
	registry *Registry
	pipeline *decision.Pipeline
	sink     decision.Sink
	logger   *slog.Logger
	metrics  Metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the structured logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithServiceMetrics sets the telemetry sink.
func WithServiceMetrics(m Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the registry to the decision pipeline and store.
func NewService(reg *Registry, pipe *decision.Pipeline, sink decision.Sink, opts ...ServiceOption) *Service {
	s := &Service{
		registry: reg,
		pipeline: pipe,
		sink:     sink,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the underlying registry for the listing endpoint.
func (s *Service) Registry() *Registry { return s.registry }

// Response is the dispatch result returned to the HTTP surface.
type Response struct {
	AgentID      string
	AgentVersion string
	DecisionID   string
	Data         map[string]any
}

// Dispatch runs one agent and emits its decision record. Validation errors
// and execution errors pass through to the caller; persistence never blocks
// the response.
func (s *Service) Dispatch(ctx context.Context, agentID string, input json.RawMessage) (*Response, error) {
	agent, ok := s.registry.Get(agentID)
	if !ok {
		return nil, ErrUnknownAgent
	}

	started := time.Now()
	builder := decision.NewBuilder(agent.ID(), agent.Version(), agent.DecisionType())

	result, err := agent.Execute(ctx, input)
	if err != nil {
		return nil, err
	}

	rec, err := builder.
		Inputs(result.InputsFull, result.InputsSummary).
		Outputs(result.Outputs).
		Confidence(result.Confidence, result.Factors).
		Constraints(result.Constraints).
		Build(ctx, uuid.NewString())
	if err != nil {
		return nil, err
	}

	duration := time.Since(started)
	s.logger.Info("decision emitted",
		"agent_id", rec.AgentID,
		"decision_id", rec.DecisionID,
		"decision_type", rec.DecisionType,
		"confidence", rec.Confidence,
		"duration_ms", duration.Milliseconds())
	if s.metrics != nil {
		s.metrics.ObserveDecision(rec.AgentID, rec.Confidence, duration.Seconds())
	}

	go s.emitTelemetry(rec)
	s.pipeline.Enqueue(rec)

	return &Response{
		AgentID:      rec.AgentID,
		AgentVersion: rec.AgentVersion,
		DecisionID:   rec.DecisionID,
		Data:         result.Outputs,
	}, nil
}

// emitTelemetry sends the decision_emitted event. Best effort: a failure is
// logged and the decision record itself is unaffected.
func (s *Service) emitTelemetry(rec decision.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), telemetryTimeout)
	defer cancel()
	ev := decision.TelemetryEvent{
		Kind:    "decision_emitted",
		AgentID: rec.AgentID,
		Detail: map[string]any{
			"decision_id": rec.DecisionID,
			"confidence":  rec.Confidence,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.sink.PersistTelemetry(ctx, ev); err != nil {
		s.logger.Debug("telemetry emit failed", "kind", ev.Kind, "error", err)
	}
}
