// Package agents holds the thirteen evaluation strategies and the registry
// and dispatch service that expose them. Each agent is a thin composition of
// the executor, statistics, and similarity primitives: it validates its
// input, runs or scores, and returns a Result the service turns into a
// decision record.
package agents

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/LLM-Dev-Ops/evalbench/internal/decision"
	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

// Agent is one evaluation strategy. Execute parses and validates its raw
// JSON input; validation failures return *eval.ValidationError, which the
// HTTP surface maps to 400.
type Agent interface {
	ID() string
	Version() string
	DecisionType() string
	Execute(ctx context.Context, input json.RawMessage) (*Result, error)
}

// Result is what an agent hands back to the dispatch service. InputsFull is
// hashed into the decision record and then discarded; raw prompts never
// appear in InputsSummary or Outputs metadata.
type Result struct {
	Outputs       map[string]any
	InputsFull    any
	InputsSummary map[string]any

	Confidence float64
	Factors    []decision.ConfidenceFactor

	Constraints []string
}

// constraintStrings converts executor constraints for the decision record.
func constraintStrings(cs []eval.Constraint) []string {
	if len(cs) == 0 {
		return nil
	}
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

// Registry is the immutable-after-construction set of registered agents.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry builds a registry over the given agents.
func NewRegistry(list ...Agent) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(list))}
	for _, a := range list {
		r.agents[a.ID()] = a
	}
	return r
}

// Register adds an agent, replacing any previous one with the same id.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID()] = a
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	return a, ok
}

// Info describes a registered agent for the listing endpoint.
type Info struct {
	ID           string `json:"id"`
	Version      string `json:"version"`
	DecisionType string `json:"decision_type"`
}

// List returns agent descriptors sorted by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, Info{ID: a.ID(), Version: a.Version(), DecisionType: a.DecisionType()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
