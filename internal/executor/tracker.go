package executor

import (
	"sync"

	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

// TargetState is the lifecycle state of one provider target within a job.
// Transitions are monotonic: ready -> active -> quarantined -> drained, with
// quarantined optional.
type TargetState string

const (
	StateReady       TargetState = "ready"
	StateActive      TargetState = "active"
	StateQuarantined TargetState = "quarantined"
	StateDrained     TargetState = "drained"
)

// consecConnErrorsForQuarantine is the sustained-unreachability threshold.
const consecConnErrorsForQuarantine = 3

// targetStatus tracks one target. Guarded by its own mutex so workers on
// different targets never contend.
type targetStatus struct {
	mu sync.Mutex

	state           TargetState
	consecConnErrs  int
	quarantineKind  eval.ErrorKind // cause recorded on short-circuit outcomes
	outstandingWork int
}

// tracker owns the per-target state machines for one job.
type tracker struct {
	mu      sync.Mutex
	targets map[string]*targetStatus
}

func newTracker(targets []eval.ProviderTarget) *tracker {
	t := &tracker{targets: make(map[string]*targetStatus, len(targets))}
	for _, tgt := range targets {
		if _, ok := t.targets[tgt.Key()]; !ok {
			t.targets[tgt.Key()] = &targetStatus{state: StateReady}
		}
	}
	return t
}

func (t *tracker) get(key string) *targetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.targets[key]
}

// beginCall marks the target active and reports whether the call may
// proceed. A quarantined target rejects the call and returns the error kind
// that caused quarantine.
func (s *targetStatus) beginCall() (ok bool, kind eval.ErrorKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateQuarantined || s.state == StateDrained {
		return false, s.quarantineKind
	}
	if s.state == StateReady {
		s.state = StateActive
	}
	s.outstandingWork++
	return true, ""
}

// endCall records a finished call and its result. Authentication errors and
// sustained connection errors quarantine the target.
func (s *targetStatus) endCall(o eval.CallOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outstandingWork--

	if o.Success {
		s.consecConnErrs = 0
		return
	}
	switch o.ErrorKind {
	case eval.ErrAuthentication:
		s.quarantine(eval.ErrAuthentication)
	case eval.ErrConnection:
		s.consecConnErrs++
		if s.consecConnErrs >= consecConnErrorsForQuarantine {
			s.quarantine(eval.ErrConnection)
		}
	default:
		s.consecConnErrs = 0
	}
}

// quarantine transitions to quarantined. Caller must hold s.mu. The
// transition is monotonic: a drained target stays drained.
func (s *targetStatus) quarantine(kind eval.ErrorKind) {
	if s.state == StateDrained {
		return
	}
	s.state = StateQuarantined
	s.quarantineKind = kind
}

// isQuarantined reports whether the target is quarantined.
func (s *targetStatus) isQuarantined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateQuarantined
}

// drain marks the target terminal once all outstanding work has finished.
func (s *targetStatus) drain() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDrained
}

// drainAll marks every target drained at job end.
func (t *tracker) drainAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.targets {
		s.drain()
	}
}
