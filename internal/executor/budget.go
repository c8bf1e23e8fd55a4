package executor

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LLM-Dev-Ops/evalbench/internal/eval"
)

// budget enforces the job-wide ceilings. Counters are atomic so the
// dispatcher can gate work without a lock while workers publish results.
type budget struct {
	startedAt time.Time

	maxDurationMs *int64
	maxCostUSD    *float64
	maxRequests   *int

	requests atomic.Int64
	costBits atomic.Uint64 // float64 bits of accumulated USD
}

func newBudget(cfg eval.ExecutionConfig, startedAt time.Time) *budget {
	return &budget{
		startedAt:     startedAt,
		maxDurationMs: cfg.MaxDurationMs,
		maxCostUSD:    cfg.MaxTotalCostUSD,
		maxRequests:   cfg.MaxTotalRequests,
	}
}

// admit reserves one request slot if every ceiling still holds. The returned
// constraint names the first exhausted ceiling, or "" when admitted.
func (b *budget) admit(now time.Time) (bool, eval.Constraint) {
	if b.maxDurationMs != nil && now.Sub(b.startedAt).Milliseconds() >= *b.maxDurationMs {
		return false, eval.ConstraintMaxDurationExceeded
	}
	if b.maxCostUSD != nil && b.cost() >= *b.maxCostUSD {
		return false, eval.ConstraintMaxCostExceeded
	}
	for {
		n := b.requests.Load()
		if b.maxRequests != nil && int(n) >= *b.maxRequests {
			return false, eval.ConstraintMaxSamplesExceeded
		}
		if b.requests.CompareAndSwap(n, n+1) {
			return true, ""
		}
	}
}

// addCost accumulates spend from a finished call.
func (b *budget) addCost(usd float64) {
	if usd <= 0 {
		return
	}
	for {
		old := b.costBits.Load()
		next := math.Float64bits(math.Float64frombits(old) + usd)
		if b.costBits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (b *budget) cost() float64 {
	return math.Float64frombits(b.costBits.Load())
}

// constraintSet collects the constraints observed during a job, deduplicated.
type constraintSet struct {
	mu   sync.Mutex
	seen map[eval.Constraint]struct{}
}

func newConstraintSet() *constraintSet {
	return &constraintSet{seen: make(map[eval.Constraint]struct{})}
}

func (c *constraintSet) add(k eval.Constraint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[k] = struct{}{}
}

func (c *constraintSet) has(k eval.Constraint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[k]
	return ok
}

// list returns the constraints in lexicographic order so reports are
// deterministic.
func (c *constraintSet) list() []eval.Constraint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.seen) == 0 {
		return nil
	}
	out := make([]eval.Constraint, 0, len(c.seen))
	for k := range c.seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
