package budget

import (
	"context"
	"sort"
	"sync"

	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// ConsumptionHelper is the external-interface operation PBS dispatches
// budget debits through. A single call must, atomically with respect to
// concurrent calls touching the same (budget_key_name, time_bucket),
// either debit every intent in the request or leave every bucket it
// touches unchanged, never partially. Errors distinct from exhaustion
// surface as a returned error.
type ConsumptionHelper interface {
	ConsumeBudgets(ctx context.Context, req ConsumeRequest) (ConsumeResponse, error)
	// CheckBudgets reports which intents would be rejected by ConsumeBudgets
	// without mutating any bucket. The two-phase-commit command framework
	// uses it for the prepare phase, reserving the actual debit for commit.
	CheckBudgets(ctx context.Context, req ConsumeRequest) (ConsumeResponse, error)
}

type bucketKey struct {
	name   string
	bucket uint64
}

// InMemoryHelper is a default ConsumptionHelper backed by a per-bucket
// token counter in memory. Each (budget_key_name, time_bucket) pair starts
// with capacity tokens and drains monotonically; it never refills. Access
// to a given bucket's counter is serialized by a dedicated mutex so
// unrelated buckets proceed in parallel, mirroring the at-most-one
// in-flight-debit-per-bucket concurrency contract.
type InMemoryHelper struct {
	capacity uint64

	mu       sync.RWMutex
	counters map[bucketKey]*bucketState
}

type bucketState struct {
	mu       sync.Mutex
	consumed uint64
}

// DefaultBucketCapacity is the number of tokens available to a fresh
// (budget_key_name, time_bucket) pair when no override is configured.
const DefaultBucketCapacity = 255

// NewInMemoryHelper constructs an InMemoryHelper with the given per-bucket
// capacity. A capacity of zero uses DefaultBucketCapacity.
func NewInMemoryHelper(capacity uint64) *InMemoryHelper {
	if capacity == 0 {
		capacity = DefaultBucketCapacity
	}
	return &InMemoryHelper{
		capacity: capacity,
		counters: make(map[bucketKey]*bucketState),
	}
}

func (h *InMemoryHelper) stateFor(key bucketKey) *bucketState {
	h.mu.RLock()
	s, ok := h.counters[key]
	h.mu.RUnlock()
	if ok {
		return s
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok = h.counters[key]; ok {
		return s
	}
	s = &bucketState{}
	h.counters[key] = s
	return s
}

// ConsumeBudgets evaluates every intent in req against its bucket's
// remaining capacity and either debits all of them or none: any intent
// that would drive its bucket below zero causes the whole request to be
// rejected without mutating any bucket, and ExhaustedIndices then lists
// every intent that would have failed the check, not merely the first.
// Intents within req that target the same bucket are accumulated together
// before the check so repeated debits against one bucket in a single call
// cannot individually pass while collectively overdrawing it. Locks on the
// distinct buckets touched by req are held only long enough to commit,
// after the check has already decided the outcome, so unrelated buckets
// never block on this request's evaluation.
func (h *InMemoryHelper) ConsumeBudgets(ctx context.Context, req ConsumeRequest) (ConsumeResponse, error) {
	select {
	case <-ctx.Done():
		return ConsumeResponse{}, pbserrors.New(pbserrors.Internal, "budget consumption cancelled: %v", ctx.Err())
	default:
	}

	states := make(map[bucketKey]*bucketState)
	requested := make(map[bucketKey]uint64)
	for _, intent := range req.Budgets {
		key := bucketKey{name: intent.BudgetKeyName, bucket: intent.TimeBucket}
		if _, ok := states[key]; !ok {
			states[key] = h.stateFor(key)
		}
		requested[key] += uint64(intent.TokenCount)
	}

	// Lock every touched bucket in a stable order to avoid deadlocking
	// against a concurrent request that touches an overlapping key set.
	ordered := make([]bucketKey, 0, len(states))
	for key := range states {
		ordered = append(ordered, key)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].name != ordered[j].name {
			return ordered[i].name < ordered[j].name
		}
		return ordered[i].bucket < ordered[j].bucket
	})
	for _, key := range ordered {
		states[key].mu.Lock()
		defer states[key].mu.Unlock()
	}

	overdrawn := make(map[bucketKey]bool)
	for key, want := range requested {
		if states[key].consumed+want > h.capacity {
			overdrawn[key] = true
		}
	}

	if len(overdrawn) == 0 {
		for key, want := range requested {
			states[key].consumed += want
		}
		return ConsumeResponse{}, nil
	}

	var exhausted []int
	for idx, intent := range req.Budgets {
		key := bucketKey{name: intent.BudgetKeyName, bucket: intent.TimeBucket}
		if overdrawn[key] {
			exhausted = append(exhausted, idx)
		}
	}
	sort.Ints(exhausted)
	return ConsumeResponse{ExhaustedIndices: exhausted}, nil
}

// CheckBudgets evaluates req exactly as ConsumeBudgets does but never
// commits a debit, so the prepare phase of a two-phase-commit command can
// validate sufficiency before the commit phase performs the real write.
func (h *InMemoryHelper) CheckBudgets(ctx context.Context, req ConsumeRequest) (ConsumeResponse, error) {
	select {
	case <-ctx.Done():
		return ConsumeResponse{}, pbserrors.New(pbserrors.Internal, "budget check cancelled: %v", ctx.Err())
	default:
	}

	requested := make(map[bucketKey]uint64)
	for _, intent := range req.Budgets {
		key := bucketKey{name: intent.BudgetKeyName, bucket: intent.TimeBucket}
		requested[key] += uint64(intent.TokenCount)
	}

	overdrawn := make(map[bucketKey]bool)
	for key, want := range requested {
		state := h.stateFor(key)
		state.mu.Lock()
		if state.consumed+want > h.capacity {
			overdrawn[key] = true
		}
		state.mu.Unlock()
	}

	var exhausted []int
	for idx, intent := range req.Budgets {
		key := bucketKey{name: intent.BudgetKeyName, bucket: intent.TimeBucket}
		if overdrawn[key] {
			exhausted = append(exhausted, idx)
		}
	}
	sort.Ints(exhausted)
	return ConsumeResponse{ExhaustedIndices: exhausted}, nil
}

// Remaining reports the unconsumed token count for a bucket, for tests and
// diagnostics. A bucket that has never been touched reports full capacity.
func (h *InMemoryHelper) Remaining(budgetKeyName string, timeBucket uint64) uint64 {
	key := bucketKey{name: budgetKeyName, bucket: timeBucket}
	h.mu.RLock()
	s, ok := h.counters[key]
	h.mu.RUnlock()
	if !ok {
		return h.capacity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return h.capacity - s.consumed
}
