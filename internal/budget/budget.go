// Package budget implements the budget-key model and the
// BudgetConsumptionHelper contract: atomic, all-or-nothing-per-key
// debiting of a time-bucketed privacy budget.
package budget

import "fmt"

// Key identifies a rate-limited resource: a caller-supplied name scoped to
// the reporting origin that owns it.
type Key struct {
	Name            string
	ReportingOrigin string
}

// CanonicalName composes the wire-level budget key name used to address
// storage and metric labels.
func (k Key) CanonicalName() string {
	return k.ReportingOrigin + "/" + k.Name
}

// ConsumeIntent is one request to debit tokens from a budget key at a
// specific time bucket. TimeBucket is nanoseconds since epoch; equal values
// denote the same bucket.
type ConsumeIntent struct {
	BudgetKeyName string
	TimeBucket    uint64
	TokenCount    uint8
}

func (i ConsumeIntent) String() string {
	return fmt.Sprintf("%s@%d:%d", i.BudgetKeyName, i.TimeBucket, i.TokenCount)
}

// ConsumptionInfo is the per-intent outcome of a consume attempt.
// RequestIndex is nil when the intent carried no positional index (v1.0
// ConsumeBudget commands), distinguishing "absent" from "index zero".
type ConsumptionInfo struct {
	Consumed     bool
	TimeBucket   uint64
	TokenCount   uint8
	RequestIndex *int
}

// ConsumeRequest groups intents submitted as a single atomic-per-key unit.
// Order is caller-significant: ExhaustedIndices in the response refer to
// positions in Budgets.
type ConsumeRequest struct {
	Budgets []ConsumeIntent
}

// ConsumeResponse reports, per request, the zero-based positions of intents
// that failed due to insufficient budget. An intent not listed succeeded.
type ConsumeResponse struct {
	ExhaustedIndices []int
}
