// Package executor implements the bounded concurrent dispatch
// infrastructure of spec section 4.4-4.5: a single-thread async executor
// with two priority queues, its multi-thread composition, and the
// exponential-backoff operation dispatcher built on top of it.
//
// Per the design notes in spec section 9, the C++ ExecutionResult<{status,
// code}> union is replaced here by the Result sum type below so the
// dispatcher's retry classification collapses to a switch over Status.
package executor

import "github.com/privacysandbox/pbs/pkg/pbserrors"

// Status classifies the outcome of one unit of asynchronous work.
type Status int

const (
	// Success indicates the work completed and Value holds its result.
	Success Status = iota
	// Retry indicates the work should be retried by the operation
	// dispatcher; Code explains why.
	Retry
	// Failure is terminal; Code names the failure kind.
	Failure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case Retry:
		return "Retry"
	case Failure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// Result is the outcome of one asynchronous operation: a Go sum type in
// place of a C++ ExecutionResult<{status, code}> union.
type Result struct {
	Status Status
	Code   pbserrors.Kind
	Value  any
}

// Ok constructs a successful Result carrying value.
func Ok(value any) Result {
	return Result{Status: Success, Value: value}
}

// RetryResult constructs a Result asking the dispatcher to retry.
func RetryResult(code pbserrors.Kind) Result {
	return Result{Status: Retry, Code: code}
}

// Fail constructs a terminal failed Result.
func Fail(code pbserrors.Kind) Result {
	return Result{Status: Failure, Code: code}
}
