// Package transactions implements the v1 two-phase-commit command
// framework: ConsumeBudget and BatchConsumeBudget commands driven through a
// fixed begin/prepare/commit/(notify|abort)/end phase order, plus their
// versioned wire serialization.
package transactions

import (
	"context"

	"github.com/google/uuid"

	"github.com/privacysandbox/pbs/internal/executor"
	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// CommandID fixes the wire identity of a command variant; it is stable
// across versions of that variant.
type CommandID uint64

const (
	// ConsumeBudgetCommandID identifies the single-intent consume command.
	ConsumeBudgetCommandID CommandID = 1000
	// BatchConsumeBudgetCommandID identifies the batched consume command.
	BatchConsumeBudgetCommandID CommandID = 1001
)

// Version is a command's wire format version.
type Version struct {
	Major uint32
	Minor uint32
}

// Phase names one step of the two-phase-commit driver, in the fixed order
// the framework always applies: Begin, Prepare, Commit, then exactly one of
// Notify or Abort, then End.
type Phase int

const (
	PhaseBegin Phase = iota
	PhasePrepare
	PhaseCommit
	PhaseNotify
	PhaseAbort
	PhaseEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseBegin:
		return "begin"
	case PhasePrepare:
		return "prepare"
	case PhaseCommit:
		return "commit"
	case PhaseNotify:
		return "notify"
	case PhaseAbort:
		return "abort"
	case PhaseEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Command is the two-phase-commit contract every transaction variant
// implements. Phase handlers are invoked by Drive in the framework's fixed
// order and must not be called directly by callers.
type Command interface {
	CommandID() CommandID
	TransactionID() uuid.UUID
	Version() Version
	BudgetKeyName() string

	Begin(ctx context.Context) executor.Result
	Prepare(ctx context.Context) executor.Result
	Commit(ctx context.Context) executor.Result
	Notify(ctx context.Context) executor.Result
	Abort(ctx context.Context) executor.Result
	End(ctx context.Context) executor.Result
}

// Drive runs cmd through the framework's fixed phase order: begin, prepare,
// commit, then notify on success or abort on BudgetExhausted or any other
// failure, then end: prepare or commit returning InsufficientBudget drives
// abort, and any other failure also drives abort.
func Drive(ctx context.Context, cmd Command) executor.Result {
	if res := cmd.Begin(ctx); res.Status != executor.Success {
		return res
	}

	if res := cmd.Prepare(ctx); res.Status != executor.Success {
		return concludeAndPropagate(ctx, cmd, res)
	}

	if res := cmd.Commit(ctx); res.Status != executor.Success {
		return concludeAndPropagate(ctx, cmd, res)
	}

	notifyRes := cmd.Notify(ctx)
	endRes := cmd.End(ctx)
	if notifyRes.Status != executor.Success {
		return notifyRes
	}
	return endRes
}

func concludeAndPropagate(ctx context.Context, cmd Command, failure executor.Result) executor.Result {
	abortRes := cmd.Abort(ctx)
	cmd.End(ctx)
	if abortRes.Status != executor.Success {
		return abortRes
	}
	if failure.Code == pbserrors.BudgetExhausted {
		return executor.Fail(pbserrors.BudgetExhausted)
	}
	return failure
}
