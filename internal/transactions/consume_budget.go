package transactions

import (
	"context"

	"github.com/google/uuid"

	"github.com/privacysandbox/pbs/internal/budget"
	"github.com/privacysandbox/pbs/internal/executor"
	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// ConsumeBudgetRetryDelayMillis and ConsumeBudgetRetryAttempts fix the
// exponential-backoff retry strategy ConsumeBudgetCommand's phases run
// under: 31ms doubling per attempt, 12 attempts maximum.
const (
	ConsumeBudgetRetryDelayMillis = 31
	ConsumeBudgetRetryAttempts    = 12
)

// ConsumeBudgetCommand implements the single-intent two-phase-commit
// command that debits one (time_bucket, token_count) pair from a budget
// key. RequestIndex is nil when the command was constructed or
// deserialized from a version that carries no positional index.
type ConsumeBudgetCommand struct {
	transactionID uuid.UUID
	budgetKeyName string
	timeBucket    uint64
	tokenCount    uint8
	requestIndex  *int

	helper     budget.ConsumptionHelper
	dispatcher *executor.Dispatcher

	failedInsufficientBudget bool
}

// NewConsumeBudgetCommand constructs a ConsumeBudgetCommand. requestIndex
// may be nil.
func NewConsumeBudgetCommand(
	transactionID uuid.UUID,
	budgetKeyName string,
	timeBucket uint64,
	tokenCount uint8,
	requestIndex *int,
	helper budget.ConsumptionHelper,
) *ConsumeBudgetCommand {
	return &ConsumeBudgetCommand{
		transactionID: transactionID,
		budgetKeyName: budgetKeyName,
		timeBucket:    timeBucket,
		tokenCount:    tokenCount,
		requestIndex:  requestIndex,
		helper:        helper,
		dispatcher:    executor.NewDispatcher(),
	}
}

func (c *ConsumeBudgetCommand) CommandID() CommandID     { return ConsumeBudgetCommandID }
func (c *ConsumeBudgetCommand) TransactionID() uuid.UUID { return c.transactionID }
func (c *ConsumeBudgetCommand) Version() Version         { return Version{Major: 1, Minor: 0} }
func (c *ConsumeBudgetCommand) BudgetKeyName() string    { return c.budgetKeyName }
func (c *ConsumeBudgetCommand) TimeBucket() uint64       { return c.timeBucket }
func (c *ConsumeBudgetCommand) TokenCount() uint8        { return c.tokenCount }
func (c *ConsumeBudgetCommand) RequestIndex() *int       { return c.requestIndex }

// FailedInsufficientBudget reports the failing intent iff this command's
// prepare or commit phase failed due to insufficient budget.
func (c *ConsumeBudgetCommand) FailedInsufficientBudget() bool {
	return c.failedInsufficientBudget
}

func (c *ConsumeBudgetCommand) intentRequest() budget.ConsumeRequest {
	return budget.ConsumeRequest{Budgets: []budget.ConsumeIntent{{
		BudgetKeyName: c.budgetKeyName,
		TimeBucket:    c.timeBucket,
		TokenCount:    c.tokenCount,
	}}}
}

func (c *ConsumeBudgetCommand) Begin(ctx context.Context) executor.Result {
	return executor.Ok(nil)
}

func (c *ConsumeBudgetCommand) Prepare(ctx context.Context) executor.Result {
	return c.dispatcher.Dispatch(ctx, func(ctx context.Context, attempt int) executor.Result {
		resp, err := c.helper.CheckBudgets(ctx, c.intentRequest())
		if err != nil {
			return executor.RetryResult(pbserrors.Internal)
		}
		if len(resp.ExhaustedIndices) > 0 {
			c.failedInsufficientBudget = true
			return executor.Fail(pbserrors.BudgetExhausted)
		}
		return executor.Ok(nil)
	})
}

func (c *ConsumeBudgetCommand) Commit(ctx context.Context) executor.Result {
	return c.dispatcher.Dispatch(ctx, func(ctx context.Context, attempt int) executor.Result {
		resp, err := c.helper.ConsumeBudgets(ctx, c.intentRequest())
		if err != nil {
			return executor.RetryResult(pbserrors.Internal)
		}
		if len(resp.ExhaustedIndices) > 0 {
			c.failedInsufficientBudget = true
			return executor.Fail(pbserrors.BudgetExhausted)
		}
		return executor.Ok(nil)
	})
}

func (c *ConsumeBudgetCommand) Notify(ctx context.Context) executor.Result {
	return executor.Ok(nil)
}

func (c *ConsumeBudgetCommand) Abort(ctx context.Context) executor.Result {
	return executor.Ok(nil)
}

func (c *ConsumeBudgetCommand) End(ctx context.Context) executor.Result {
	return executor.Ok(nil)
}
