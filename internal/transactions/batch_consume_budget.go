package transactions

import (
	"context"

	"github.com/google/uuid"

	"github.com/privacysandbox/pbs/internal/budget"
	"github.com/privacysandbox/pbs/internal/executor"
	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// BatchIntent is one (time_bucket, token_count) pair within a
// BatchConsumeBudgetCommand. All intents in a batch share the enclosing
// command's budget key; batching is always per budget key.
type BatchIntent struct {
	TimeBucket uint64
	TokenCount uint8
}

// BatchConsumeBudgetCommand implements the two-phase-commit command that
// debits a batch of (time_bucket, token_count) pairs, all against the same
// budget key, as a single transaction command.
type BatchConsumeBudgetCommand struct {
	transactionID uuid.UUID
	budgetKeyName string
	intents       []BatchIntent

	helper     budget.ConsumptionHelper
	dispatcher *executor.Dispatcher

	failedInsufficientBudget []BatchIntent
	failedPositions          []int
}

// NewBatchConsumeBudgetCommand constructs a BatchConsumeBudgetCommand.
func NewBatchConsumeBudgetCommand(
	transactionID uuid.UUID,
	budgetKeyName string,
	intents []BatchIntent,
	helper budget.ConsumptionHelper,
) *BatchConsumeBudgetCommand {
	return &BatchConsumeBudgetCommand{
		transactionID: transactionID,
		budgetKeyName: budgetKeyName,
		intents:       intents,
		helper:        helper,
		dispatcher:    executor.NewDispatcher(),
	}
}

func (c *BatchConsumeBudgetCommand) CommandID() CommandID     { return BatchConsumeBudgetCommandID }
func (c *BatchConsumeBudgetCommand) TransactionID() uuid.UUID { return c.transactionID }
func (c *BatchConsumeBudgetCommand) Version() Version         { return Version{Major: 1, Minor: 0} }
func (c *BatchConsumeBudgetCommand) BudgetKeyName() string    { return c.budgetKeyName }
func (c *BatchConsumeBudgetCommand) Intents() []BatchIntent   { return c.intents }

// FailedInsufficientBudgetConsumptions reports the intents that failed
// their prepare or commit check due to insufficient budget, if any.
func (c *BatchConsumeBudgetCommand) FailedInsufficientBudgetConsumptions() []BatchIntent {
	return c.failedInsufficientBudget
}

// FailedIntentPositions reports the positions (within Intents()) of the
// intents that failed their prepare or commit check due to insufficient
// budget, letting a caller that tracks the batch's intents alongside a
// parallel slice of its own (e.g. original request indices) map a failure
// back without matching on value.
func (c *BatchConsumeBudgetCommand) FailedIntentPositions() []int {
	return c.failedPositions
}

func (c *BatchConsumeBudgetCommand) intentRequest() budget.ConsumeRequest {
	budgets := make([]budget.ConsumeIntent, len(c.intents))
	for i, intent := range c.intents {
		budgets[i] = budget.ConsumeIntent{
			BudgetKeyName: c.budgetKeyName,
			TimeBucket:    intent.TimeBucket,
			TokenCount:    intent.TokenCount,
		}
	}
	return budget.ConsumeRequest{Budgets: budgets}
}

func (c *BatchConsumeBudgetCommand) recordFailures(resp budget.ConsumeResponse) {
	c.failedInsufficientBudget = c.failedInsufficientBudget[:0]
	c.failedPositions = c.failedPositions[:0]
	for _, idx := range resp.ExhaustedIndices {
		if idx >= 0 && idx < len(c.intents) {
			c.failedInsufficientBudget = append(c.failedInsufficientBudget, c.intents[idx])
			c.failedPositions = append(c.failedPositions, idx)
		}
	}
}

func (c *BatchConsumeBudgetCommand) Begin(ctx context.Context) executor.Result {
	return executor.Ok(nil)
}

func (c *BatchConsumeBudgetCommand) Prepare(ctx context.Context) executor.Result {
	return c.dispatcher.Dispatch(ctx, func(ctx context.Context, attempt int) executor.Result {
		resp, err := c.helper.CheckBudgets(ctx, c.intentRequest())
		if err != nil {
			return executor.RetryResult(pbserrors.Internal)
		}
		if len(resp.ExhaustedIndices) > 0 {
			c.recordFailures(resp)
			return executor.Fail(pbserrors.BudgetExhausted)
		}
		return executor.Ok(nil)
	})
}

func (c *BatchConsumeBudgetCommand) Commit(ctx context.Context) executor.Result {
	return c.dispatcher.Dispatch(ctx, func(ctx context.Context, attempt int) executor.Result {
		resp, err := c.helper.ConsumeBudgets(ctx, c.intentRequest())
		if err != nil {
			return executor.RetryResult(pbserrors.Internal)
		}
		if len(resp.ExhaustedIndices) > 0 {
			c.recordFailures(resp)
			return executor.Fail(pbserrors.BudgetExhausted)
		}
		return executor.Ok(nil)
	})
}

func (c *BatchConsumeBudgetCommand) Notify(ctx context.Context) executor.Result {
	return executor.Ok(nil)
}

func (c *BatchConsumeBudgetCommand) Abort(ctx context.Context) executor.Result {
	return executor.Ok(nil)
}

func (c *BatchConsumeBudgetCommand) End(ctx context.Context) executor.Result {
	return executor.Ok(nil)
}
