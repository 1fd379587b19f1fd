package frontend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/privacysandbox/pbs/internal/budget"
	"github.com/privacysandbox/pbs/internal/executor"
	"github.com/privacysandbox/pbs/internal/httpserver"
	"github.com/privacysandbox/pbs/internal/transactions"
	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// exhaustedResponse is the 409 body shape of spec section 6: "Error body on
// budget exhaustion".
type exhaustedResponse struct {
	Failed  []int  `json:"f"`
	Version string `json:"v"`
}

// handlePrepare is the authoritative consume operation, spec section 4.8's
// "Prepare handler contract" steps 1-6.
func (f *FrontEnd) handlePrepare(w http.ResponseWriter, r *http.Request) {
	rc, err := parseHeaders(r, true)
	if err != nil {
		f.rejectHeaderError(w, "prepare", err)
		return
	}

	label := f.reportingOriginLabel(rc.claimedIdentity)
	f.totalRequests.Inc("prepare", label)

	authorizedOrigin, err := f.authz.Authorize(r.Context(), rc.claimedIdentity)
	if err != nil {
		f.clientErrors.Inc("prepare", label)
		http.Error(w, "authorization failed", http.StatusBadRequest)
		return
	}
	defaultOrigin := authorizedOrigin
	if rc.transactionOrigin != "" {
		defaultOrigin = rc.transactionOrigin
	}

	body, err := httpserver.ReadBody(r)
	if err != nil {
		f.clientErrors.Inc("prepare", label)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	raw, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		f.clientErrors.Inc("prepare", label)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	intents, err := parseBody(raw, defaultOrigin)
	if err != nil {
		f.clientErrors.Inc("prepare", label)
		kind, _ := pbserrors.KindOf(err)
		http.Error(w, err.Error(), kind.Status())
		return
	}

	groups := groupIntentsByBudgetKey(intents)

	type outcome struct {
		exhausted []int
		err       error
	}
	done := make(chan outcome, 1)
	scheduleErr := f.dispatch.Schedule(func() {
		exhausted, err := driveIntentGroups(r.Context(), rc.transactionID, groups, f.helper)
		done <- outcome{exhausted: exhausted, err: err}
	}, executor.High)
	if scheduleErr != nil {
		f.serverErrors.Inc("prepare", label)
		http.Error(w, "server busy", http.StatusServiceUnavailable)
		return
	}

	out := <-done
	if out.err != nil {
		f.log.WithError(out.err).Error("consume budgets failed")
		f.serverErrors.Inc("prepare", label)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if len(out.exhausted) > 0 {
		f.clientErrors.Inc("prepare", label)
		w.Header().Set("Content-Type", "application/json")
		writeBackCompatHeader(w)
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(exhaustedResponse{Failed: out.exhausted, Version: "1.0"})
		return
	}

	writeBackCompatHeader(w)
	w.WriteHeader(http.StatusOK)
}

// intentGroup is one budget key's intents within a single prepare request,
// grouped so that a key carrying more than one intent drives through
// BatchConsumeBudgetCommand rather than one ConsumeBudgetCommand per intent.
type intentGroup struct {
	budgetKeyName string
	intents       []parsedIntent
}

// groupIntentsByBudgetKey partitions a request's validated intents by
// canonical budget key, preserving first-seen order so failure indices stay
// stable across runs.
func groupIntentsByBudgetKey(intents []parsedIntent) []intentGroup {
	order := make([]string, 0, len(intents))
	byKey := make(map[string][]parsedIntent, len(intents))
	for _, in := range intents {
		keyName := budget.Key{Name: in.key, ReportingOrigin: in.reportingOrigin}.CanonicalName()
		if _, ok := byKey[keyName]; !ok {
			order = append(order, keyName)
		}
		byKey[keyName] = append(byKey[keyName], in)
	}
	groups := make([]intentGroup, len(order))
	for i, keyName := range order {
		groups[i] = intentGroup{budgetKeyName: keyName, intents: byKey[keyName]}
	}
	return groups
}

// driveIntentGroups runs every group through the v1 two-phase-commit
// command framework (transactions.Drive), one ConsumeBudgetCommand per
// lone intent and one BatchConsumeBudgetCommand per multi-intent key, and
// collects the original request indices of every intent that failed on
// insufficient budget. A non-exhaustion failure from any group aborts the
// whole request with that failure's error.
func driveIntentGroups(ctx context.Context, transactionID uuid.UUID, groups []intentGroup, helper budget.ConsumptionHelper) ([]int, error) {
	var exhausted []int
	for _, g := range groups {
		if len(g.intents) == 1 {
			in := g.intents[0]
			requestIndex := in.requestIndex
			cmd := transactions.NewConsumeBudgetCommand(transactionID, g.budgetKeyName, in.timeBucketNanos, in.token, &requestIndex, helper)
			res := transactions.Drive(ctx, cmd)
			if res.Status != executor.Failure {
				continue
			}
			if res.Code != pbserrors.BudgetExhausted {
				return nil, pbserrors.New(res.Code, "consume budget failed for transaction %s", transactionID)
			}
			exhausted = append(exhausted, requestIndex)
			continue
		}

		batchIntents := make([]transactions.BatchIntent, len(g.intents))
		origIndices := make([]int, len(g.intents))
		for i, in := range g.intents {
			batchIntents[i] = transactions.BatchIntent{TimeBucket: in.timeBucketNanos, TokenCount: in.token}
			origIndices[i] = in.requestIndex
		}
		cmd := transactions.NewBatchConsumeBudgetCommand(transactionID, g.budgetKeyName, batchIntents, helper)
		res := transactions.Drive(ctx, cmd)
		if res.Status != executor.Failure {
			continue
		}
		if res.Code != pbserrors.BudgetExhausted {
			return nil, pbserrors.New(res.Code, "consume budget failed for transaction %s", transactionID)
		}
		for _, pos := range cmd.FailedIntentPositions() {
			exhausted = append(exhausted, origIndices[pos])
		}
	}
	return exhausted, nil
}
