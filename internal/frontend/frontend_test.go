package frontend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/privacysandbox/pbs/internal/authz"
	"github.com/privacysandbox/pbs/internal/budget"
	"github.com/privacysandbox/pbs/internal/executor"
	"github.com/privacysandbox/pbs/internal/metrics"
)

func newTestFrontEnd(t *testing.T, helper budget.ConsumptionHelper) *FrontEnd {
	t.Helper()
	ex := executor.New(1024, false, nil)
	if err := ex.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := ex.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	t.Cleanup(ex.Stop)

	router := metrics.NewRouter(false)
	fe := New(Config{RemoteCoordinatorClaimedIdentity: "coordinator.example"}, ex, helper, authz.NewPassThrough(), router, nil)
	return fe
}

func baseHeaders(req *http.Request, requireTimestamp bool) {
	req.Header.Set(headerTransactionID, uuid.New().String())
	req.Header.Set(headerTransactionSecret, "shh")
	if requireTimestamp {
		req.Header.Set(headerLastExecutionTimestamp, "1000")
	}
	req.Header.Set(headerTransactionOrigin, "operator.example")
}

func TestPrepareSimpleAccept(t *testing.T) {
	helper := budget.NewInMemoryHelper(0)
	fe := newTestFrontEnd(t, helper)

	body := `{"v":"1.0","t":[{"key":"foo","token":5,"reporting_time":"2021-01-01T00:00:00Z"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/transactions:prepare", strings.NewReader(body))
	baseHeaders(req, true)
	w := httptest.NewRecorder()

	fe.handlePrepare(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get(headerLastExecutionTimestamp) != "1234" {
		t.Fatalf("expected legacy timestamp header, got %q", w.Header().Get(headerLastExecutionTimestamp))
	}
}

func TestPreparePartialExhaustion(t *testing.T) {
	helper := budget.NewInMemoryHelper(10)
	fe := newTestFrontEnd(t, helper)

	body := `{"v":"1.0","t":[` +
		`{"key":"a","token":3,"reporting_time":"2021-01-01T00:00:00Z"},` +
		`{"key":"b","token":11,"reporting_time":"2021-01-01T00:00:00Z"},` +
		`{"key":"c","token":4,"reporting_time":"2021-01-01T00:00:00Z"}` +
		`]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/transactions:prepare", strings.NewReader(body))
	baseHeaders(req, true)
	w := httptest.NewRecorder()

	fe.handlePrepare(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"f":[1]`) {
		t.Fatalf("expected failed index 1 in body, got %s", w.Body.String())
	}
}

// TestPrepareSameKeyIntentsDriveBatchCommand exercises the case where two
// intents in one request share a budget key, which handlePrepare routes
// through a single BatchConsumeBudgetCommand instead of two
// ConsumeBudgetCommands.
func TestPrepareSameKeyIntentsDriveBatchCommand(t *testing.T) {
	helper := budget.NewInMemoryHelper(5)
	fe := newTestFrontEnd(t, helper)

	body := `{"v":"1.0","t":[` +
		`{"key":"shared","token":3,"reporting_time":"2021-01-01T00:00:00Z"},` +
		`{"key":"shared","token":10,"reporting_time":"2021-01-02T00:00:00Z"}` +
		`]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/transactions:prepare", strings.NewReader(body))
	baseHeaders(req, true)
	w := httptest.NewRecorder()

	fe.handlePrepare(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"f":[1]`) {
		t.Fatalf("expected failed index 1 in body, got %s", w.Body.String())
	}
}

func TestPrepareMissingSecretHeaderRejected(t *testing.T) {
	helper := budget.NewInMemoryHelper(0)
	fe := newTestFrontEnd(t, helper)

	body := `{"v":"1.0","t":[{"key":"foo","token":5,"reporting_time":"2021-01-01T00:00:00Z"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/transactions:prepare", strings.NewReader(body))
	req.Header.Set(headerTransactionID, uuid.New().String())
	req.Header.Set(headerLastExecutionTimestamp, "1000")
	w := httptest.NewRecorder()

	fe.handlePrepare(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestBeginCommitNotifyAbortEndAreNoOps(t *testing.T) {
	helper := budget.NewInMemoryHelper(0)
	fe := newTestFrontEnd(t, helper)

	for _, h := range []func(http.ResponseWriter, *http.Request){fe.handleBegin, fe.handleNoOpPhase} {
		req := httptest.NewRequest(http.MethodPost, "/v1/transactions:commit", nil)
		baseHeaders(req, true)
		w := httptest.NewRecorder()
		h(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if w.Header().Get(headerLastExecutionTimestamp) != "1234" {
			t.Fatalf("expected legacy timestamp header")
		}
	}
}

func TestStatusAlwaysNotFound(t *testing.T) {
	fe := newTestFrontEnd(t, budget.NewInMemoryHelper(0))
	req := httptest.NewRequest(http.MethodGet, "/v1/transactions:status", nil)
	w := httptest.NewRecorder()
	fe.handleStatus(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
