// Package frontend implements the v2 "relaxed consistency" request path of
// spec section 4.8: the seven budget-lifecycle endpoints, header
// extraction, request parsing, asynchronous budget dispatch, response
// shaping, and metric emission.
package frontend

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/privacysandbox/pbs/internal/authz"
	"github.com/privacysandbox/pbs/internal/budget"
	"github.com/privacysandbox/pbs/internal/executor"
	"github.com/privacysandbox/pbs/internal/httpserver"
	"github.com/privacysandbox/pbs/internal/metrics"
)

// labelCoordinator/labelOperator are the two reporting-origin metric labels
// spec 4.8 derives from whether a request's claimed identity matches the
// configured remote-coordinator identity.
const (
	labelCoordinator = "Coordinator"
	labelOperator    = "Operator"
)

// Config fixes the front end's coordinator-identity policy.
type Config struct {
	// RemoteCoordinatorClaimedIdentity is the claimed-identity value that
	// marks a request as originating from the peer coordinator rather than
	// an operator client.
	RemoteCoordinatorClaimedIdentity string
}

// FrontEnd wires the v2 request path to its dependencies: the executor that
// dispatches the budget call asynchronously, the budget helper itself, the
// authorization proxy that resolves reporting origin, and the metric
// router that records request/error counters.
type FrontEnd struct {
	cfg      Config
	dispatch executor.Runner
	helper   budget.ConsumptionHelper
	authz    authz.AuthorizationProxy
	metrics  *metrics.Router
	log      logrus.FieldLogger

	totalRequests metrics.Counter
	clientErrors  metrics.Counter
	serverErrors  metrics.Counter
}

// New constructs a FrontEnd.
func New(cfg Config, dispatch executor.Runner, helper budget.ConsumptionHelper, proxy authz.AuthorizationProxy, router *metrics.Router, log logrus.FieldLogger) *FrontEnd {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FrontEnd{
		cfg:           cfg,
		dispatch:      dispatch,
		helper:        helper,
		authz:         proxy,
		metrics:       router,
		log:           log,
		totalRequests: router.Counter("total_requests"),
		clientErrors:  router.Counter("client_errors"),
		serverErrors:  router.Counter("server_errors"),
	}
}

// RegisterRoutes registers the seven fixed v2 endpoints plus their two
// back-compat aliases, per spec section 4.8's path table.
func (f *FrontEnd) RegisterRoutes(server *httpserver.Server) {
	server.RegisterResourceHandler(http.MethodPost, "/v1/transactions:begin", f.handleBegin)
	server.RegisterResourceHandler(http.MethodPost, "/v1/transactions:prepare", f.handlePrepare)
	server.RegisterResourceHandler(http.MethodPost, "/v1/transactions:commit", f.handleNoOpPhase)
	server.RegisterResourceHandler(http.MethodPost, "/v1/transactions:notify", f.handleNoOpPhase)
	server.RegisterResourceHandler(http.MethodPost, "/v1/transactions:abort", f.handleNoOpPhase)
	server.RegisterResourceHandler(http.MethodPost, "/v1/transactions:end", f.handleNoOpPhase)
	server.RegisterResourceHandler(http.MethodGet, "/v1/transactions:status", f.handleStatus)
	server.RegisterResourceHandler(http.MethodPost, "/health/check", f.handleBegin)
	server.RegisterResourceHandler(http.MethodPost, "/v1/budget:consume", f.handlePrepare)
}

// reportingOriginLabel derives the Coordinator/Operator metric label from
// the claimed identity, per spec 4.8.
func (f *FrontEnd) reportingOriginLabel(claimedIdentity string) string {
	if claimedIdentity != "" && claimedIdentity == f.cfg.RemoteCoordinatorClaimedIdentity {
		return labelCoordinator
	}
	return labelOperator
}

func (f *FrontEnd) handleBegin(w http.ResponseWriter, r *http.Request) {
	rc, err := parseHeaders(r, false)
	if err != nil {
		f.rejectHeaderError(w, "begin", err)
		return
	}
	f.totalRequests.Inc("begin", f.reportingOriginLabel(rc.claimedIdentity))
	writeBackCompatHeader(w)
	w.WriteHeader(http.StatusOK)
}

func (f *FrontEnd) handleNoOpPhase(w http.ResponseWriter, r *http.Request) {
	endpoint := phaseNameFromPath(r.URL.Path)
	rc, err := parseHeaders(r, true)
	if err != nil {
		f.rejectHeaderError(w, endpoint, err)
		return
	}
	f.totalRequests.Inc(endpoint, f.reportingOriginLabel(rc.claimedIdentity))
	writeBackCompatHeader(w)
	w.WriteHeader(http.StatusOK)
}

func (f *FrontEnd) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

func (f *FrontEnd) rejectHeaderError(w http.ResponseWriter, endpoint string, err error) {
	f.totalRequests.Inc(endpoint, labelOperator)
	f.clientErrors.Inc(endpoint, labelOperator)
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func phaseNameFromPath(path string) string {
	switch path {
	case "/v1/transactions:commit":
		return "commit"
	case "/v1/transactions:notify":
		return "notify"
	case "/v1/transactions:abort":
		return "abort"
	case "/v1/transactions:end":
		return "end"
	default:
		return "unknown"
	}
}
