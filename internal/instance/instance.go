// Package instance implements spec section 4.12's instance orchestrator:
// an ordered Init/Run/Stop lifecycle wiring the async executor, the
// authorization proxy, the HTTP server, the budget helper, and the v2
// front end into one running PBS instance.
package instance

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/privacysandbox/pbs/internal/authz"
	"github.com/privacysandbox/pbs/internal/budget"
	"github.com/privacysandbox/pbs/internal/executor"
	"github.com/privacysandbox/pbs/internal/frontend"
	"github.com/privacysandbox/pbs/internal/health"
	"github.com/privacysandbox/pbs/internal/httpserver"
	"github.com/privacysandbox/pbs/internal/lease"
	"github.com/privacysandbox/pbs/internal/metrics"
	"github.com/privacysandbox/pbs/pkg/config"
	"github.com/privacysandbox/pbs/pkg/pbserrors"
	"github.com/privacysandbox/pbs/pkg/utils"
)

// PartitionLease pairs a partition identifier with the lease manager
// guarding its acceptance of new transactions, per SPEC_FULL 9.1's
// multi-partition instance wiring: a single-partition deployment passes a
// one-element slice.
type PartitionLease struct {
	PartitionID string
	Manager     *lease.Manager
}

// Options configures an Orchestrator beyond what PBSConfig carries.
// AuthzProxy overrides the authorization proxy the front end uses; when nil,
// the orchestrator defaults to authz.PassThrough, which is the correct
// choice for any deployment that has not been given a live identity-lookup
// endpoint to call.
type Options struct {
	AuthzProxy     authz.AuthorizationProxy
	BudgetCapacity uint64
	Leases         []PartitionLease
	Log            logrus.FieldLogger
}

// Orchestrator drives component lifecycle in the dependency order spec
// section 4.12 names: async executor, http client (owned by the
// authorization proxy), authorization proxy, http server, budget helper,
// front-end. Stop tears down in exact reverse. Init failure aborts startup
// and unwinds whatever had already come up.
type Orchestrator struct {
	cfg    *config.PBSConfig
	opts   Options
	log    logrus.FieldLogger
	leases []PartitionLease

	mu          sync.Mutex
	initialized bool
	running     bool

	exec          executor.Runner
	authzProxy    authz.AuthorizationProxy
	server        *httpserver.Server
	healthServer  *httpserver.Server
	metricsRouter *metrics.Router
	healthService *health.Service
	budgetHelper  budget.ConsumptionHelper
	frontEnd      *frontend.FrontEnd
}

// New constructs an Orchestrator. Init must be called before Run.
func New(cfg *config.PBSConfig, opts Options) *Orchestrator {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	return &Orchestrator{cfg: cfg, opts: opts, log: opts.Log, leases: opts.Leases}
}

// Init brings components up in dependency order. Any failure tears down
// whatever already initialized, in reverse, before returning the error.
func (o *Orchestrator) Init() (err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.initialized {
		return pbserrors.New(pbserrors.Internal, "orchestrator already initialized")
	}

	var unwind []func()
	defer func() {
		if err != nil {
			for i := len(unwind) - 1; i >= 0; i-- {
				unwind[i]()
			}
		}
	}()

	threadCount := o.cfg.AsyncExecutorThreads
	if threadCount < 1 {
		threadCount = 1
	}
	o.exec = executor.NewMulti(threadCount, o.cfg.AsyncExecutorQueueSize, false, o.log)
	if err = o.exec.Init(); err != nil {
		return utils.Wrap(err, "init async executor")
	}
	// No unwind entry for the executor here: Init only transitions its
	// state machine and starts no goroutine, so there is nothing to stop
	// until Run (Executor.Stop blocks on a signal Run has not yet sent).

	if o.opts.AuthzProxy != nil {
		o.authzProxy = o.opts.AuthzProxy
	} else {
		o.authzProxy = authz.NewPassThrough()
	}

	o.metricsRouter = metrics.NewRouter(o.cfg.OtelEnabled)

	o.server = httpserver.New(httpserver.Config{
		Address:         o.cfg.HostAddress + ":" + o.cfg.HostPort,
		UseTLS:          o.cfg.UseTLS,
		CertificatePath: o.cfg.TLSCertificateFilePath,
		PrivateKeyPath:  o.cfg.TLSPrivateKeyFilePath,
	}, o.log)
	if err = o.server.Init(); err != nil {
		return utils.Wrap(err, "init http server")
	}

	if o.cfg.ContainerType == config.ComputeEngine {
		o.healthServer = httpserver.New(httpserver.Config{Address: o.cfg.HostAddress + ":" + o.cfg.HealthPort}, o.log)
		if err = o.healthServer.Init(); err != nil {
			return utils.Wrap(err, "init health server")
		}
		memoryProbe := health.NewMemoryProbe("", false)
		filesystemProbe := health.NewFilesystemProbe("/", health.MaxMemoryUsagePercent, false)
		o.healthService = health.NewService(memoryProbe, filesystemProbe, o.metricsRouter, o.log)
		o.healthServer.RegisterResourceHandler(http.MethodGet, "/health", o.handleHealthCheck)
	}

	o.budgetHelper = budget.NewInMemoryHelper(o.opts.BudgetCapacity)

	o.frontEnd = frontend.New(frontend.Config{RemoteCoordinatorClaimedIdentity: o.cfg.RemoteClaimedIdentity}, o.exec, o.budgetHelper, o.authzProxy, o.metricsRouter, o.log)
	o.frontEnd.RegisterRoutes(o.server)
	if o.metricsRouter.Enabled() {
		o.server.RegisterResourceHandler(http.MethodGet, "/metrics", o.metricsRouter.Handler().ServeHTTP)
	}

	o.initialized = true
	return nil
}

func (o *Orchestrator) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	acceptable := true
	for _, pl := range o.leases {
		if pl.Manager != nil && !pl.Manager.Acceptable() {
			acceptable = false
			break
		}
	}
	if !acceptable || (o.healthService != nil && !o.healthService.Healthy()) {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Run starts the HTTP server(s) and every partition's lease manager. It may
// only be called after a successful Init.
func (o *Orchestrator) Run() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.initialized {
		return pbserrors.New(pbserrors.Uninitialized, "orchestrator not initialized")
	}
	if o.running {
		return nil
	}

	if err := o.exec.Run(); err != nil {
		return utils.Wrap(err, "run async executor")
	}
	if err := o.server.Run(); err != nil {
		return utils.Wrap(err, "run http server")
	}
	if o.healthServer != nil {
		if err := o.healthServer.Run(); err != nil {
			return utils.Wrap(err, "run health server")
		}
	}
	for _, pl := range o.leases {
		if pl.Manager != nil {
			pl.Manager.Run()
		}
	}

	o.running = true
	return nil
}

// Stop tears components down in exact reverse of Init's order. Idempotent.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.initialized {
		return nil
	}

	for _, pl := range o.leases {
		if pl.Manager != nil {
			pl.Manager.Stop()
		}
	}
	if o.healthServer != nil {
		_ = o.healthServer.Stop(ctx)
	}
	if o.server != nil {
		_ = o.server.Stop(ctx)
	}
	if o.exec != nil && o.running {
		// Executor.Stop blocks on a started-signal that only Run sends; an
		// orchestrator that initialized but never ran has no worker
		// goroutine to stop.
		o.exec.Stop()
	}

	o.initialized = false
	o.running = false
	return nil
}

// shutdownTimeout bounds how long Stop waits for in-flight requests to
// drain before the caller's context deadline is reached.
const shutdownTimeout = 30 * time.Second

// DefaultShutdownContext returns a context bounded by shutdownTimeout, for
// callers (cmd/pbsserver) that don't already have one from a signal handler.
func DefaultShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}
