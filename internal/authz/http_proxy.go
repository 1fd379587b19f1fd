package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/privacysandbox/pbs/internal/executor"
	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// identityResponse is the shape returned by the identity endpoint.
type identityResponse struct {
	ReportingOrigin string `json:"reporting_origin"`
}

// HTTPProxy is the live AuthorizationProxy variant: it issues an HTTP call
// to an identity endpoint, subject to retry and a TTL cache so repeated
// lookups for the same caller within the TTL window avoid the network
// round trip.
type HTTPProxy struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	cache    *lru.LRU[string, string]
	dispatch *executor.Dispatcher
	log      logrus.FieldLogger
}

// HTTPProxyConfig configures an HTTPProxy.
type HTTPProxyConfig struct {
	Endpoint        string
	RequestTimeout  time.Duration
	CacheTTL        time.Duration
	CacheSize       int
	RateLimitPerSec float64
	RateLimitBurst  int
	Log             logrus.FieldLogger
}

// NewHTTPProxy constructs an HTTPProxy from cfg, filling in defaults for
// zero-valued fields.
func NewHTTPProxy(cfg HTTPProxyConfig) *HTTPProxy {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10_000
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 100
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 50
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &HTTPProxy{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		cache:    lru.NewLRU[string, string](cfg.CacheSize, nil, cfg.CacheTTL),
		dispatch: executor.NewDispatcher(),
		log:      cfg.Log,
	}
}

// Authorize resolves claimedIdentity via the cache, falling back to a
// rate-limited, retried HTTP lookup on a cache miss.
func (p *HTTPProxy) Authorize(ctx context.Context, claimedIdentity string) (string, error) {
	if origin, ok := p.cache.Get(claimedIdentity); ok {
		return origin, nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return "", pbserrors.New(pbserrors.Internal, "authorization rate limiter wait failed: %v", err)
	}

	var origin string
	res := p.dispatch.Dispatch(ctx, func(ctx context.Context, attempt int) executor.Result {
		o, err := p.lookup(ctx, claimedIdentity)
		if err != nil {
			p.log.WithError(err).WithField("attempt", attempt).Warn("identity lookup failed")
			return executor.RetryResult(pbserrors.Internal)
		}
		origin = o
		return executor.Ok(nil)
	})
	if res.Status != executor.Success {
		return "", pbserrors.New(pbserrors.Internal, "authorization lookup exhausted retries for %q", claimedIdentity)
	}

	p.cache.Add(claimedIdentity, origin)
	return origin, nil
}

func (p *HTTPProxy) lookup(ctx context.Context, claimedIdentity string) (string, error) {
	u := p.endpoint + "?identity=" + url.QueryEscape(claimedIdentity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("identity endpoint returned status %d", resp.StatusCode)
	}

	var parsed identityResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.ReportingOrigin == "" {
		return "", fmt.Errorf("identity endpoint returned empty reporting_origin")
	}
	return parsed.ReportingOrigin, nil
}
