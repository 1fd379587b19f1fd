package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/privacysandbox/pbs/internal/executor"
)

func TestHTTPProxyResolvesAndCaches(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(identityResponse{ReportingOrigin: "operator.example"})
	}))
	defer srv.Close()

	p := NewHTTPProxy(HTTPProxyConfig{Endpoint: srv.URL, CacheTTL: time.Minute})

	for i := 0; i < 3; i++ {
		origin, err := p.Authorize(context.Background(), "caller-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if origin != "operator.example" {
			t.Fatalf("expected operator.example, got %q", origin)
		}
	}

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected exactly one network hit due to caching, got %d", got)
	}
}

func TestHTTPProxyDistinctIdentitiesDoNotShareCacheEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := r.URL.Query().Get("identity")
		json.NewEncoder(w).Encode(identityResponse{ReportingOrigin: "origin-for-" + identity})
	}))
	defer srv.Close()

	p := NewHTTPProxy(HTTPProxyConfig{Endpoint: srv.URL})

	a, err := p.Authorize(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := p.Authorize(context.Background(), "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct reporting origins, got %q and %q", a, b)
	}
}

func TestHTTPProxyReturnsErrorOnServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewHTTPProxy(HTTPProxyConfig{Endpoint: srv.URL})
	p.dispatch = executor.NewDispatcherWithConfig(2, time.Millisecond, time.Millisecond)

	_, err := p.Authorize(context.Background(), "caller-err")
	if err == nil {
		t.Fatal("expected error from a permanently failing identity endpoint")
	}
}
