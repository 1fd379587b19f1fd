package instance

import (
	"testing"
	"time"

	"github.com/privacysandbox/pbs/pkg/config"
	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

func testConfig() *config.PBSConfig {
	return &config.PBSConfig{
		HostAddress:            "127.0.0.1",
		HostPort:               "0",
		AsyncExecutorThreads:   4,
		AsyncExecutorQueueSize: 64,
	}
}

func TestOrchestratorFullLifecycle(t *testing.T) {
	o := New(testConfig(), Options{})
	if err := o.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := o.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	ctx, cancel := DefaultShutdownContext()
	defer cancel()
	if err := o.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// Stop must be idempotent.
	if err := o.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestOrchestratorRunBeforeInitFails(t *testing.T) {
	o := New(testConfig(), Options{})
	err := o.Run()
	if err == nil {
		t.Fatal("expected error running before init")
	}
	kind, ok := pbserrors.KindOf(err)
	if !ok || kind != pbserrors.Uninitialized {
		t.Fatalf("expected Uninitialized kind, got %v (ok=%v)", kind, ok)
	}
}

func TestOrchestratorInitFailureWithBadTLSPaths(t *testing.T) {
	cfg := testConfig()
	cfg.UseTLS = true
	cfg.TLSCertificateFilePath = "/nonexistent/cert.pem"
	cfg.TLSPrivateKeyFilePath = "/nonexistent/key.pem"

	o := New(cfg, Options{})
	if err := o.Init(); err == nil {
		t.Fatal("expected init failure with unreadable TLS paths")
	}

	// A fresh orchestrator with valid config must still be able to init and
	// run after the failed one unwound cleanly.
	o2 := New(testConfig(), Options{})
	if err := o2.Init(); err != nil {
		t.Fatalf("init after prior failure: %v", err)
	}
	defer func() {
		ctx, cancel := DefaultShutdownContext()
		defer cancel()
		o2.Stop(ctx)
	}()
	if err := o2.Run(); err != nil {
		t.Fatalf("run after prior failure: %v", err)
	}
}

func TestOrchestratorComputeEngineRequiresHealthService(t *testing.T) {
	cfg := testConfig()
	cfg.ContainerType = config.ComputeEngine
	cfg.HealthPort = "0"

	o := New(cfg, Options{})
	if err := o.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if o.healthService == nil {
		t.Fatal("expected a health service to be wired for ComputeEngine")
	}
	if err := o.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	ctx, cancel := DefaultShutdownContext()
	defer cancel()
	time.Sleep(10 * time.Millisecond)
	if err := o.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
