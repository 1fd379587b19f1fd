package metrics

import "testing"

func TestCounterGetOrCreateIdempotent(t *testing.T) {
	r := NewRouter(true)
	a := r.Counter("total_requests")
	b := r.Counter("total_requests")
	if a != b {
		t.Fatal("expected repeated Counter calls to return the same instrument")
	}
	a.Inc("prepare", "operator.example")
}

func TestGaugeGetOrCreateIdempotent(t *testing.T) {
	r := NewRouter(true)
	a := r.Gauge("memory_usage_ratio")
	b := r.Gauge("memory_usage_ratio")
	if a != b {
		t.Fatal("expected repeated Gauge calls to return the same instrument")
	}
	a.Set(0.42)
}

func TestDisabledRouterStillUsable(t *testing.T) {
	r := NewRouter(false)
	if r.Enabled() {
		t.Fatal("expected router to report disabled")
	}
	c := r.Counter("client_errors")
	c.Inc("prepare", "operator.example")
}
