package authz

import (
	"context"
	"testing"
)

func TestPassThroughEchoesClaimedIdentity(t *testing.T) {
	p := NewPassThrough()
	origin, err := p.Authorize(context.Background(), "caller.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if origin != "caller.example" {
		t.Fatalf("expected pass-through to echo identity, got %q", origin)
	}
}
