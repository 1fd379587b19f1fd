// Package authz implements spec section 4.10's AuthorizationProxy: resolving
// an incoming request's claimed identity to an authorized reporting domain.
package authz

import "context"

// AuthorizationProxy resolves a claimed identity into an authorized
// reporting domain (the value used as budget.Key.ReportingOrigin).
type AuthorizationProxy interface {
	Authorize(ctx context.Context, claimedIdentity string) (string, error)
}

// PassThrough is the health-port variant: it does no network I/O, never
// fails, and echoes the claimed identity back as the reporting domain.
type PassThrough struct{}

// NewPassThrough constructs a PassThrough proxy.
func NewPassThrough() PassThrough { return PassThrough{} }

// Authorize always succeeds, returning claimedIdentity unchanged.
func (PassThrough) Authorize(_ context.Context, claimedIdentity string) (string, error) {
	return claimedIdentity, nil
}
