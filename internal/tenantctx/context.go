// Package tenantctx carries the per-request tenant identity through
// context.Context. Every tenant-scoped data access resolves the active
// tenant from here; a missing context fails closed with ErrNoContext.
//
// Usage:
//
//	ctx = tenantctx.With(ctx, &tenantctx.TenantContext{TenantID: tid, UserID: uid, Role: role})
//	tc, err := tenantctx.Current(ctx) // err == ErrNoContext outside With
package tenantctx

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNoContext is returned by Current when no tenant context is installed.
// Callers must treat this as a refusal, never as "no tenant filter".
var ErrNoContext = errors.New("no tenant context installed")

// contextKey is unexported so no other package can forge or overwrite
// the stored value.
type contextKey struct{}

// TenantContext is the per-request ambient record consulted by all
// data access. It is immutable once installed.
type TenantContext struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	Role      string
	RequestID string

	// PlatformStaff marks principals without a home tenant that are
	// allowed to act on behalf of one (always audited).
	PlatformStaff bool

	// parent links nested installs so Pop can restore the outer scope.
	parent *TenantContext
}

// With returns a context carrying tc. Nested calls stack: the previous
// context (if any) becomes tc's parent and is restored by Pop.
func With(ctx context.Context, tc *TenantContext) context.Context {
	if prev, ok := ctx.Value(contextKey{}).(*TenantContext); ok {
		cp := *tc
		cp.parent = prev
		return context.WithValue(ctx, contextKey{}, &cp)
	}
	return context.WithValue(ctx, contextKey{}, tc)
}

// WithTenant is a convenience for background jobs that only need the
// tenant scope, without a user identity.
func WithTenant(ctx context.Context, tenantID uuid.UUID) context.Context {
	return With(ctx, &TenantContext{TenantID: tenantID})
}

// Current returns the installed tenant context or ErrNoContext.
func Current(ctx context.Context) (*TenantContext, error) {
	tc, ok := ctx.Value(contextKey{}).(*TenantContext)
	if !ok || tc == nil {
		return nil, ErrNoContext
	}
	return tc, nil
}

// Pop returns a context with the parent scope restored, or with no
// tenant context at all if the current one has no parent.
func Pop(ctx context.Context) context.Context {
	tc, ok := ctx.Value(contextKey{}).(*TenantContext)
	if !ok || tc == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, tc.parent)
}

// TenantID returns the active tenant ID, or uuid.Nil when no context is
// installed. Prefer Current in code paths that must fail closed.
func TenantID(ctx context.Context) uuid.UUID {
	tc, err := Current(ctx)
	if err != nil {
		return uuid.Nil
	}
	return tc.TenantID
}

// UserID returns the active user ID, or uuid.Nil.
func UserID(ctx context.Context) uuid.UUID {
	tc, err := Current(ctx)
	if err != nil {
		return uuid.Nil
	}
	return tc.UserID
}

// Role returns the active role, or the empty string.
func Role(ctx context.Context) string {
	tc, err := Current(ctx)
	if err != nil {
		return ""
	}
	return tc.Role
}

// RequestID returns the request ID bound to the context, or "".
func RequestID(ctx context.Context) string {
	tc, err := Current(ctx)
	if err != nil {
		return ""
	}
	return tc.RequestID
}

// Run executes fn under the given tenant context and guarantees the
// scope does not leak into the caller's context.
func Run(ctx context.Context, tc *TenantContext, fn func(ctx context.Context) error) error {
	return fn(With(ctx, tc))
}
