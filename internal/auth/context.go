package auth

import "context"

type identityContextKey struct{}
type tenantContextKey struct{}

// ContextWithIdentity attaches the resolved identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the resolved identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	return *v, true
}

// ContextWithTenant stores the derived tenant context.
func ContextWithTenant(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, &tc)
}

// TenantFromContext extracts the tenant context if one was derived.
// Routes that require it must check the ok flag, never assume presence.
func TenantFromContext(ctx context.Context) (TenantContext, bool) {
	if ctx == nil {
		return TenantContext{}, false
	}
	v, ok := ctx.Value(tenantContextKey{}).(*TenantContext)
	if !ok || v == nil {
		return TenantContext{}, false
	}
	return *v, true
}
