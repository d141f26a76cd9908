package authz

import "context"

type grantsContextKey struct{}

// ContextWithGrants stores the aggregated grants in context so a request
// resolves them at most once.
func ContextWithGrants(ctx context.Context, grants GrantSet) context.Context {
	return context.WithValue(ctx, grantsContextKey{}, grants)
}

// GrantsFromContext extracts previously resolved grants.
func GrantsFromContext(ctx context.Context) (GrantSet, bool) {
	grants, ok := ctx.Value(grantsContextKey{}).(GrantSet)
	return grants, ok
}
