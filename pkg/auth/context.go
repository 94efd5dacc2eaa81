package auth

import (
	"context"
	"errors"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	requestKey   contextKey = "request"
)

// ErrNoPrincipal is returned when a context carries no resolved identity.
var ErrNoPrincipal = errors.New("no principal in context")

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return nil, ErrNoPrincipal
	}
	return p, nil
}

// GetTenantID is a helper to get the TenantID from the context's Principal.
func GetTenantID(ctx context.Context) (string, error) {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return "", err
	}
	return p.GetTenantID(), nil
}

// WithRequestContext attaches request-level audit facts to the context.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, requestKey, rc)
}

// GetRequestContext retrieves the RequestContext, if any. Absence is normal
// for background work (scheduled syncs have no inbound request).
func GetRequestContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(requestKey).(RequestContext)
	return rc, ok
}
