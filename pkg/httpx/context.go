package httpx

import "context"

type ctxKey string

const (
	CtxKeyActorID  ctxKey = "actor_id"
	CtxKeyTenantID ctxKey = "tenant_id"
	CtxKeyScopes   ctxKey = "scopes"
	CtxKeyClaims   ctxKey = "claims" // full jwtx.Claims when needed
)

// ActorIDFromContext returns the authenticated actor id, or "" when the
// request was not authenticated.
func ActorIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyActorID).(string); ok {
		return v
	}
	return ""
}

// TenantIDFromContext returns the tenant the actor belongs to, or "".
func TenantIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyTenantID).(string); ok {
		return v
	}
	return ""
}

func scopesFromCtx(ctx context.Context) []string {
	if v, ok := ctx.Value(CtxKeyScopes).([]string); ok {
		return v
	}
	return nil
}
