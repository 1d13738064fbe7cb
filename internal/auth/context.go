package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

type ctxKey struct{}

const ginActorKey = "actor_ref"

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// GetActor returns the authenticated caller, or "" for anonymous requests.
func GetActor(ctx context.Context) string {
	if c, ok := ctx.(*gin.Context); ok {
		if val := c.GetString(ginActorKey); val != "" {
			return val
		}
		ctx = c.Request.Context()
	}
	if val, ok := ctx.Value(ctxKey{}).(string); ok {
		return val
	}
	return ""
}
