package auth

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/internal/permissions"
)

const (
	CtxPrincipal = "principal"
	CtxUserID    = "user_id"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string           `json:"id"`
	Email  string           `json:"email"`
	Name   string           `json:"name"`
	Role   permissions.Role `json:"role"`
}

func (p Principal) Actor() permissions.Actor {
	return permissions.Actor{ID: p.UserID, Role: p.Role}
}

type principalKey struct{}

// WithPrincipal stores p in ctx for services that only see context.Context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// CurrentPrincipal extracts the principal set by RequireAuth.
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(CtxPrincipal)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// UserID is a shortcut for handlers that only need the caller's id.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserID)
}

func setPrincipal(c *gin.Context, p Principal) {
	c.Set(CtxPrincipal, p)
	c.Set(CtxUserID, p.UserID)
	c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
}
