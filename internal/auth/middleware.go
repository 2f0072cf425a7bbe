package auth

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"github.com/staffboard/staffboard-backend/pkg/apierrors"
)

// RequireAuth validates the bearer token and stores the principal in the
// request context.
func RequireAuth(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			apierrors.Abort(c, http.StatusUnauthorized, apierrors.MsgUnauthorized, ErrMissingToken.Error())
			return
		}

		p, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInactiveUser) {
				apierrors.Abort(c, http.StatusForbidden, apierrors.MsgAccountInactive, err.Error())
				return
			}
			apierrors.Abort(c, http.StatusUnauthorized, apierrors.MsgUnauthorized, ErrInvalidToken.Error())
			return
		}

		setPrincipal(c, p)
		c.Next()
	}
}

// RequireRoles rejects principals whose role is not listed.
func RequireRoles(roles ...permissions.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			apierrors.Abort(c, http.StatusUnauthorized, apierrors.MsgUnauthorized, "")
			return
		}
		if !slices.Contains(roles, p.Role) {
			apierrors.Abort(c, http.StatusForbidden, apierrors.MsgForbidden, "")
			return
		}
		c.Next()
	}
}

// RequireCapability rejects principals whose role lacks capability.
func RequireCapability(capability permissions.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := CurrentPrincipal(c)
		if !ok {
			apierrors.Abort(c, http.StatusUnauthorized, apierrors.MsgUnauthorized, "")
			return
		}
		if !permissions.HasPermission(p.Role, capability) {
			apierrors.Abort(c, http.StatusForbidden, apierrors.MsgForbidden, string(capability))
			return
		}
		c.Next()
	}
}

// extractToken extracts the Bearer token from the Authorization header.
// EventSource clients cannot set headers, so requests that only accept an
// event stream may pass the token as access_token instead.
func extractToken(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if len(bearerToken) > 7 && strings.EqualFold(bearerToken[:7], "Bearer ") {
		return strings.TrimSpace(bearerToken[7:])
	}
	if wantsEventStream(c) {
		return strings.TrimSpace(c.Query("access_token"))
	}
	return ""
}

func wantsEventStream(c *gin.Context) bool {
	return c.Request.Method == http.MethodGet &&
		strings.HasPrefix(strings.TrimSpace(c.GetHeader("Accept")), "text/event-stream")
}
