package bootstrap

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	accountshttp "github.com/staffboard/staffboard-backend/internal/accounts/http"
	httpapi "github.com/staffboard/staffboard-backend/internal/api/http"
	"github.com/staffboard/staffboard-backend/internal/api/http/middleware"
	"github.com/staffboard/staffboard-backend/internal/auth"
	kanbanhttp "github.com/staffboard/staffboard-backend/internal/kanban/http"
	"github.com/staffboard/staffboard-backend/internal/monitor"
	"github.com/staffboard/staffboard-backend/internal/permissions"
	"go.uber.org/zap"
)

type RouterDeps struct {
	ServiceName    string
	Version        string
	CORSOrigins    []string
	TrustedProxies []string
	Logger         *zap.Logger

	DB    *pgxpool.Pool
	Redis *redis.Client

	Verifier    auth.Verifier
	AuthLimiter *middleware.RateLimiter

	Accounts *accountshttp.Handler
	Kanban   *kanbanhttp.Handler
	Monitor  *monitor.Handler
}

func BuildRouter(dep RouterDeps) (*gin.Engine, error) {
	if dep.Logger == nil {
		dep.Logger = zap.NewNop()
	}
	r := gin.New()
	if err := r.SetTrustedProxies(dep.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	r.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.GinZapMiddleware(dep.Logger),
		middleware.LanguageMiddleware(),
		cors.New(cors.Config{
			AllowOrigins:     dep.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept-Language", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.DB, dep.Redis)
	healthHandler.RegisterRoutes(r)

	requireAuth := auth.RequireAuth(dep.Verifier)
	limit := func(c *gin.Context) { c.Next() }
	if dep.AuthLimiter != nil {
		limit = dep.AuthLimiter.Middleware()
	}

	if dep.Accounts != nil {
		dep.Accounts.RegisterAuth(r.Group("/api/auth"), requireAuth, limit)
		dep.Accounts.RegisterUsers(r.Group("/api/users", requireAuth))
	}
	if dep.Kanban != nil {
		dep.Kanban.Register(r.Group("/api", requireAuth))
	}
	if dep.Monitor != nil {
		dep.Monitor.Register(r.Group("/api/admin", requireAuth, auth.RequireCapability(permissions.CanViewStorageStats)))
	}

	return r, nil
}
