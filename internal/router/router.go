package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mockai/mockai-backend/internal/config"
	"github.com/mockai/mockai-backend/internal/handler"
	"github.com/mockai/mockai-backend/internal/middleware"
	"github.com/mockai/mockai-backend/internal/response"
	"github.com/mockai/mockai-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Interview *handler.InterviewHandler
	WS        *handler.WSHandler
	Monitor   *handler.MonitorHandler
	Health    *handler.HealthHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background goroutines owned by middleware.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Compress())

	router.GET("/health", handlers.Health.Health)
	router.GET("/ready", handlers.Health.Ready)

	// ─── 1. Interviews ─────────────────────────────────────────────────
	// Creation is public but rate limited: it calls the question generator.
	createLimiter := middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)

	interviews := router.Group("/api/v1/interviews")
	interviews.Use(middleware.NoStore())
	{
		interviews.POST("", createLimiter.Middleware(), handlers.Interview.CreateInterview)

		candidate := middleware.RequireInterviewToken(authService, service.TokenTypeCandidate)
		interviews.GET("/:id", candidate, handlers.Interview.GetInterview)
		interviews.GET("/:id/result", candidate, handlers.Interview.GetResult)

		// EventSource cannot set headers; the observer token comes in ?token=
		interviews.GET("/:id/monitor",
			middleware.RequireInterviewToken(authService, service.TokenTypeObserver),
			handlers.Monitor.MonitorInterviewSSE,
		)
	}

	// ─── 2. WebSocket ──────────────────────────────────────────────────
	ws := router.Group("/ws/v1")
	{
		ws.GET("/interviews/:id/stream",
			middleware.RequireInterviewToken(authService, service.TokenTypeCandidate),
			handlers.WS.InterviewStream,
		)
	}

	return router
}
