package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"authgate/internal/config"
	"authgate/internal/gateway/handlers"
	"authgate/internal/gateway/middlewares"
	"authgate/internal/observability"
	"authgate/internal/sessions"
	"authgate/internal/tokens"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 16 // token exchange bodies are small

type Deps struct {
	Users        handlers.UserStore
	Sessions     sessions.Store
	Tokens       *tokens.Manager
	Prom         *observability.Prom
	Metrics      http.Handler
	ReadinessMap map[string]func() error
}

func NewRouter(cfg config.Config, log *slog.Logger, deps Deps) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.BodyLimit(maxBodyBytes))
	r.Use(otelgin.Middleware("authgate"))

	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// health + metrics

	health := handlers.NewHealthHandler(deps.ReadinessMap)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	// auth routes

	authHandler := handlers.NewAuthHandler(deps.Users, deps.Sessions, deps.Tokens, cfg, log, deps.Prom)
	sessionMW := middlewares.NewSessionMiddleware(deps.Tokens, deps.Sessions, cfg.CookieName)

	sessionLimiter := middlewares.NewRateLimiter(10, time.Minute)

	auth := r.Group("/api/v1/auth")
	{
		auth.GET("/login/google", authHandler.LoginGoogle)
		auth.POST("/session", sessionLimiter.ByIP(), authHandler.CreateSession)
		auth.GET("/me", sessionMW.RequireSession(), authHandler.Me)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/refresh", sessionMW.RequireSession(), authHandler.Refresh)
	}

	return r
}
