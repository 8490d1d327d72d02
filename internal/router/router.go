package router

import (
	"gamezone/internal/app/game"
	"gamezone/internal/app/health"
	"gamezone/internal/app/session"
	"gamezone/internal/app/user"
	"gamezone/internal/gateways/websocket"
	"gamezone/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Router struct {
	Engine      *gin.Engine
	api         *gin.RouterGroup
	auth        gin.HandlerFunc
	cron        gin.HandlerFunc
	frontendURL string
}

type Options struct {
	FrontendURL string
	JWTSecret   string
	CronSecret  string
}

func NewRouter(logger *zap.Logger, opts Options) *Router {
	engine := gin.New()
	engine.Use(middleware.CORSMiddleware(opts.FrontendURL))
	engine.Use(middleware.LoggerMiddleware(logger))
	engine.Use(gin.Recovery())

	return &Router{
		Engine:      engine,
		api:         engine.Group("/api"),
		auth:        middleware.Auth(opts.JWTSecret),
		cron:        middleware.CronAuth(opts.CronSecret),
		frontendURL: opts.FrontendURL,
	}
}

func (r *Router) RegisterHealthRoutes(handler health.Handler) {
	health.RegisterRoutes(r.api, handler)
}

func (r *Router) RegisterWebSocketRoutes(hub *websocket.Hub) {
	staff := r.Engine.Group("", r.auth, middleware.RequireRole(middleware.RoleAdmin, middleware.RoleAssistant))
	websocket.RegisterRoutes(staff, hub, r.frontendURL)
}

func (r *Router) RegisterGameRoutes(handler game.Handler) {
	admin := r.api.Group("/admin", r.auth, middleware.RequireRole(middleware.RoleAdmin))
	game.RegisterRoutes(r.api, admin, handler)
}

func (r *Router) RegisterSessionRoutes(handler session.Handler) {
	session.RegisterRoutes(r.api, handler, r.auth, r.cron)
}

func (r *Router) RegisterUserRoutes(handler user.Handler) {
	user.RegisterRoutes(r.api, handler, r.auth)
}
