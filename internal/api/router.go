package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/memory-game/internal/config"
	"github.com/wfunc/memory-game/internal/game"
	"github.com/wfunc/memory-game/internal/middleware"
	"github.com/wfunc/memory-game/internal/service"
	ws "github.com/wfunc/memory-game/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	services       *service.Services
	gameService    *game.GameService
	hub            *ws.Hub
	authHandler    *AuthHandler
	userHandler    *UserHandler
	gameHandler    *GameHandler
	wsHandler      *WebSocketHandler
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
	cancel         context.CancelFunc
}

// NewRouter 创建路由器
func NewRouter(db *gorm.DB, cfg *config.Config, log *zap.Logger) *Router {
	engine := gin.New()
	engine.Use(gin.Recovery(), gin.Logger())

	if rl := cfg.Security.RateLimit; rl.Enabled {
		engine.Use(middleware.NewRateLimitMiddleware(rl.RequestsPerMinute, rl.Burst).Limit())
	}

	// 业务服务
	svcConfig := &service.Config{
		JWTSecret:          cfg.Security.JWT.Secret,
		AccessTokenExpiry:  time.Duration(cfg.Security.JWT.ExpireHours) * time.Hour,
		RefreshTokenExpiry: time.Duration(cfg.Security.JWT.RefreshHours) * time.Hour,
	}
	services := service.NewServices(db, svcConfig, log)

	// 创建对局服务
	gameService := game.NewGameService(&game.GameServiceConfig{
		DB:              db,
		Logger:          log,
		Timing:          cfg.Game.Turn,
		Memory:          cfg.Game.Memory,
		AI:              cfg.Game.AI,
		SessionTimeout:  cfg.Game.Session.IdleTimeout,
		CleanupInterval: cfg.Game.Session.CleanupInterval,
		MaxSessions:     cfg.Game.Session.MaxSessions,
	})

	// 创建WebSocket中心并绑定对局消息处理器
	hub := ws.NewHub(log)
	hub.SetMessageHandler(ws.NewGameMessageHandler(hub, gameService, log))

	// 创建处理器
	authHandler := NewAuthHandler(services.Auth, services.User)
	userHandler := NewUserHandler(services.User)
	gameHandler := NewGameHandler(gameService, log)
	wsHandler := NewWebSocketHandler(hub, log)

	// 创建中间件
	authMiddleware := middleware.NewAuthMiddleware(services.Auth, services.User)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run()
	gameService.Start(ctx)
	go cleanupLoginSessions(ctx, services.Auth, log)

	router := &Router{
		engine:         engine,
		db:             db,
		services:       services,
		gameService:    gameService,
		hub:            hub,
		authHandler:    authHandler,
		userHandler:    userHandler,
		gameHandler:    gameHandler,
		wsHandler:      wsHandler,
		authMiddleware: authMiddleware,
		log:            log,
		cancel:         cancel,
	}

	router.setupRoutes()
	return router
}

// cleanupLoginSessions 周期清理过期的登录会话
func cleanupLoginSessions(ctx context.Context, auth service.AuthService, log *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := auth.CleanupExpiredSessions(ctx); err != nil {
				log.Error("清理过期登录会话失败", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// OpenAPI 文档与 Swagger UI（后者仅 -tags swagger 构建时生效）
	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	v1 := r.engine.Group("/api/v1")
	{
		// 认证路由，注册/登录/刷新开放访问
		auth := v1.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/refresh", r.authHandler.RefreshToken)

			// 以下需要令牌
			authRequired := auth.Group("", r.authMiddleware.RequireAuth())
			{
				authRequired.POST("/logout", r.authHandler.Logout)
				authRequired.GET("/profile", r.authHandler.GetProfile)
				authRequired.PUT("/profile", r.authHandler.UpdateProfile)
				authRequired.PUT("/password", r.authHandler.UpdatePassword)
				authRequired.GET("/sessions", r.authHandler.GetSessions)
				authRequired.DELETE("/sessions", r.authHandler.RevokeAllSessions)
				authRequired.DELETE("/sessions/:id", r.authHandler.RevokeSession)
			}
		}

		// 用户查询路由（需要认证）
		users := v1.Group("/users")
		users.Use(r.authMiddleware.RequireAuth())
		{
			// 固定路径先于 :id 注册
			users.GET("/lookup", r.userHandler.LookupUser)
			users.GET("/:id", r.userHandler.GetUser)
			users.GET("/:id/games", r.userHandler.GetUserGames)
		}

		// 管理路由（需要管理员权限）
		admin := v1.Group("/admin")
		admin.Use(r.authMiddleware.RequireAuth(), r.authMiddleware.RequireAdmin())
		{
			admin.GET("/users", r.userHandler.ListUsers)
			admin.PUT("/users/:id", r.userHandler.UpdateUser)
			admin.PUT("/users/:id/status", r.userHandler.UpdateUserStatus)
		}

		// 对局相关路由（需要认证）
		games := v1.Group("/games")
		games.Use(r.authMiddleware.RequireAuth())
		{
			games.POST("", r.gameHandler.CreateGame)
			// 固定路径先于 :id 注册，避免路由冲突
			games.GET("/history", r.gameHandler.GetHistory)
			games.GET("/stats", r.gameHandler.GetStats)
			games.GET("/:id", r.gameHandler.GetGame)
			games.DELETE("/:id", r.gameHandler.EndGame)
			games.POST("/:id/flip", r.gameHandler.Flip)
			games.GET("/:id/hint", r.gameHandler.Hint)
			games.POST("/:id/pause", r.gameHandler.Pause)
			games.POST("/:id/resume", r.gameHandler.Resume)
		}
	}

	// WebSocket路由
	wsGroup := r.engine.Group("/ws")
	wsGroup.Use(r.authMiddleware.RequireAuth())
	{
		wsGroup.GET("/game", r.wsHandler.GameWebSocket)
		wsGroup.GET("/online", r.wsHandler.GetOnlineCount)
	}

	// 静态文件服务
	r.engine.Static("/static", "./static")

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"code": "NOT_FOUND", "message": "接口不存在"})
	})
}

// healthCheck 健康检查，数据库不可达时报503
func (r *Router) healthCheck(c *gin.Context) {
	sqlDB, err := r.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		c.JSON(503, gin.H{"status": "unhealthy", "message": "数据库不可用"})
		return
	}

	c.JSON(200, gin.H{
		"status":   "healthy",
		"message":  "服务运行正常",
		"sessions": r.gameService.SessionManager().GetActiveSessions(),
	})
}

// Run 运行服务器
func (r *Router) Run(addr string) error {
	r.log.Info("HTTP服务启动", zap.String("addr", addr))
	return r.engine.Run(addr)
}

// Shutdown 停止后台任务并保存活跃会话
func (r *Router) Shutdown(ctx context.Context) {
	r.cancel()
	r.gameService.Stop(ctx)
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// GameService 获取对局服务（用于测试）
func (r *Router) GameService() *game.GameService {
	return r.gameService
}
