package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers"
	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	log *logrus.Logger,
	authHandler *handlers.AuthHandler,
	escrowHandler *handlers.EscrowHandler,
	milestoneHandler *handlers.MilestoneHandler,
	disputeHandler *handlers.DisputeHandler,
	deadlineHandler *handlers.DeadlineHandler,
	monitorHandler *handlers.MonitorHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler(log))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	api.GET("/ws", wsHandler.Handle)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/auth/me", authHandler.Me)

		// Денежные операции дополнительно ограничены по частоте.
		moneyRateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)

		// Леджер
		protected.GET("/escrow", escrowHandler.List)
		protected.POST("/escrow", moneyRateLimit, escrowHandler.Create)
		protected.POST("/escrow/preview", escrowHandler.Preview)
		protected.GET("/escrow/:id", middleware.UUIDValidator("id"), escrowHandler.Get)
		protected.GET("/escrow/:id/timeline", middleware.UUIDValidator("id"), escrowHandler.Timeline)
		protected.GET("/escrow/:id/deadlines", middleware.UUIDValidator("id"), deadlineHandler.ListByTransaction)
		protected.POST("/escrow/:id/release", middleware.UUIDValidator("id"), moneyRateLimit, escrowHandler.Release)
		protected.POST("/escrow/:id/refund", middleware.UUIDValidator("id"), moneyRateLimit, escrowHandler.Refund)

		// Вехи
		protected.POST("/jobs/:id/milestones", middleware.UUIDValidator("id"), milestoneHandler.CreateSet)
		protected.GET("/jobs/:id/milestones", middleware.UUIDValidator("id"), milestoneHandler.ListByJob)
		protected.POST("/milestones/:id/pay", middleware.UUIDValidator("id"), moneyRateLimit, milestoneHandler.Pay)
		protected.POST("/milestones/:id/submit", middleware.UUIDValidator("id"), milestoneHandler.Submit)
		protected.POST("/milestones/:id/approve", middleware.UUIDValidator("id"), moneyRateLimit, milestoneHandler.Approve)
		protected.POST("/milestones/:id/revision", middleware.UUIDValidator("id"), milestoneHandler.RequestRevision)

		// Споры
		protected.GET("/disputes", disputeHandler.List)
		protected.POST("/disputes", moneyRateLimit, disputeHandler.File)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.Get)
		protected.POST("/disputes/:id/respond", middleware.UUIDValidator("id"), disputeHandler.Respond)
		protected.POST("/disputes/:id/escalate", middleware.UUIDValidator("id"), disputeHandler.Escalate)
		protected.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.Resolve)
		protected.POST("/disputes/:id/evidence", middleware.UUIDValidator("id"), disputeHandler.UploadEvidence)

		// Дедлайны
		protected.POST("/deadlines/:id/extend", middleware.UUIDValidator("id"), deadlineHandler.Extend)

		// Уведомления
		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread", notificationHandler.CountUnread)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllAsRead)
	}

	// Административные маршруты
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/metrics", monitorHandler.Metrics)
		admin.GET("/alerts", monitorHandler.ListAlerts)
		admin.POST("/alerts/:id/resolve", middleware.UUIDValidator("id"), monitorHandler.ResolveAlert)
		admin.POST("/sweep", monitorHandler.RunSweep)
	}

	return r
}
