package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/edvault/edvault-api/api/swagger"
	"github.com/edvault/edvault-api/internal/handler"
	"github.com/edvault/edvault-api/internal/middleware"
	"github.com/edvault/edvault-api/internal/models"
	"github.com/edvault/edvault-api/internal/repository"
	"github.com/edvault/edvault-api/internal/service"
	"github.com/edvault/edvault-api/pkg/cache"
	"github.com/edvault/edvault-api/pkg/config"
	"github.com/edvault/edvault-api/pkg/database"
	"github.com/edvault/edvault-api/pkg/export"
	"github.com/edvault/edvault-api/pkg/logger"
	corsmiddleware "github.com/edvault/edvault-api/pkg/middleware/cors"
	reqidmiddleware "github.com/edvault/edvault-api/pkg/middleware/requestid"
	"github.com/edvault/edvault-api/pkg/storage"
)

// @title EdVault API
// @version 1.0.0
// @description Gated delivery of paid educational content: approval workflow, entitlements, secure viewing sessions
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	mediaStore, err := storage.NewLocalStorage(cfg.Media.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init media storage", "error", err)
	}
	exportStore, err := storage.NewLocalStorage(cfg.Audit.ExportDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}

	mediaSigner := storage.NewAccessTokenSigner(cfg.Media.TokenSecret, cfg.Media.TokenTTL)
	exportSigner := storage.NewAccessTokenSigner(cfg.Audit.ExportSecret, cfg.Audit.ExportTTL)

	contentRepo := repository.NewContentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()
	policy := service.NewViewingPolicy(cfg.Sessions)
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, cfg.JWT, logr)
	approvalSvc := service.NewApprovalService(contentRepo, auditRepo, cacheRepo, mediaStore, policy, validate, logr)
	entitlementSvc := service.NewEntitlementService(contentRepo, subscriptionRepo, cacheRepo, auditRepo, cfg.Pricing, cfg.Sessions.ContentCacheTTL, logr)
	sessionSvc := service.NewSessionService(sessionRepo, entitlementSvc, auditRepo, mediaSigner, policy, cfg.Sessions, validate, metricsSvc, logr)
	mediaSvc := service.NewMediaService(mediaSigner, mediaStore, sessionSvc, export.NewWatermarker(), cfg.Media.WatermarkEnabled, logr)
	auditSvc := service.NewAuditService(auditRepo, exportStore, exportSigner, cfg.Audit, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auditSvc.StartWorkers(ctx)
	defer auditSvc.StopWorkers()
	go sessionSvc.RunSweeper(ctx)

	authHandler := handler.NewAuthHandler(authSvc)
	contentHandler := handler.NewContentHandler(approvalSvc, cfg.Media.MaxUploadBytes)
	entitlementHandler := handler.NewEntitlementHandler(entitlementSvc, metricsSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	mediaHandler := handler.NewMediaHandler(mediaSvc, metricsSvc)
	auditHandler := handler.NewAuditHandler(auditSvc, exportStore)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/media/:token", mediaHandler.Fetch)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.GET("/auth/me", authHandler.Me)
		authed.GET("/entitlement", entitlementHandler.Resolve)

		authed.POST("/sessions", sessionHandler.Start)
		authed.GET("/sessions/:id", sessionHandler.Get)
		authed.POST("/sessions/:id/heartbeat", sessionHandler.Heartbeat)
		authed.POST("/sessions/:id/security-event", sessionHandler.SecurityEvent)
		authed.POST("/sessions/:id/end", sessionHandler.End)
	}

	review := api.Group("/content")
	review.Use(middleware.JWT(authSvc))
	{
		review.POST("", middleware.RequireRoles(models.RoleReviewer, models.RoleAdmin, models.RoleSuperAdmin), contentHandler.Upload)
		review.GET("/pending", middleware.RequireRoles(models.RoleReviewer, models.RoleAdmin, models.RoleSuperAdmin), contentHandler.ListPending)
		review.POST("/:id/approve", middleware.RequireRoles(models.RoleReviewer, models.RoleAdmin, models.RoleSuperAdmin), contentHandler.Approve)
		review.POST("/:id/reject", middleware.RequireRoles(models.RoleReviewer, models.RoleAdmin, models.RoleSuperAdmin), contentHandler.Reject)
		review.PATCH("/:id/premium", middleware.RequireRoles(models.RoleReviewer, models.RoleAdmin, models.RoleSuperAdmin), contentHandler.SetPremium)
		review.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), contentHandler.Delete)
	}

	api.GET("/audit/export-files/:token", auditHandler.DownloadExport)

	audit := api.Group("/audit")
	audit.Use(middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
	{
		audit.GET("/events", auditHandler.ListEvents)
		audit.POST("/exports", auditHandler.RequestExport)
		audit.GET("/exports/:id", auditHandler.GetExport)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	auditSvc.CleanupExports()
	logr.Info("server stopped")
}
