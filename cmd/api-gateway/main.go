package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/academy-billing-api/api/swagger"
	"github.com/noah-isme/academy-billing-api/internal/gateway"
	"github.com/noah-isme/academy-billing-api/internal/handler"
	"github.com/noah-isme/academy-billing-api/internal/middleware"
	"github.com/noah-isme/academy-billing-api/internal/models"
	"github.com/noah-isme/academy-billing-api/internal/repository"
	"github.com/noah-isme/academy-billing-api/internal/service"
	"github.com/noah-isme/academy-billing-api/pkg/cache"
	"github.com/noah-isme/academy-billing-api/pkg/config"
	"github.com/noah-isme/academy-billing-api/pkg/database"
	"github.com/noah-isme/academy-billing-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academy-billing-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academy-billing-api/pkg/middleware/requestid"
)

// @title Academy Billing API
// @version 1.0.0
// @description Billing engine for academy subscriptions: recurring invoices, payments and reconciliation
// @BasePath /api/v1
// @schemes http

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
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, summary cache disabled", "error", err)
		redisClient = nil
	}

	// Repositories.
	invoiceRepo := repository.NewInvoiceRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attemptRepo := repository.NewPaymentAttemptRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close()

	// Services.
	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Billing.SummaryCacheTTL, logr,
		cfg.Billing.SummaryCacheEnabled && redisClient != nil)
	authService := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})
	provider := gateway.NewMidtransClient(cfg.Midtrans)

	generatorService := service.NewGeneratorService(enrollmentRepo, invoiceRepo, metricsService, logr)
	paymentService := service.NewPaymentService(invoiceRepo, attemptRepo, provider, cacheService, metricsService, logr)
	webhookService := service.NewWebhookService(invoiceRepo, attemptRepo, provider, cacheService, metricsService, logr)
	financeService := service.NewFinanceService(invoiceRepo, cacheService, cfg.Billing.SummaryCacheTTL, logr)
	invoiceService := service.NewInvoiceService(invoiceRepo, attemptRepo, cfg.Billing.ReceiptIssuer, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, logr)

	if cfg.Billing.AutoGenerate {
		scheduler := service.NewSchedulerService(generatorService, cfg.Billing.AutoGenerateCheck, logr)
		scheduler.Start(context.Background())
		defer scheduler.Stop()
	}

	// Handlers.
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, generatorService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	webhookHandler := handler.NewWebhookHandler(webhookService)
	financeHandler := handler.NewFinanceHandler(financeService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// The provider calls this one; it carries no bearer token.
	api.POST("/payments/webhook", webhookHandler.Receive)

	authed := api.Group("", middleware.JWT(authService))
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	invoices := authed.Group("/invoices")
	{
		invoices.GET("", invoiceHandler.List)
		invoices.GET("/:id", invoiceHandler.Get)
		invoices.GET("/:id/attempts", invoiceHandler.Attempts)
		invoices.GET("/:id/receipt", invoiceHandler.Receipt)
		invoices.POST("/:id/checkout", paymentHandler.Checkout)
		invoices.POST("/:id/pay", paymentHandler.Pay)
		invoices.POST("", adminOnly,
			middleware.Audit(auditRepo, models.AuditActionInvoiceCreate, "invoices"),
			invoiceHandler.CreateAdhoc)
		invoices.POST("/generate", adminOnly,
			middleware.Audit(auditRepo, models.AuditActionInvoiceGenerate, "invoices"),
			invoiceHandler.Generate)
	}

	enrollments := authed.Group("/enrollments")
	{
		enrollments.GET("", enrollmentHandler.List)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.POST("", adminOnly,
			middleware.Audit(auditRepo, models.AuditActionEnrollmentWrite, "enrollments"),
			enrollmentHandler.Create)
		enrollments.DELETE("/:id", adminOnly,
			middleware.Audit(auditRepo, models.AuditActionEnrollmentWrite, "enrollments"),
			enrollmentHandler.Deactivate)
	}

	finance := authed.Group("/finance", adminOnly)
	{
		finance.GET("/summary", financeHandler.Summary)
		finance.GET("/export", financeHandler.Export)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
