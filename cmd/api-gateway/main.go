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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/capital-declarations-api/api/swagger"
	"github.com/noah-isme/capital-declarations-api/internal/handler"
	internalmiddleware "github.com/noah-isme/capital-declarations-api/internal/middleware"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	"github.com/noah-isme/capital-declarations-api/internal/repository"
	"github.com/noah-isme/capital-declarations-api/internal/service"
	"github.com/noah-isme/capital-declarations-api/migrations"
	"github.com/noah-isme/capital-declarations-api/pkg/cache"
	"github.com/noah-isme/capital-declarations-api/pkg/config"
	"github.com/noah-isme/capital-declarations-api/pkg/database"
	"github.com/noah-isme/capital-declarations-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/capital-declarations-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/capital-declarations-api/pkg/middleware/requestid"
	"github.com/noah-isme/capital-declarations-api/pkg/storage"
)

const shutdownTimeout = 15 * time.Second

// @title Capital Declarations API
// @version 1.0.0
// @description Capital declaration lifecycle and client portal
// @BasePath /api/v1
// @schemes http https
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := database.Migrate(ctx, db, migrations.FS)
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
		logr.Info("migrations applied", zap.Strings("files", applied))
	}

	var redisClient *redis.Client
	var cacheRepo service.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, branding cache disabled", zap.Error(err))
		} else {
			repo := repository.NewCacheRepository(redisClient, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}

	files, err := storage.NewLocalStorage(cfg.Storage.Dir, cfg.Storage.PublicBaseURL)
	if err != nil {
		logr.Fatal("failed to init storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	historyRepo := repository.NewStatusHistoryRepository(db)
	declarationRepo := repository.NewDeclarationRepository(db, historyRepo)
	communicationRepo := repository.NewCommunicationRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	firmRepo := repository.NewFirmRepository(db)

	validate := service.NewValidator()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.BrandingTTL, logr, cacheRepo != nil)
	brandingSvc := service.NewBrandingService(firmRepo, cacheSvc, cfg.Cache.BrandingTTL)
	statusSvc := service.NewStatusService(declarationRepo, metricsSvc, logr)
	tokenSvc := service.NewTokenService(declarationRepo, cfg.Portal.TokenTTL, cfg.Portal.BaseURL, logr)
	notificationSvc := service.NewNotificationService(service.NewLogNotifier(logr), cfg.Notifications, metricsSvc, logr)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	declarationSvc := service.NewDeclarationService(declarationRepo, brandingSvc, tokenSvc, statusSvc, notificationSvc, validate, logr)
	portalSvc := service.NewPortalService(service.PortalServiceDeps{
		Declarations: declarationRepo,
		Tokens:       tokenSvc,
		Status:       statusSvc,
		Firms:        brandingSvc,
		Documents:    documentRepo,
		Files:        files,
		Uploads: service.PortalUploadConfig{
			MaxBytes:     cfg.Portal.MaxUploadBytes,
			AllowedMIMEs: cfg.Portal.AllowedMIMEs,
		},
		Validator: validate,
		Metrics:   metricsSvc,
		Logger:    logr,
	})
	timelineSvc := service.NewTimelineService(declarationRepo, historyRepo, communicationRepo)
	communicationSvc := service.NewCommunicationService(communicationRepo, declarationRepo, validate, logr)
	documentSvc := service.NewDocumentService(documentRepo, declarationRepo, files, signer, cfg.APIPrefix+"/documents/download", validate, logr)
	authSvc := service.NewAuthService(service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	checks := map[string]handler.ReadinessCheck{
		"database": func(ctx context.Context) error {
			if err := db.PingContext(ctx); err != nil {
				return err
			}
			current, latest, err := database.MigrationStatus(ctx, db, migrations.FS)
			if err != nil {
				return err
			}
			if current < latest {
				return fmt.Errorf("schema at version %d, want %d", current, latest)
			}
			return nil
		},
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	declarationHandler := handler.NewDeclarationHandler(declarationSvc)
	portalHandler := handler.NewPortalHandler(portalSvc, cfg.Portal.MaxUploadBytes)
	timelineHandler := handler.NewTimelineHandler(timelineSvc)
	communicationHandler := handler.NewCommunicationHandler(communicationSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if metricsSvc != nil {
		r.Use(internalmiddleware.Metrics(metricsSvc))
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	portal := api.Group("/portal/:token")
	portal.GET("", portalHandler.View)
	portal.POST("/declarations/:id/documents", portalHandler.Upload)
	portal.POST("/declarations/:id/complete", portalHandler.Complete)

	api.GET("/documents/download", documentHandler.Download)

	staff := api.Group("")
	staff.Use(internalmiddleware.JWT(authSvc))
	staff.GET("/metrics/summary", internalmiddleware.RequireRoles(models.RoleOwner, models.RoleAdmin), metricsHandler.Snapshot)

	declarations := staff.Group("/declarations")
	declarations.POST("", declarationHandler.Create)
	declarations.GET("", declarationHandler.List)
	declarations.GET("/:id", declarationHandler.Get)
	declarations.POST("/:id/transitions", declarationHandler.Transition)
	declarations.POST("/:id/send", declarationHandler.Send)
	declarations.POST("/:id/token", declarationHandler.RegenerateToken)
	declarations.DELETE("/:id/token", declarationHandler.RevokeToken)
	declarations.PATCH("/:id/assignment", declarationHandler.UpdateAssignment)
	declarations.PATCH("/:id/deadlines", declarationHandler.UpdateDeadlines)
	declarations.PATCH("/:id/penalty", internalmiddleware.RequireRoles(models.RoleOwner, models.RoleAdmin), declarationHandler.UpdatePenalty)

	declarations.GET("/:id/timeline", timelineHandler.Get)
	declarations.GET("/:id/timeline/export", timelineHandler.Export)

	declarations.POST("/:id/communications", communicationHandler.Create)
	declarations.GET("/:id/communications", communicationHandler.List)

	declarations.GET("/:id/documents", documentHandler.List)
	declarations.PATCH("/:id/documents/:documentId/status", documentHandler.Review)
	declarations.GET("/:id/documents/:documentId/download-link", documentHandler.DownloadLink)

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
	logr.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("server forced to shutdown", zap.Error(err))
	}
}
