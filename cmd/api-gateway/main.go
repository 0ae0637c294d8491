package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sis-registrar-api/api/swagger"
	"github.com/noah-isme/sis-registrar-api/internal/handler"
	"github.com/noah-isme/sis-registrar-api/internal/middleware"
	"github.com/noah-isme/sis-registrar-api/internal/models"
	"github.com/noah-isme/sis-registrar-api/internal/repository"
	"github.com/noah-isme/sis-registrar-api/internal/service"
	"github.com/noah-isme/sis-registrar-api/pkg/cache"
	"github.com/noah-isme/sis-registrar-api/pkg/config"
	"github.com/noah-isme/sis-registrar-api/pkg/database"
	"github.com/noah-isme/sis-registrar-api/pkg/export"
	"github.com/noah-isme/sis-registrar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sis-registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sis-registrar-api/pkg/middleware/requestid"
)

// @title SIS Registrar API
// @version 1.0.0
// @description Academic calendar, schedules, enrollment and student billing
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

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.Calendar.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, calendar cache disabled", "error", err)
		} else {
			repo := repository.NewCacheRepository(redisClient, logr)
			defer repo.Close() //nolint:errcheck
			cacheRepo = repo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Calendar.CacheTTL, logr, cacheRepo != nil)

	yearRepo := repository.NewAcademicYearRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	financeRepo := repository.NewFinanceRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	userRepo := repository.NewUserRepository(db)

	authSvc := service.NewAuthService(cfg.JWT)
	calendarSvc := service.NewCalendarService(yearRepo, cacheSvc, cfg.Calendar.CacheTTL, nil, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, metrics, nil, logr)
	receiptExporter := export.NewReceiptPDFExporter("SIS Registrar")
	financeSvc := service.NewFinanceService(financeRepo, userRepo, yearRepo, cfg.Fees, receiptExporter, metrics, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, subjectRepo, userRepo, yearRepo, financeRepo, financeSvc, metrics, nil, logr)
	// Settling a balance auto-approves the matching pending enrollment.
	financeSvc.SetSettlementListener(enrollmentSvc)

	calendarHandler := handler.NewCalendarHandler(calendarSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	financeHandler := handler.NewFinanceHandler(financeSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar)

	api.GET("/calendar/current", calendarHandler.Current)
	api.POST("/academic-years", staff, calendarHandler.CreateAcademicYear)
	api.PUT("/academic-years/:id/current", staff, calendarHandler.SetCurrentYear)
	api.GET("/academic-years/:id/semesters", calendarHandler.ListSemesters)
	api.POST("/academic-years/:id/semesters", staff, calendarHandler.CreateSemester)
	api.PUT("/semesters/:id/status", staff, calendarHandler.UpdateSemesterStatus)

	api.GET("/schedules", scheduleHandler.List)
	api.GET("/schedules/:id", scheduleHandler.Get)
	api.POST("/schedules", staff, scheduleHandler.Create)
	api.POST("/schedules/check", staff, scheduleHandler.Check)
	api.PUT("/schedules/:id", staff, scheduleHandler.Update)
	api.DELETE("/schedules/:id", staff, scheduleHandler.Cancel)

	api.GET("/enrollments", enrollmentHandler.List)
	api.GET("/enrollments/:id", enrollmentHandler.Get)
	api.POST("/enrollments", enrollmentHandler.Create)
	api.PUT("/enrollments/:id/approve", staff, enrollmentHandler.Approve)
	api.PUT("/enrollments/:id/reject", staff, enrollmentHandler.Reject)
	api.PUT("/enrollments/:id/subjects", enrollmentHandler.AddDrop)
	api.GET("/enrollments/:id/financial-record", financeHandler.GetByEnrollment)

	cashiers := middleware.RequireRoles(models.RoleAdmin, models.RoleRegistrar, models.RoleCashier)
	api.GET("/financial-records/:id", cashiers, financeHandler.Get)
	api.POST("/financial-records/:id/payments", middleware.RequireRoles(models.RoleAdmin, models.RoleCashier), financeHandler.AddPayment)
	api.GET("/financial-records/:id/receipts/:receiptNumber", cashiers, financeHandler.Receipt)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
