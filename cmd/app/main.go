package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "outlivion-contest-backend/docs"
	"outlivion-contest-backend/internal/common/cache"
	"outlivion-contest-backend/internal/common/config"
	applogger "outlivion-contest-backend/internal/common/logger"
	"outlivion-contest-backend/internal/common/middleware"
	contesthttp "outlivion-contest-backend/internal/features/contest/delivery/http"
	contestRepo "outlivion-contest-backend/internal/features/contest/repository/postgres"
	contestService "outlivion-contest-backend/internal/features/contest/service"
	paymenthttp "outlivion-contest-backend/internal/features/payment/delivery/http"
	paymentRepo "outlivion-contest-backend/internal/features/payment/repository/postgres"
	paymentService "outlivion-contest-backend/internal/features/payment/service"
	referralhttp "outlivion-contest-backend/internal/features/referral/delivery/http"
	referralRepo "outlivion-contest-backend/internal/features/referral/repository/postgres"
	referralService "outlivion-contest-backend/internal/features/referral/service"
	userRepo "outlivion-contest-backend/internal/features/user/repository/postgres"
	userService "outlivion-contest-backend/internal/features/user/service"
	"outlivion-contest-backend/internal/platform/postgres"
	"outlivion-contest-backend/internal/platform/redis"
	"outlivion-contest-backend/internal/workers"
)

// @title           Outlivion Contest API
// @version         1.0
// @description     Referral contest backend for the Outlivion Telegram Mini App. User endpoints require Telegram initData authentication.

// @host      localhost:8080
// @BasePath  /v1

// @securityDefinitions.apikey TelegramInitData
// @in header
// @name X-Telegram-Init-Data
// @description Telegram Mini App init data string for authentication

// @tag.name contest
// @tag.description Contest registry - active contest lookup and administration

// @tag.name referral
// @tag.description Referral program - binding, summary, friends and ticket history

// @tag.name payments
// @tag.description Payment provider webhooks driving qualification and refunds

func main() {
	// Загружаем переменные окружения
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.Load()

	applogger.Init("outlivion-contest-backend", cfg.Debug)

	// zap используется в обработке ошибок HTTP-слоя
	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting Outlivion Contest Backend",
		zap.String("version", "1.0.0"),
		zap.Bool("debug", cfg.Debug),
	)

	postgresClient, err := postgres.NewClient(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer postgresClient.Close()

	redisClient, err := redis.CreateRedisClient(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	cacheService := cache.NewCacheService(redisClient)

	// Репозитории
	db := postgresClient.GetDB()
	users := userRepo.NewPostgresRepository(db)
	contests := contestRepo.NewPostgresRepository(db)
	referrals := referralRepo.NewPostgresRepository(db)
	payments := paymentRepo.NewPostgresRepository(db)

	// Сервисы
	userSvc := userService.NewUserService(users)
	contestSvc := contestService.NewContestService(contests, cacheService)
	referralSvc := referralService.NewReferralService(
		referrals, referrals, contestSvc, userSvc, payments, cacheService,
		cfg.Telegram.BotUsername, cfg.Referral.SummaryCacheTTL,
	)
	qualificationSvc := referralService.NewQualificationService(
		referrals, referrals, referrals, contestSvc, userSvc, payments, cacheService,
	)
	paymentSvc := paymentService.NewPaymentEventService(payments, qualificationSvc)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler(zapLogger))
	router.Use(middleware.ErrorResponder(zapLogger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Accept", "Authorization", "X-Telegram-Init-Data", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	setupRoutes(router, cfg, userSvc, contestSvc, referralSvc, paymentSvc, postgresClient, redisClient)

	// Консьюмер платёжных сигналов из Redis Stream
	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker := workers.NewPaymentStreamWorker(redisClient, paymentSvc, cfg.Payments.StreamKey)
	go worker.Start(workerCtx)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	userSvc userService.UserService,
	contestSvc contestService.ContestService,
	referralSvc referralService.ReferralService,
	paymentSvc paymentService.PaymentEventService,
	postgresClient *postgres.Client,
	redisClient redis.RedisClient,
) {
	v1 := router.Group("/v1")

	// Вебхуки провайдера: авторизация общим секретом, без initData
	paymenthttp.NewPaymentHandler(paymentSvc, cfg.Payments.WebhookSecret).RegisterRoutes(v1)

	// Пользовательские эндпоинты: initData + автосоздание пользователя
	authorized := v1.Group("")
	authorized.Use(middleware.TelegramInitDataMiddleware(cfg.Telegram.BotToken, cfg.Debug))
	authorized.Use(middleware.AutoCreateUser(userSvc))
	authorized.Use(middleware.RequireAuth())

	contesthttp.NewContestHandler(contestSvc, cfg.Telegram.AdminIDs).RegisterRoutes(authorized)
	referralhttp.NewReferralHandler(referralSvc, cfg.Referral.FriendsLimit).RegisterRoutes(authorized)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"service":   "outlivion-contest-backend",
		})
	})

	// Liveness check
	router.GET("/live", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Readiness check
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := postgresClient.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unready",
				"error":   "postgres unavailable",
				"details": err.Error(),
			})
			return
		}

		if err := redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unready",
				"error":   "redis unavailable",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC(),
			"service":   "outlivion-contest-backend",
		})
	})
}
